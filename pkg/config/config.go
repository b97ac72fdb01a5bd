// Package config parses the host-supplied configuration for the PKD
// validation engine: chain-depth limits, rollover policy, and cache
// tuning. This is host-bootstrap plumbing, not part of the cryptographic
// core, but it is carried in the teacher's idiom (envconfig + defaults +
// yaml) rather than re-rolled on the standard library's flag/os.Getenv.
package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"

	"epasspkd/pkg/directory"
	"epasspkd/pkg/logger"
)

// LogCfg configures the diagnostic logger.
type LogCfg struct {
	FolderPath string `yaml:"folder_path"`
}

// Cfg is the top-level configuration for a PKD validation deployment.
type Cfg struct {
	// MaxChainDepth bounds TrustChainBuilder recursion (spec §3 TrustChain invariant).
	MaxChainDepth int `yaml:"max_chain_depth" default:"10" validate:"required,min=1,max=64"`

	// DefaultPolicy resolves the Open Question on DN-only rollover fallback.
	DefaultPolicy directory.RolloverPolicy `yaml:"default_policy" default:"permissive"`

	// TrustCacheTTL bounds how long CSCA/CRL provider lookups are cached.
	TrustCacheTTL time.Duration `yaml:"trust_cache_ttl" default:"5m"`

	// Production selects the zap production/development logger config.
	Production bool `yaml:"production"`

	Log LogCfg `yaml:"log"`
}

type envVars struct {
	ConfigYAML string `envconfig:"PKD_CONFIG_YAML" required:"true"`
}

// Parse resolves PKD_CONFIG_YAML, applies struct-tag defaults, unmarshals
// the YAML file, and validates the result.
func Parse(ctx context.Context, log *logger.Log) (*Cfg, error) {
	if log == nil {
		log = logger.NewSimple("config")
	}
	log.Info("reading environment variables")

	env := envVars{}
	if err := envconfig.Process("", &env); err != nil {
		return nil, err
	}

	cfg := &Cfg{}
	if err := defaults.Set(cfg); err != nil {
		return nil, err
	}

	configFile, err := os.ReadFile(filepath.Clean(env.ConfigYAML))
	if err != nil {
		return nil, err
	}

	fileInfo, err := os.Stat(env.ConfigYAML)
	if err != nil {
		return nil, err
	}
	if fileInfo.IsDir() {
		return nil, errors.New("config path is a folder")
	}

	if err := yaml.Unmarshal(configFile, cfg); err != nil {
		return nil, err
	}

	if err := validator.New().StructCtx(ctx, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns a Cfg populated purely from struct-tag defaults, for
// callers that embed the engine as a library without a YAML file.
func Default() (*Cfg, error) {
	cfg := &Cfg{}
	if err := defaults.Set(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
