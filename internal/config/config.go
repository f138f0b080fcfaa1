package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
	Resolve  ResolveConfig  `yaml:"resolve" mapstructure:"resolve"`
	Classify ClassifyConfig `yaml:"classify" mapstructure:"classify"`
	Catalog  CatalogConfig  `yaml:"catalog" mapstructure:"catalog"`
	Weights  WeightsConfig  `yaml:"weights" mapstructure:"weights"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
	// ConnectAttempts bounds retries of transient connection failures.
	ConnectAttempts int `yaml:"connect_attempts" mapstructure:"connect_attempts"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	RateLimit      float64  `yaml:"rate_limit" mapstructure:"rate_limit"`
	RateBurst      int      `yaml:"rate_burst" mapstructure:"rate_burst"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ResolveConfig tunes identity candidate scoring.
type ResolveConfig struct {
	// FuzzyNameThreshold is the edit-distance similarity a name must exceed
	// before partial credit is awarded.
	FuzzyNameThreshold float64 `yaml:"fuzzy_name_threshold" mapstructure:"fuzzy_name_threshold"`
	// FuzzyNameFactor scales the band maximum for fuzzy name credit.
	FuzzyNameFactor         float64 `yaml:"fuzzy_name_factor" mapstructure:"fuzzy_name_factor"`
	CitySimilarityThreshold float64 `yaml:"city_similarity_threshold" mapstructure:"city_similarity_threshold"`
	OccupationSimilarity    float64 `yaml:"occupation_similarity" mapstructure:"occupation_similarity"`
	MinScore                int     `yaml:"min_score" mapstructure:"min_score"`
	MaxCandidates           int     `yaml:"max_candidates" mapstructure:"max_candidates"`
}

// ClassifyConfig tunes persona classification.
type ClassifyConfig struct {
	SecondaryMinConfidence float64 `yaml:"secondary_min_confidence" mapstructure:"secondary_min_confidence"`
	SecondaryMinRatio      float64 `yaml:"secondary_min_ratio" mapstructure:"secondary_min_ratio"`
	MaxConcurrent          int     `yaml:"max_concurrent" mapstructure:"max_concurrent"`
}

// CatalogConfig points at a signal catalog file. Empty uses the embedded catalog.
type CatalogConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// WeightsConfig locates the persona library and the weight snapshot.
type WeightsConfig struct {
	PersonasPath string `yaml:"personas_path" mapstructure:"personas_path"`
	SnapshotPath string `yaml:"snapshot_path" mapstructure:"snapshot_path"`
	Source       string `yaml:"source" mapstructure:"source"`
}

// Weight table sources.
const (
	WeightSourceBuild    = "build"
	WeightSourceSnapshot = "snapshot"
	WeightSourceStore    = "store"
)

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("JUROR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "juror-match.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("store.connect_attempts", 3)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.rate_limit", 50.0)
	v.SetDefault("server.rate_burst", 100)
	v.SetDefault("resolve.fuzzy_name_threshold", 0.7)
	v.SetDefault("resolve.fuzzy_name_factor", 0.75)
	v.SetDefault("resolve.city_similarity_threshold", 0.92)
	v.SetDefault("resolve.occupation_similarity", 0.85)
	v.SetDefault("resolve.min_score", 0)
	v.SetDefault("resolve.max_candidates", 0)
	v.SetDefault("classify.secondary_min_confidence", 0.25)
	v.SetDefault("classify.secondary_min_ratio", 0.5)
	v.SetDefault("classify.max_concurrent", 8)
	v.SetDefault("weights.source", WeightSourceBuild)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command depends on. mode is one of
// "resolve", "classify", "store" or "serve"; unknown modes check everything.
func (c *Config) Validate(mode string) error {
	var errs []string

	checkResolve := func() {
		r := c.Resolve
		if r.FuzzyNameThreshold <= 0 || r.FuzzyNameThreshold >= 1 {
			errs = append(errs, "resolve.fuzzy_name_threshold must be in (0, 1)")
		}
		if r.FuzzyNameFactor <= 0 || r.FuzzyNameFactor > 1 {
			errs = append(errs, "resolve.fuzzy_name_factor must be in (0, 1]")
		}
		if r.CitySimilarityThreshold <= 0 || r.CitySimilarityThreshold > 1 {
			errs = append(errs, "resolve.city_similarity_threshold must be in (0, 1]")
		}
		if r.OccupationSimilarity <= 0 || r.OccupationSimilarity > 1 {
			errs = append(errs, "resolve.occupation_similarity must be in (0, 1]")
		}
		if r.MinScore < 0 || r.MinScore > 100 {
			errs = append(errs, "resolve.min_score must be between 0 and 100")
		}
		if r.MaxCandidates < 0 {
			errs = append(errs, "resolve.max_candidates must be >= 0")
		}
	}
	checkClassify := func() {
		k := c.Classify
		if k.SecondaryMinConfidence < 0 || k.SecondaryMinConfidence > 1 {
			errs = append(errs, "classify.secondary_min_confidence must be between 0 and 1")
		}
		if k.SecondaryMinRatio < 0 || k.SecondaryMinRatio > 1 {
			errs = append(errs, "classify.secondary_min_ratio must be between 0 and 1")
		}
		if k.MaxConcurrent < 1 {
			errs = append(errs, "classify.max_concurrent must be >= 1")
		}
		switch c.Weights.Source {
		case WeightSourceBuild, WeightSourceSnapshot, WeightSourceStore:
		default:
			errs = append(errs, fmt.Sprintf("weights.source %q is not one of build, snapshot, store", c.Weights.Source))
		}
		if c.Weights.Source == WeightSourceSnapshot && c.Weights.SnapshotPath == "" {
			errs = append(errs, "weights.snapshot_path is required when weights.source is snapshot")
		}
	}
	checkStore := func() {
		switch c.Store.Driver {
		case "sqlite", "postgres":
		default:
			errs = append(errs, fmt.Sprintf("store.driver %q is not one of sqlite, postgres", c.Store.Driver))
		}
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required")
		}
	}

	switch mode {
	case "resolve":
		checkResolve()
	case "classify":
		checkClassify()
	case "store":
		checkStore()
	case "serve":
		checkResolve()
		checkClassify()
		checkStore()
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, "server.port must be between 1 and 65535")
		}
	default:
		checkResolve()
		checkClassify()
		checkStore()
	}

	if len(errs) > 0 {
		return eris.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
