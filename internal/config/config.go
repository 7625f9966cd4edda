package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration. It is loaded once and
// threaded explicitly through every stage; nothing reads it as global state.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Taxonomy   TaxonomyConfig   `yaml:"taxonomy" mapstructure:"taxonomy"`
	Rules      RulesConfig      `yaml:"rules" mapstructure:"rules"`
	Ingest     IngestConfig     `yaml:"ingest" mapstructure:"ingest"`
	Dedup      DedupConfig      `yaml:"dedup" mapstructure:"dedup"`
	Cluster    ClusterConfig    `yaml:"cluster" mapstructure:"cluster"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" mapstructure:"embeddings"`
	Quality    QualityConfig    `yaml:"quality" mapstructure:"quality"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the warehouse backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// TaxonomyConfig points at the controlled vocabulary document.
type TaxonomyConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// RulesConfig points at the problem-map rule document.
type RulesConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// IngestConfig configures feed parsing.
type IngestConfig struct {
	// MaskPII replaces phone numbers and emails in quotes at read time,
	// before the core ever sees them. Off by default so text_quote stays
	// verbatim.
	MaskPII    bool   `yaml:"mask_pii" mapstructure:"mask_pii"`
	SheetName  string `yaml:"sheet_name" mapstructure:"sheet_name"`
	SheetIndex int    `yaml:"sheet_index" mapstructure:"sheet_index"`
}

// DedupConfig configures the deduplicator.
type DedupConfig struct {
	// Fuzzy enables embedding-based near-duplicate collapse on top of the
	// exact-match default. Requires embeddings to be available.
	Fuzzy bool `yaml:"fuzzy" mapstructure:"fuzzy"`

	// SimilarityThreshold is the cosine similarity above which two mentions
	// in the same (dialog, subtheme) partition are treated as duplicates.
	SimilarityThreshold float64 `yaml:"similarity_threshold" mapstructure:"similarity_threshold"`
}

// ClusterConfig configures the optional enrichment stage.
type ClusterConfig struct {
	Enabled        bool    `yaml:"enabled" mapstructure:"enabled"`
	MinClusterSize int     `yaml:"min_cluster_size" mapstructure:"min_cluster_size"`
	Eps            float64 `yaml:"eps" mapstructure:"eps"`
	TimeoutSecs    int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	Keywords       int     `yaml:"keywords" mapstructure:"keywords"`
}

// EmbeddingsConfig configures where mention vectors come from.
type EmbeddingsConfig struct {
	Provider string `yaml:"provider" mapstructure:"provider"` // "file" or "openai"
	Path     string `yaml:"path" mapstructure:"path"`
	Key      string `yaml:"key" mapstructure:"key"`
	Model    string `yaml:"model" mapstructure:"model"`
	RPS      int    `yaml:"rps" mapstructure:"rps"`
}

// QualityConfig holds gate thresholds.
type QualityConfig struct {
	MaxDedupPct         float64 `yaml:"max_dedup_pct" mapstructure:"max_dedup_pct"`
	MinCoveragePct      float64 `yaml:"min_coverage_pct" mapstructure:"min_coverage_pct"`
	AmbiguityConfidence float64 `yaml:"ambiguity_confidence" mapstructure:"ambiguity_confidence"`
}

// ServerConfig configures the query API.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("RAG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "rag.db")
	v.SetDefault("taxonomy.path", "taxonomy.yaml")
	v.SetDefault("rules.path", "problem_map.yaml")
	v.SetDefault("ingest.mask_pii", false)
	v.SetDefault("ingest.sheet_index", 0)
	v.SetDefault("dedup.fuzzy", false)
	v.SetDefault("dedup.similarity_threshold", 0.92)
	v.SetDefault("cluster.enabled", true)
	v.SetDefault("cluster.min_cluster_size", 10)
	v.SetDefault("cluster.eps", 0.35)
	v.SetDefault("cluster.timeout_secs", 60)
	v.SetDefault("cluster.keywords", 5)
	v.SetDefault("embeddings.provider", "file")
	v.SetDefault("embeddings.model", "text-embedding-3-small")
	v.SetDefault("embeddings.rps", 5)
	v.SetDefault("quality.max_dedup_pct", 1.0)
	v.SetDefault("quality.min_coverage_pct", 98.0)
	v.SetDefault("quality.ambiguity_confidence", 0.6)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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
