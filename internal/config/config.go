package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	OpenAI     OpenAIConfig     `yaml:"openai" mapstructure:"openai"`
	Pipeline   PipelineConfig   `yaml:"pipeline" mapstructure:"pipeline"`
	Consensus  ConsensusConfig  `yaml:"consensus" mapstructure:"consensus"`
	Classifier ClassifierConfig `yaml:"classifier" mapstructure:"classifier"`
	OCR        OCRConfig        `yaml:"ocr" mapstructure:"ocr"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// AnthropicConfig holds Anthropic API settings for the vision provider.
type AnthropicConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// OpenAIConfig holds OpenAI API settings for the structured provider and
// the table extractor.
type OpenAIConfig struct {
	Key        string `yaml:"key" mapstructure:"key"`
	Model      string `yaml:"model" mapstructure:"model"`
	TableModel string `yaml:"table_model" mapstructure:"table_model"`
}

// PipelineConfig configures orchestration and calibration behavior.
type PipelineConfig struct {
	UseVision                 bool    `yaml:"use_vision" mapstructure:"use_vision"`
	UseMultiProviderConsensus bool    `yaml:"use_multi_provider_consensus" mapstructure:"use_multi_provider_consensus"`
	ConfidenceThreshold       float64 `yaml:"confidence_threshold" mapstructure:"confidence_threshold"`
	RetrainingThreshold       int     `yaml:"retraining_threshold" mapstructure:"retraining_threshold"`
	LearnedCalibration        bool    `yaml:"learned_calibration" mapstructure:"learned_calibration"`
	AttemptTimeoutSecs        int     `yaml:"attempt_timeout_secs" mapstructure:"attempt_timeout_secs"`
}

// AttemptTimeout returns the per-provider attempt timeout.
func (p PipelineConfig) AttemptTimeout() time.Duration {
	return time.Duration(p.AttemptTimeoutSecs) * time.Second
}

// ConsensusConfig configures the merge engine. OptionsFile, when set,
// points at a YAML file with the full similarity-weight tuning.
type ConsensusConfig struct {
	MinConfidence float64 `yaml:"min_consensus_confidence" mapstructure:"min_consensus_confidence"`
	MinAgreement  float64 `yaml:"min_consensus_agreement" mapstructure:"min_consensus_agreement"`
	OptionsFile   string  `yaml:"options_file" mapstructure:"options_file"`
}

// ClassifierConfig selects the feature analyzer.
type ClassifierConfig struct {
	Analyzer string `yaml:"analyzer" mapstructure:"analyzer"` // "heuristic" or "llm"
}

// OCRConfig selects the PDF text extraction backend used to pre-fill
// OCR text before the providers run.
type OCRConfig struct {
	Provider      string `yaml:"provider" mapstructure:"provider"` // "local" or "mistral"
	PdfToTextPath string `yaml:"pdftotext_path" mapstructure:"pdftotext_path"`
	MistralKey    string `yaml:"mistral_key" mapstructure:"mistral_key"`
	MistralModel  string `yaml:"mistral_model" mapstructure:"mistral_model"`
}

// StoreConfig configures the persistence backend for model snapshots and
// the correction ledger.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // "sqlite" or "postgres"
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Path        string `yaml:"path" mapstructure:"path"` // sqlite file
}

// ServerConfig configures the HTTP server.
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
	v.SetEnvPrefix("DOCEXTRACT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("openai.table_model", "gpt-4o-mini")
	v.SetDefault("pipeline.use_vision", true)
	v.SetDefault("pipeline.use_multi_provider_consensus", true)
	v.SetDefault("pipeline.confidence_threshold", 0.75)
	v.SetDefault("pipeline.retraining_threshold", 100)
	v.SetDefault("pipeline.learned_calibration", true)
	v.SetDefault("pipeline.attempt_timeout_secs", 60)
	v.SetDefault("consensus.min_consensus_confidence", 0.7)
	v.SetDefault("consensus.min_consensus_agreement", 0.5)
	v.SetDefault("classifier.analyzer", "heuristic")
	v.SetDefault("ocr.provider", "local")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "docextract.db")
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
