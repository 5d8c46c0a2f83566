package config

import (
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"gohypo/internal/errors"
)

var structValidator = validator.New()

// Config represents the complete application configuration
type Config struct {
	Database  DatabaseConfig  `validate:"required"`
	Detector  DetectorConfig  `validate:"required"`
	Vision    VisionConfig    `validate:"required"`
	Safety    SafetyConfig    `validate:"required"`
	Conformal ConformalConfig `validate:"required"`
	SeedSafe  SeedSafeConfig  `validate:"required"`
	Memory    MemoryConfig    `validate:"required"`
	Server    ServerConfig    `validate:"required"`
	Flags     FeatureFlags
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	URL     string `validate:"required"`
	Host    string
	Port    int
	Name    string
	User    string
	Pass    string
	SSLMode string
}

// DetectorConfig holds timeouts and weighting defaults for the detector
// fusion stage.
type DetectorConfig struct {
	Timeout            time.Duration
	DetectorURL        string // primary object detector service
	LabelerURL         string // secondary vision labeler service
	DefaultWeights     []float64 // {primary, masker, segmentation} default
	CorrelationOffDiag []float64 // empirical pairwise correlations
	EpistemicConstant  float64
}

// VisionConfig holds timeouts and retry behavior for the VLM assessor and
// the optional segmentation service.
type VisionConfig struct {
	Timeout            time.Duration
	VLMURL             string // vision-language damage assessor endpoint
	VLMAPIKey          string
	VLMModel           string
	SegmentationURL    string
	SegmentationEnable bool
	MaxRetries         int
	BackoffBase        time.Duration
	BackoffMax         time.Duration
}

// SafetyConfig holds the per-property-class safety thresholds delta.
type SafetyConfig struct {
	DeltaDefault      float64 // residential/commercial
	DeltaConstruction float64
	DeltaRail         float64
	Lambda            float64 // ridge regularization for critic models
	ExplorationAlpha  float64 // beta = alpha * log(n+1)
}

// DeltaFor resolves the safety threshold for a property class, falling back
// to the residential/commercial default for unrecognized classes.
func (s SafetyConfig) DeltaFor(propertyClass string) float64 {
	switch propertyClass {
	case "rail":
		return s.DeltaRail
	case "construction":
		return s.DeltaConstruction
	default:
		return s.DeltaDefault
	}
}

// ConformalConfig holds Mondrian Conformal Prediction knobs.
type ConformalConfig struct {
	TargetCoverage  float64 // 1 - alpha, default 0.90
	MinStratumN     int     // minimum calibration count before accepting a stratum, default 50
	SSBCThresholdN  int     // below this n_cal, apply SSBC, default 100
	RecencyWindow   int     // max calibration points consumed per stratum
	DefaultImportanceWeight float64
}

// SeedSafeConfig holds the historical-validation seed-safe-set gate knobs.
type SeedSafeConfig struct {
	MinN            int     // default 1000
	MaxWilsonUpper  float64 // default 0.005
	Confidence      float64 // default 0.95
}

// MemoryConfig holds continuum memory knobs.
type MemoryConfig struct {
	Levels           int
	ChunkMin         int
	ChunkMax         int
	AdaptationRate   float64
	SlidingWindow    int
	TitansEnabled    bool
}

// ServerConfig holds web server settings
type ServerConfig struct {
	Port string `validate:"required"`
}

// FeatureFlags are environment-driven behavioral toggles.
type FeatureFlags struct {
	ShadowMode       bool
	LearnedFeatures  bool
	GPTOnlyFallback  bool
}

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	config := &Config{}

	dbConfig, err := loadDatabaseConfig()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load database configuration")
	}
	config.Database = *dbConfig

	config.Detector = loadDetectorConfig()
	config.Vision = loadVisionConfig()
	config.Safety = loadSafetyConfig()
	config.Conformal = loadConformalConfig()
	config.SeedSafe = loadSeedSafeConfig()
	config.Memory = loadMemoryConfig()
	config.Server = *loadServerConfig()
	config.Flags = loadFeatureFlags()

	if err := validateConfig(config); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}

	return config, nil
}

func loadDatabaseConfig() (*DatabaseConfig, error) {
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		return nil, errors.ConfigInvalid("DATABASE_URL is required")
	}

	return &DatabaseConfig{
		URL:     url,
		Host:    getEnvOrDefault("DB_HOST", ""),
		Port:    getEnvIntOrDefault("DB_PORT", 5432),
		Name:    getEnvOrDefault("DB_NAME", ""),
		User:    getEnvOrDefault("DB_USER", ""),
		Pass:    getEnvOrDefault("DB_PASS", ""),
		SSLMode: getEnvOrDefault("SSL_MODE", "disable"),
	}, nil
}

func loadDetectorConfig() DetectorConfig {
	seed := loadSeedDefaults()
	return DetectorConfig{
		Timeout:            getEnvDurationOrDefault("DETECTOR_TIMEOUT", 7*time.Second),
		DetectorURL:        getEnvOrDefault("DETECTOR_SERVICE_URL", "http://localhost:8081"),
		LabelerURL:         getEnvOrDefault("LABELER_SERVICE_URL", "http://localhost:8082"),
		DefaultWeights:     getEnvFloatListOrDefault("DETECTOR_WEIGHTS", seed.Detector.Weights),
		CorrelationOffDiag: getEnvFloatListOrDefault("DETECTOR_CORRELATION", seed.Detector.Correlation),
		EpistemicConstant:  getEnvFloatOrDefault("DETECTOR_EPISTEMIC", 0.01),
	}
}

func loadVisionConfig() VisionConfig {
	return VisionConfig{
		Timeout:            getEnvDurationOrDefault("VISION_TIMEOUT", 9*time.Second),
		VLMURL:             getEnvOrDefault("VLM_SERVICE_URL", "https://api.openai.com/v1"),
		VLMAPIKey:          getEnvOrDefault("VLM_API_KEY", ""),
		VLMModel:           getEnvOrDefault("VLM_MODEL", "gpt-4o"),
		SegmentationURL:    getEnvOrDefault("SEGMENTATION_SERVICE_URL", "http://localhost:8083"),
		SegmentationEnable: getEnvBoolOrDefault("SEGMENTATION_ENABLED", false),
		MaxRetries:         getEnvIntOrDefault("VLM_MAX_RETRIES", 3),
		BackoffBase:        getEnvDurationOrDefault("VLM_BACKOFF_BASE", 500*time.Millisecond),
		BackoffMax:         getEnvDurationOrDefault("VLM_BACKOFF_MAX", 8*time.Second),
	}
}

func loadSafetyConfig() SafetyConfig {
	return SafetyConfig{
		DeltaDefault:      getEnvFloatOrDefault("SAFETY_DELTA_DEFAULT", 1e-3),
		DeltaConstruction: getEnvFloatOrDefault("SAFETY_DELTA_CONSTRUCTION", 5e-4),
		DeltaRail:         getEnvFloatOrDefault("SAFETY_DELTA_RAIL", 1e-4),
		Lambda:            getEnvFloatOrDefault("CRITIC_RIDGE_LAMBDA", 1.0),
		ExplorationAlpha:  getEnvFloatOrDefault("CRITIC_EXPLORATION_ALPHA", 1.0),
	}
}

func loadConformalConfig() ConformalConfig {
	return ConformalConfig{
		TargetCoverage:          getEnvFloatOrDefault("CONFORMAL_TARGET_COVERAGE", 0.90),
		MinStratumN:             getEnvIntOrDefault("CONFORMAL_MIN_STRATUM_N", 50),
		SSBCThresholdN:          getEnvIntOrDefault("CONFORMAL_SSBC_THRESHOLD_N", 100),
		RecencyWindow:           getEnvIntOrDefault("CONFORMAL_RECENCY_WINDOW", 5000),
		DefaultImportanceWeight: getEnvFloatOrDefault("CONFORMAL_DEFAULT_IMPORTANCE_WEIGHT", 1.0),
	}
}

func loadSeedSafeConfig() SeedSafeConfig {
	return SeedSafeConfig{
		MinN:           getEnvIntOrDefault("SEED_SAFE_MIN_N", 1000),
		MaxWilsonUpper: getEnvFloatOrDefault("SEED_SAFE_MAX_WILSON_UPPER", 0.005),
		Confidence:     getEnvFloatOrDefault("SEED_SAFE_CONFIDENCE", 0.95),
	}
}

func loadMemoryConfig() MemoryConfig {
	return MemoryConfig{
		Levels:         getEnvIntOrDefault("MEMORY_LEVELS", 4),
		ChunkMin:       getEnvIntOrDefault("MEMORY_CHUNK_MIN", 4),
		ChunkMax:       getEnvIntOrDefault("MEMORY_CHUNK_MAX", 512),
		AdaptationRate: getEnvFloatOrDefault("MEMORY_ADAPTATION_RATE", 0.1),
		SlidingWindow:  getEnvIntOrDefault("MEMORY_SLIDING_WINDOW", 50),
		TitansEnabled:  getEnvBoolOrDefault("TITANS_ENABLED", false),
	}
}

func loadServerConfig() *ServerConfig {
	return &ServerConfig{
		Port: getEnvOrDefault("PORT", "8080"),
	}
}

func loadFeatureFlags() FeatureFlags {
	return FeatureFlags{
		ShadowMode:      getEnvBoolOrDefault("SHADOW_MODE", false),
		LearnedFeatures: getEnvBoolOrDefault("LEARNED_FEATURES_ENABLED", true),
		GPTOnlyFallback: getEnvBoolOrDefault("GPT_ONLY_FALLBACK", false),
	}
}

func validateConfig(config *Config) error {
	if err := structValidator.Struct(config); err != nil {
		return errors.ConfigInvalid(err.Error())
	}
	if config.Safety.DeltaRail > config.Safety.DeltaConstruction || config.Safety.DeltaConstruction > config.Safety.DeltaDefault {
		return errors.ConfigInvalid("safety thresholds must satisfy delta_rail <= delta_construction <= delta_default")
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvFloatListOrDefault(key string, defaultValue []float64) []float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := splitAndTrim(value)
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		f, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return defaultValue
		}
		out = append(out, f)
	}
	return out
}

func splitAndTrim(s string) []string {
	var parts []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			field := s[start:i]
			start = i + 1
			trimmed := trimSpace(field)
			if trimmed != "" {
				parts = append(parts, trimmed)
			}
		}
	}
	return parts
}

func trimSpace(s string) string {
	i, j := 0, len(s)
	for i < j && (s[i] == ' ' || s[i] == '\t') {
		i++
	}
	for j > i && (s[j-1] == ' ' || s[j-1] == '\t') {
		j--
	}
	return s[i:j]
}
