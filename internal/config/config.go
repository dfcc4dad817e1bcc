// Package config provides configuration loading and validation for the API server.
// It uses koanf to merge environment variables with optional file overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/onnwee/matchfeed/internal/matching"
	"github.com/onnwee/matchfeed/internal/ratelimit"
)

// Config holds all configuration values for the API server.
type Config struct {
	// Server settings
	Port int    `koanf:"port"`
	Env  string `koanf:"env"`

	// Storage
	DatabaseURL string `koanf:"database_url"`
	RedisURL    string `koanf:"redis_url"` // Optional; in-memory stores are used when empty

	// JWT Authentication
	JWTSecret         string `koanf:"jwt_secret"`
	JWTPreviousSecret string `koanf:"jwt_previous_secret"` // Accepted during key rotation

	// Tracing
	TracingEnabled    bool    `koanf:"tracing.enabled"`
	TracingExporter   string  `koanf:"tracing.exporter"`
	TracingEndpoint   string  `koanf:"tracing.endpoint"`
	TracingSampleRate float64 `koanf:"tracing.sample_rate"`
	TracingInsecure   bool    `koanf:"tracing.insecure"`

	// Discovery
	DiscoveryRadiusKm   float64       `koanf:"discovery.radius_km"`
	DiscoveryMaxResults int           `koanf:"discovery.max_results"`
	SessionIdleTTL      time.Duration `koanf:"discovery.session_ttl"`

	// Vector ranking
	VectorFlag            string         `koanf:"vector.flag"`
	VectorCalibrationFile string         `koanf:"vector.calibration_file"` // JSON calibration, applied under explicit weights
	VectorBlend           matching.Blend `koanf:"-"`                       // Explicit weights; zero fields keep the calibrated value
	EmbeddingCacheTTL     time.Duration  `koanf:"vector.embedding_cache_ttl"`

	// Action limits
	RateLimitBuckets map[string]ratelimit.BucketConfig `koanf:"ratelimit.buckets"` // File only
	PolicyBackend    string                            `koanf:"policy.backend"`    // "window" or "bucket"

	// Feature flags
	FeatureFlagOverrides string `koanf:"feature_flags.overrides"` // key=on,other=off
	Platform             string `koanf:"feature_flags.platform"`

	// R2 (Cloudflare Object Storage) for profile photos
	R2BucketName      string        `koanf:"photos.bucket"`
	R2AccessKeyID     string        `koanf:"photos.access_key_id"`
	R2SecretAccessKey string        `koanf:"photos.secret_access_key"`
	R2Endpoint        string        `koanf:"photos.endpoint"`
	PhotoURLExpiry    time.Duration `koanf:"photos.url_expiry"`

	// CORS
	CORSAllowedOrigins []string `koanf:"cors.allowed_origins"`
}

// Policy backends.
const (
	PolicyBackendWindow = "window"
	PolicyBackendBucket = "bucket"
)

// Configuration validation errors.
var (
	ErrMissingDatabaseURL       = errors.New("DATABASE_URL is required")
	ErrMissingJWTSecret         = errors.New("JWT_SECRET is required")
	ErrMissingR2BucketName      = errors.New("R2_BUCKET_NAME is required")
	ErrMissingR2AccessKeyID     = errors.New("R2_ACCESS_KEY_ID is required")
	ErrMissingR2SecretAccessKey = errors.New("R2_SECRET_ACCESS_KEY is required")
	ErrMissingR2Endpoint        = errors.New("R2_ENDPOINT is required")
	ErrInvalidPort              = errors.New("PORT must be a valid integer")
	ErrInvalidValue             = errors.New("invalid configuration value")
	ErrInvalidPolicyBackend     = errors.New("POLICY_BACKEND must be window or bucket")
	ErrInvalidRadius            = errors.New("DISCOVERY_RADIUS_KM must be positive")
	ErrInvalidMaxResults        = errors.New("DISCOVERY_MAX_RESULTS must be positive")
	ErrInvalidSampleRate        = errors.New("TRACING_SAMPLE_RATE must be between 0 and 1")
)

// Default values for non-secret configuration.
const (
	DefaultPort                = 8080
	DefaultEnv                 = "development"
	DefaultTracingExporter     = "otlp-http"
	DefaultTracingSampleRate   = 0.1
	DefaultDiscoveryRadiusKm   = 25.0
	DefaultDiscoveryMaxResults = 50
	DefaultSessionIdleTTL      = 30 * time.Minute
	DefaultVectorFlag          = matching.DefaultVectorFlag
	DefaultEmbeddingCacheTTL   = 10 * time.Minute
	DefaultPolicyBackend       = PolicyBackendWindow
	DefaultPlatform            = "mobile"
	DefaultPhotoURLExpiry      = time.Hour
)

// Load reads configuration from environment variables and an optional config file.
// Environment variables take precedence over file values.
// Returns the loaded config and a slice of validation errors (empty if valid).
// If a config file path is provided and the file cannot be loaded, an error is returned.
func Load(configFilePath string) (*Config, []error) {
	k := koanf.New(".")
	var loadErrs []error
	collect := func(err error) {
		if err != nil {
			loadErrs = append(loadErrs, err)
		}
	}

	// Load from YAML file first if provided (lower precedence)
	if configFilePath != "" {
		if err := k.Load(file.Provider(configFilePath), yaml.Parser()); err != nil {
			return nil, []error{fmt.Errorf("failed to load config file %s: %w", configFilePath, err)}
		}
	}

	// Try MATCHFEED_PORT first, then PORT
	port, err := getEnvIntOrDefaultMulti([]string{"MATCHFEED_PORT", "PORT"}, k.Int("port"), DefaultPort)
	collect(err)

	tracingEnabled, err := getEnvBoolOrDefault("TRACING_ENABLED", k, "tracing.enabled", false)
	collect(err)
	tracingInsecure, err := getEnvBoolOrDefault("TRACING_INSECURE", k, "tracing.insecure", false)
	collect(err)
	sampleRate, err := getEnvFloatOrDefault("TRACING_SAMPLE_RATE", k, "tracing.sample_rate", DefaultTracingSampleRate)
	collect(err)

	radius, err := getEnvFloatOrDefault("DISCOVERY_RADIUS_KM", k, "discovery.radius_km", DefaultDiscoveryRadiusKm)
	collect(err)
	maxResults, err := getEnvIntOrDefault("DISCOVERY_MAX_RESULTS", k.Int("discovery.max_results"), DefaultDiscoveryMaxResults)
	collect(err)
	sessionTTL, err := getEnvDurationOrDefault("SESSION_IDLE_TTL", k, "discovery.session_ttl", DefaultSessionIdleTTL)
	collect(err)

	classicWeight, err := getEnvFloatOrDefault("VECTOR_CLASSIC_WEIGHT", k, "vector.classic_weight", 0)
	collect(err)
	embeddingWeight, err := getEnvFloatOrDefault("VECTOR_EMBEDDING_WEIGHT", k, "vector.embedding_weight", 0)
	collect(err)
	threshold, err := getEnvFloatOrDefault("VECTOR_SIMILARITY_THRESHOLD", k, "vector.similarity_threshold", 0)
	collect(err)
	cacheTTL, err := getEnvDurationOrDefault("EMBEDDING_CACHE_TTL", k, "vector.embedding_cache_ttl", DefaultEmbeddingCacheTTL)
	collect(err)

	photoExpiry, err := getEnvDurationOrDefault("PHOTO_URL_EXPIRY", k, "photos.url_expiry", DefaultPhotoURLExpiry)
	collect(err)

	// Bucket tables are structured, so they only come from the file
	var buckets map[string]ratelimit.BucketConfig
	if k.Exists("ratelimit.buckets") {
		if err := k.Unmarshal("ratelimit.buckets", &buckets); err != nil {
			collect(fmt.Errorf("ratelimit.buckets: %w", err))
		}
	}

	origins := k.Strings("cors.allowed_origins")
	if val := os.Getenv("CORS_ALLOWED_ORIGINS"); val != "" {
		origins = splitList(val)
	}

	// Build config struct, with env vars taking precedence over file values
	cfg := &Config{
		Port:              port,
		Env:               getEnvOrDefaultMulti([]string{"MATCHFEED_ENV", "ENV", "GO_ENV"}, k.String("env"), DefaultEnv),
		DatabaseURL:       getEnvOrKoanf("DATABASE_URL", k, "database_url"),
		RedisURL:          getEnvOrKoanf("REDIS_URL", k, "redis_url"),
		JWTSecret:         getEnvOrKoanf("JWT_SECRET", k, "jwt_secret"),
		JWTPreviousSecret: getEnvOrKoanf("JWT_PREVIOUS_SECRET", k, "jwt_previous_secret"),

		TracingEnabled:    tracingEnabled,
		TracingExporter:   getEnvOrDefault("TRACING_EXPORTER", k.String("tracing.exporter"), DefaultTracingExporter),
		TracingEndpoint:   getEnvOrKoanf("TRACING_ENDPOINT", k, "tracing.endpoint"),
		TracingSampleRate: sampleRate,
		TracingInsecure:   tracingInsecure,

		DiscoveryRadiusKm:   radius,
		DiscoveryMaxResults: maxResults,
		SessionIdleTTL:      sessionTTL,

		VectorFlag:            getEnvOrDefault("VECTOR_FLAG", k.String("vector.flag"), DefaultVectorFlag),
		VectorCalibrationFile: getEnvOrKoanf("VECTOR_CALIBRATION_FILE", k, "vector.calibration_file"),
		VectorBlend: matching.Blend{
			ClassicWeight:       classicWeight,
			EmbeddingWeight:     embeddingWeight,
			SimilarityThreshold: threshold,
		},
		EmbeddingCacheTTL: cacheTTL,

		RateLimitBuckets: buckets,
		PolicyBackend:    strings.ToLower(getEnvOrDefault("POLICY_BACKEND", k.String("policy.backend"), DefaultPolicyBackend)),

		FeatureFlagOverrides: getEnvOrKoanf("FEATURE_FLAG_OVERRIDES", k, "feature_flags.overrides"),
		Platform:             getEnvOrDefault("PLATFORM", k.String("feature_flags.platform"), DefaultPlatform),

		R2BucketName:      getEnvOrKoanf("R2_BUCKET_NAME", k, "photos.bucket"),
		R2AccessKeyID:     getEnvOrKoanf("R2_ACCESS_KEY_ID", k, "photos.access_key_id"),
		R2SecretAccessKey: getEnvOrKoanf("R2_SECRET_ACCESS_KEY", k, "photos.secret_access_key"),
		R2Endpoint:        getEnvOrKoanf("R2_ENDPOINT", k, "photos.endpoint"),
		PhotoURLExpiry:    photoExpiry,

		CORSAllowedOrigins: origins,
	}

	// Validate and collect errors
	errs := cfg.Validate()
	errs = append(loadErrs, errs...)

	return cfg, errs
}

// getEnvOrKoanf returns the environment variable value if set, otherwise the koanf value.
func getEnvOrKoanf(envKey string, k *koanf.Koanf, koanfKey string) string {
	if val := os.Getenv(envKey); val != "" {
		return val
	}
	return k.String(koanfKey)
}

// getEnvOrDefault returns the environment variable value if set, otherwise the koanf value, or default.
func getEnvOrDefault(envKey string, koanfVal string, defaultVal string) string {
	if val := os.Getenv(envKey); val != "" {
		return val
	}
	if koanfVal != "" {
		return koanfVal
	}
	return defaultVal
}

// getEnvOrDefaultMulti tries multiple environment variable keys in order.
// Returns the first non-empty value found, otherwise the koanf value, or default.
func getEnvOrDefaultMulti(envKeys []string, koanfVal string, defaultVal string) string {
	for _, key := range envKeys {
		if val := os.Getenv(key); val != "" {
			return val
		}
	}
	if koanfVal != "" {
		return koanfVal
	}
	return defaultVal
}

// getEnvIntOrDefault returns the environment variable as int if set, otherwise the koanf value, or default.
// Returns an error if the environment variable is set but cannot be parsed as an integer.
func getEnvIntOrDefault(envKey string, koanfVal int, defaultVal int) (int, error) {
	if val := os.Getenv(envKey); val != "" {
		i, err := strconv.Atoi(val)
		if err != nil {
			return defaultVal, fmt.Errorf("%s must be a valid integer: %w", envKey, ErrInvalidValue)
		}
		return i, nil
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// getEnvIntOrDefaultMulti tries multiple environment variable keys in order.
// Returns the first valid integer value found, otherwise the koanf value, or default.
// Returns an error if any environment variable is set but cannot be parsed as an integer.
func getEnvIntOrDefaultMulti(envKeys []string, koanfVal int, defaultVal int) (int, error) {
	for _, key := range envKeys {
		if val := os.Getenv(key); val != "" {
			i, err := strconv.Atoi(val)
			if err != nil {
				return 0, fmt.Errorf("%s must be a valid integer: %w", key, ErrInvalidPort)
			}
			return i, nil
		}
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// getEnvFloatOrDefault returns the environment variable as float64 if set,
// otherwise the koanf value if the key exists, or default.
func getEnvFloatOrDefault(envKey string, k *koanf.Koanf, koanfKey string, defaultVal float64) (float64, error) {
	if val := os.Getenv(envKey); val != "" {
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return defaultVal, fmt.Errorf("%s must be a valid float: %w", envKey, ErrInvalidValue)
		}
		return f, nil
	}
	if k.Exists(koanfKey) {
		return k.Float64(koanfKey), nil
	}
	return defaultVal, nil
}

// getEnvBoolOrDefault accepts true/false, 1/0, yes/no and on/off.
func getEnvBoolOrDefault(envKey string, k *koanf.Koanf, koanfKey string, defaultVal bool) (bool, error) {
	if val := os.Getenv(envKey); val != "" {
		switch strings.ToLower(val) {
		case "true", "1", "yes", "on":
			return true, nil
		case "false", "0", "no", "off":
			return false, nil
		}
		return defaultVal, fmt.Errorf("%s must be a boolean: %w", envKey, ErrInvalidValue)
	}
	if k.Exists(koanfKey) {
		return k.Bool(koanfKey), nil
	}
	return defaultVal, nil
}

// getEnvDurationOrDefault parses Go duration strings such as "30m".
func getEnvDurationOrDefault(envKey string, k *koanf.Koanf, koanfKey string, defaultVal time.Duration) (time.Duration, error) {
	if val := os.Getenv(envKey); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			return defaultVal, fmt.Errorf("%s must be a valid duration: %w", envKey, ErrInvalidValue)
		}
		return d, nil
	}
	if d := k.Duration(koanfKey); d > 0 {
		return d, nil
	}
	return defaultVal, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Blend returns the vector blend: defaults, then the calibration file, then
// explicit weights.
func (c *Config) Blend() (matching.Blend, error) {
	blend, err := matching.LoadCalibration(c.VectorCalibrationFile)
	if err != nil {
		return blend, err
	}
	blend = matching.MergeBlend(blend, c.VectorBlend)
	if err := blend.Validate(); err != nil {
		return matching.DefaultBlend(), err
	}
	return blend, nil
}

// Buckets returns the action bucket table: defaults overlaid with configured buckets.
func (c *Config) Buckets() map[string]ratelimit.BucketConfig {
	buckets := ratelimit.DefaultBuckets()
	for key, bc := range c.RateLimitBuckets {
		buckets[key] = bc
	}
	return buckets
}

// PhotosEnabled reports whether photo URL signing is configured.
func (c *Config) PhotosEnabled() bool {
	return c.R2BucketName != "" && c.R2AccessKeyID != "" && c.R2SecretAccessKey != "" && c.R2Endpoint != ""
}

// Validate checks that all required configuration values are present.
// Returns a slice of validation errors (empty if valid).
func (c *Config) Validate() []error {
	var errs []error

	if c.DatabaseURL == "" {
		errs = append(errs, ErrMissingDatabaseURL)
	}
	if c.JWTSecret == "" {
		errs = append(errs, ErrMissingJWTSecret)
	}
	if c.PolicyBackend != PolicyBackendWindow && c.PolicyBackend != PolicyBackendBucket {
		errs = append(errs, ErrInvalidPolicyBackend)
	}
	if c.DiscoveryRadiusKm <= 0 {
		errs = append(errs, ErrInvalidRadius)
	}
	if c.DiscoveryMaxResults <= 0 {
		errs = append(errs, ErrInvalidMaxResults)
	}
	if c.TracingSampleRate < 0 || c.TracingSampleRate > 1 {
		errs = append(errs, ErrInvalidSampleRate)
	}

	blend := matching.MergeBlend(matching.DefaultBlend(), c.VectorBlend)
	if err := blend.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("vector blend: %w", err))
	}

	keys := make([]string, 0, len(c.RateLimitBuckets))
	for key := range c.RateLimitBuckets {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if err := c.RateLimitBuckets[key].Validate(); err != nil {
			errs = append(errs, fmt.Errorf("ratelimit bucket %q: %w", key, err))
		}
	}

	// R2 configuration is optional. Only validate fields if any R2 value is set.
	if c.R2BucketName != "" || c.R2AccessKeyID != "" || c.R2SecretAccessKey != "" || c.R2Endpoint != "" {
		if c.R2BucketName == "" {
			errs = append(errs, ErrMissingR2BucketName)
		}
		if c.R2AccessKeyID == "" {
			errs = append(errs, ErrMissingR2AccessKeyID)
		}
		if c.R2SecretAccessKey == "" {
			errs = append(errs, ErrMissingR2SecretAccessKey)
		}
		if c.R2Endpoint == "" {
			errs = append(errs, ErrMissingR2Endpoint)
		}
	}

	return errs
}

// LogSummary returns a summary of the configuration suitable for logging.
// All secrets are masked to prevent accidental exposure.
func (c *Config) LogSummary() map[string]string {
	return map[string]string{
		"port":                    strconv.Itoa(c.Port),
		"env":                     c.Env,
		"database_url":            maskDatabaseURL(c.DatabaseURL),
		"redis_url":               maskDatabaseURL(c.RedisURL),
		"jwt_secret":              maskSecret(c.JWTSecret),
		"jwt_previous_secret":     maskSecret(c.JWTPreviousSecret),
		"tracing_enabled":         strconv.FormatBool(c.TracingEnabled),
		"tracing_exporter":        c.TracingExporter,
		"tracing_sample_rate":     strconv.FormatFloat(c.TracingSampleRate, 'f', -1, 64),
		"discovery_radius_km":     strconv.FormatFloat(c.DiscoveryRadiusKm, 'f', -1, 64),
		"discovery_max_results":   strconv.Itoa(c.DiscoveryMaxResults),
		"session_idle_ttl":        c.SessionIdleTTL.String(),
		"vector_flag":             c.VectorFlag,
		"vector_calibration_file": c.VectorCalibrationFile,
		"embedding_cache_ttl":     c.EmbeddingCacheTTL.String(),
		"policy_backend":          c.PolicyBackend,
		"platform":                c.Platform,
		"feature_flag_overrides":  c.FeatureFlagOverrides,
		"r2_bucket_name":          c.R2BucketName,
		"r2_access_key_id":        maskSecret(c.R2AccessKeyID),
		"r2_secret_access_key":    maskSecret(c.R2SecretAccessKey),
		"r2_endpoint":             c.R2Endpoint,
		"photo_url_expiry":        c.PhotoURLExpiry.String(),
		"cors_allowed_origins":    strings.Join(c.CORSAllowedOrigins, ","),
	}
}

// maskSecret masks a secret value, showing only the first 4 characters followed by ****
// If the secret is shorter than 8 characters, it's fully masked.
func maskSecret(s string) string {
	if s == "" {
		return "<not set>"
	}
	if len(s) < 8 {
		return "****"
	}
	return s[:4] + "****"
}

// maskDatabaseURL masks the password in a connection URL.
// Works for postgres:// and redis:// style URLs.
func maskDatabaseURL(s string) string {
	if s == "" {
		return "<not set>"
	}

	schemeEnd := strings.Index(s, "://")
	if schemeEnd == -1 {
		return maskSecret(s)
	}

	rest := s[schemeEnd+3:]
	atIndex := strings.Index(rest, "@")
	if atIndex == -1 {
		return s // No credentials in URL
	}

	colonIndex := strings.Index(rest[:atIndex], ":")
	if colonIndex == -1 {
		return s // No password (only username)
	}

	scheme := s[:schemeEnd+3]
	user := rest[:colonIndex]
	hostAndPath := rest[atIndex:]

	return scheme + user + ":****" + hostAndPath
}
