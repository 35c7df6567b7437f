package cfg

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"titanic-predictor/internal/common"
)

type Settings struct {
	Environment      string
	Host             string
	Port             int
	ModelsPath       string
	DataPath         string
	LogLevel         string
	LogFormat        string
	ModelLoadTimeout time.Duration
	RequestTimeout   time.Duration
	ShutdownTimeout  time.Duration
	MinModelAccuracy float64
	JWT              JWTSettings
	RateLimits       RateLimits
	StreamEnabled    bool
}

type JWTSettings struct {
	Algorithm  string
	PrivateKey string // PEM, RS256 only
	PublicKey  string // PEM, RS256 only
	Secret     string // HS256 only
	Issuer     string
	Expiration time.Duration
}

type RateLimits struct {
	Default     RateLimit
	Predictions RateLimit
	Health      RateLimit
}

type ConfigFile struct {
	Service struct {
		Environment     string `yaml:"environment"`
		Host            string `yaml:"host"`
		Port            int    `yaml:"port"`
		RequestTimeout  string `yaml:"requestTimeout"`
		ShutdownTimeout string `yaml:"shutdownTimeout"`
		StreamEnabled   *bool  `yaml:"streamEnabled"`
	} `yaml:"service"`

	Models struct {
		Path        string  `yaml:"path"`
		LoadTimeout string  `yaml:"loadTimeout"`
		MinAccuracy float64 `yaml:"minAccuracy"`
	} `yaml:"models"`

	Auth struct {
		Algorithm     string `yaml:"algorithm"`
		PrivateKey    string `yaml:"privateKey"`
		PublicKey     string `yaml:"publicKey"`
		Secret        string `yaml:"secret"`
		Issuer        string `yaml:"issuer"`
		ExpireMinutes int    `yaml:"expireMinutes"`
	} `yaml:"auth"`

	RateLimits struct {
		Default     string `yaml:"default"`
		Predictions string `yaml:"predictions"`
		Health      string `yaml:"health"`
	} `yaml:"rateLimits"`

	System struct {
		DataPath  string `yaml:"dataPath"`
		LogLevel  string `yaml:"logLevel"`
		LogFormat string `yaml:"logFormat"`
	} `yaml:"system"`
}

// Load reads an optional .env file, then the YAML file named by CONFIG_FILE
// (with environment overrides) or, without one, the environment alone.
func Load() (Settings, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Settings{}, fmt.Errorf("failed to read .env file: %w", err)
	}

	if configPath := os.Getenv(common.EnvConfigFile); configPath != "" {
		return loadFromYAML(configPath)
	}

	return loadFromEnv()
}

func loadFromYAML(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config ConfigFile
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Settings{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	streamEnabled := true
	if config.Service.StreamEnabled != nil {
		streamEnabled = *config.Service.StreamEnabled
	}
	expiration := common.DefaultJWTExpiration
	if config.Auth.ExpireMinutes > 0 {
		expiration = time.Duration(config.Auth.ExpireMinutes) * time.Minute
	}

	settings := Settings{
		Environment:      getEnvOrDefault(common.EnvEnvironment, orDefault(config.Service.Environment, common.DefaultEnvironment)),
		Host:             getEnvOrDefault(common.EnvHost, orDefault(config.Service.Host, common.DefaultHost)),
		Port:             getIntFromEnvOrConfig(common.EnvPort, config.Service.Port, common.DefaultPort),
		ModelsPath:       getEnvOrDefault(common.EnvModelsPath, orDefault(config.Models.Path, common.DefaultModelsPath)),
		DataPath:         getEnvOrDefault(common.EnvDataPath, config.System.DataPath),
		LogLevel:         getEnvOrDefault(common.EnvLogLevel, orDefault(config.System.LogLevel, common.DefaultLogLevel)),
		LogFormat:        getEnvOrDefault(common.EnvLogFormat, orDefault(config.System.LogFormat, common.DefaultLogFormat)),
		ModelLoadTimeout: getDurationFromEnvOrConfig(common.EnvModelLoadTimeout, config.Models.LoadTimeout, common.DefaultModelLoadTimeout),
		RequestTimeout:   getDurationFromEnvOrConfig(common.EnvRequestTimeout, config.Service.RequestTimeout, common.DefaultRequestTimeout),
		ShutdownTimeout:  getDurationFromEnvOrConfig(common.EnvShutdownTimeout, config.Service.ShutdownTimeout, common.DefaultShutdownTimeout),
		MinModelAccuracy: getFloatFromEnvOrConfig(common.EnvMinModelAccuracy, config.Models.MinAccuracy, common.DefaultMinModelAccuracy),
		JWT: JWTSettings{
			Algorithm:  strings.ToUpper(getEnvOrDefault(common.EnvJWTAlgorithm, orDefault(config.Auth.Algorithm, common.DefaultJWTAlgorithm))),
			PrivateKey: getEnvOrDefault(common.EnvJWTPrivateKey, config.Auth.PrivateKey),
			PublicKey:  getEnvOrDefault(common.EnvJWTPublicKey, config.Auth.PublicKey),
			Secret:     getEnvOrDefault(common.EnvJWTSecret, config.Auth.Secret),
			Issuer:     getEnvOrDefault(common.EnvJWTIssuer, orDefault(config.Auth.Issuer, common.DefaultJWTIssuer)),
			Expiration: getMinutesOrDefault(common.EnvJWTExpireMinutes, expiration),
		},
		StreamEnabled: getBoolOrDefault(common.EnvStreamEnabled, streamEnabled),
	}

	settings.RateLimits, err = parseRateLimits(
		getEnvOrDefault(common.EnvRateLimitDefault, orDefault(config.RateLimits.Default, common.DefaultRateLimitDefault)),
		getEnvOrDefault(common.EnvRateLimitPredict, orDefault(config.RateLimits.Predictions, common.DefaultRateLimitPredict)),
		getEnvOrDefault(common.EnvRateLimitHealth, orDefault(config.RateLimits.Health, common.DefaultRateLimitHealth)),
	)
	if err != nil {
		return Settings{}, common.NewConfigurationError("invalid rate limit", err)
	}

	if err := finish(&settings); err != nil {
		return Settings{}, err
	}
	return settings, nil
}

func loadFromEnv() (Settings, error) {
	settings := Settings{
		Environment:      getEnvOrDefault(common.EnvEnvironment, common.DefaultEnvironment),
		Host:             getEnvOrDefault(common.EnvHost, common.DefaultHost),
		Port:             getIntOrDefault(common.EnvPort, common.DefaultPort),
		ModelsPath:       getEnvOrDefault(common.EnvModelsPath, common.DefaultModelsPath),
		DataPath:         os.Getenv(common.EnvDataPath), // optional
		LogLevel:         getEnvOrDefault(common.EnvLogLevel, common.DefaultLogLevel),
		LogFormat:        getEnvOrDefault(common.EnvLogFormat, common.DefaultLogFormat),
		ModelLoadTimeout: getDurationOrDefault(common.EnvModelLoadTimeout, common.DefaultModelLoadTimeout),
		RequestTimeout:   getDurationOrDefault(common.EnvRequestTimeout, common.DefaultRequestTimeout),
		ShutdownTimeout:  getDurationOrDefault(common.EnvShutdownTimeout, common.DefaultShutdownTimeout),
		MinModelAccuracy: getFloatOrDefault(common.EnvMinModelAccuracy, common.DefaultMinModelAccuracy),
		JWT: JWTSettings{
			Algorithm:  strings.ToUpper(getEnvOrDefault(common.EnvJWTAlgorithm, common.DefaultJWTAlgorithm)),
			PrivateKey: os.Getenv(common.EnvJWTPrivateKey),
			PublicKey:  os.Getenv(common.EnvJWTPublicKey),
			Secret:     os.Getenv(common.EnvJWTSecret),
			Issuer:     getEnvOrDefault(common.EnvJWTIssuer, common.DefaultJWTIssuer),
			Expiration: getMinutesOrDefault(common.EnvJWTExpireMinutes, common.DefaultJWTExpiration),
		},
		StreamEnabled: getBoolOrDefault(common.EnvStreamEnabled, true),
	}

	var err error
	settings.RateLimits, err = parseRateLimits(
		getEnvOrDefault(common.EnvRateLimitDefault, common.DefaultRateLimitDefault),
		getEnvOrDefault(common.EnvRateLimitPredict, common.DefaultRateLimitPredict),
		getEnvOrDefault(common.EnvRateLimitHealth, common.DefaultRateLimitHealth),
	)
	if err != nil {
		return Settings{}, common.NewConfigurationError("invalid rate limit", err)
	}

	if err := finish(&settings); err != nil {
		return Settings{}, err
	}
	return settings, nil
}

// finish resolves key file references and validates the result.
func finish(settings *Settings) error {
	var err error
	if settings.JWT.PrivateKey, err = resolvePEM(settings.JWT.PrivateKey); err != nil {
		return common.NewConfigurationError("cannot read JWT private key", err)
	}
	if settings.JWT.PublicKey, err = resolvePEM(settings.JWT.PublicKey); err != nil {
		return common.NewConfigurationError("cannot read JWT public key", err)
	}
	if err := validateSettings(settings); err != nil {
		return common.NewConfigurationError("configuration validation failed", err)
	}
	return nil
}

// Addr is the listen address of the HTTP server.
func (s *Settings) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func (s *Settings) IsProduction() bool {
	return strings.EqualFold(s.Environment, "production")
}

func orDefault(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		// plain numbers are seconds
		if secs, err := strconv.ParseFloat(v, 64); err == nil {
			return time.Duration(secs * float64(time.Second))
		}
	}
	return defaultValue
}

func getMinutesOrDefault(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if m, err := strconv.Atoi(v); err == nil {
			return time.Duration(m) * time.Minute
		}
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}

func getIntFromEnvOrConfig(key string, configValue, defaultValue int) int {
	if configValue != 0 {
		defaultValue = configValue
	}
	return getIntOrDefault(key, defaultValue)
}

func getFloatFromEnvOrConfig(key string, configValue, defaultValue float64) float64 {
	if configValue != 0 {
		defaultValue = configValue
	}
	return getFloatOrDefault(key, defaultValue)
}

func getDurationFromEnvOrConfig(key, configValue string, defaultValue time.Duration) time.Duration {
	if configValue != "" {
		if d, err := time.ParseDuration(configValue); err == nil {
			defaultValue = d
		}
	}
	return getDurationOrDefault(key, defaultValue)
}

// validateSettings performs comprehensive validation of configuration values
func validateSettings(settings *Settings) error {
	if settings.ModelsPath == "" {
		return errors.New(common.ErrMsgModelsPathRequired)
	}
	if settings.Host == "" {
		return errors.New("host cannot be empty")
	}
	if settings.Port < common.MinPort || settings.Port > common.MaxPort {
		return fmt.Errorf("port must be between %d and %d, got %d", common.MinPort, common.MaxPort, settings.Port)
	}

	switch strings.ToLower(settings.LogLevel) {
	case "trace", "debug", "info", "warn", "error", "fatal", "panic", "disabled":
	default:
		return fmt.Errorf("unknown log level %q", settings.LogLevel)
	}
	if settings.LogFormat != "json" && settings.LogFormat != "console" {
		return fmt.Errorf("log format must be json or console, got %q", settings.LogFormat)
	}

	if settings.ModelLoadTimeout <= 0 || settings.ModelLoadTimeout > common.MaxModelLoadTimeout {
		return fmt.Errorf("model load timeout must be between 0 and %v, got %v", common.MaxModelLoadTimeout, settings.ModelLoadTimeout)
	}
	if settings.RequestTimeout < time.Second || settings.RequestTimeout > 5*time.Minute {
		return fmt.Errorf("request timeout must be between 1s and 5m, got %v", settings.RequestTimeout)
	}
	if settings.ShutdownTimeout < time.Second || settings.ShutdownTimeout > 5*time.Minute {
		return fmt.Errorf("shutdown timeout must be between 1s and 5m, got %v", settings.ShutdownTimeout)
	}
	if settings.MinModelAccuracy < 0 || settings.MinModelAccuracy > 1 {
		return fmt.Errorf("min model accuracy must be between 0 and 1, got %f", settings.MinModelAccuracy)
	}

	if err := validateJWT(&settings.JWT); err != nil {
		return err
	}

	for name, rl := range map[string]RateLimit{
		"default":     settings.RateLimits.Default,
		"predictions": settings.RateLimits.Predictions,
		"health":      settings.RateLimits.Health,
	} {
		if rl.Requests <= 0 || rl.Per <= 0 {
			return fmt.Errorf("rate limit %s must allow at least one request per period", name)
		}
	}

	return nil
}

func validateJWT(j *JWTSettings) error {
	switch j.Algorithm {
	case "RS256":
		if j.PublicKey == "" {
			return errors.New(common.ErrMsgJWTKeysRequired)
		}
	case "HS256":
		if j.Secret == "" {
			return errors.New(common.ErrMsgJWTKeysRequired)
		}
		if len(j.Secret) < 32 {
			return errors.New("JWT secret must be at least 32 bytes")
		}
	default:
		return fmt.Errorf("unsupported JWT algorithm %q", j.Algorithm)
	}
	if j.Issuer == "" {
		return errors.New("JWT issuer cannot be empty")
	}
	if j.Expiration < time.Minute || j.Expiration > 24*time.Hour {
		return fmt.Errorf("JWT expiration must be between 1m and 24h, got %v", j.Expiration)
	}
	return nil
}
