package cfg

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"titanic-predictor/internal/common"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestLoadFromEnv(t *testing.T) {
	tests := []struct {
		name     string
		envVars  map[string]string
		wantErr  bool
		validate func(t *testing.T, settings Settings)
	}{
		{
			name: "defaults with HS256 secret",
			envVars: map[string]string{
				common.EnvJWTAlgorithm: "hs256",
				common.EnvJWTSecret:    testSecret,
			},
			validate: func(t *testing.T, settings Settings) {
				if settings.Host != common.DefaultHost || settings.Port != common.DefaultPort {
					t.Errorf("expected default address, got %s", settings.Addr())
				}
				if settings.ModelsPath != common.DefaultModelsPath {
					t.Errorf("expected default models path, got %s", settings.ModelsPath)
				}
				if settings.ModelLoadTimeout != 5*time.Second {
					t.Errorf("expected default load timeout 5s, got %v", settings.ModelLoadTimeout)
				}
				if settings.JWT.Algorithm != "HS256" {
					t.Errorf("expected algorithm to be upper-cased, got %s", settings.JWT.Algorithm)
				}
				if settings.JWT.Expiration != time.Hour {
					t.Errorf("expected default expiration 1h, got %v", settings.JWT.Expiration)
				}
				if settings.RateLimits.Predictions != (RateLimit{Requests: 50, Per: time.Minute}) {
					t.Errorf("unexpected predictions rate limit %v", settings.RateLimits.Predictions)
				}
				if !settings.StreamEnabled {
					t.Error("expected stream to be enabled by default")
				}
			},
		},
		{
			name: "custom values",
			envVars: map[string]string{
				common.EnvJWTAlgorithm:     "HS256",
				common.EnvJWTSecret:        testSecret,
				common.EnvPort:             "9000",
				common.EnvModelsPath:       "/srv/models",
				common.EnvModelLoadTimeout: "2.5",
				common.EnvJWTExpireMinutes: "15",
				common.EnvRateLimitPredict: "10/second",
				common.EnvStreamEnabled:    "false",
				common.EnvLogFormat:        "console",
			},
			validate: func(t *testing.T, settings Settings) {
				if settings.Port != 9000 {
					t.Errorf("expected port 9000, got %d", settings.Port)
				}
				if settings.ModelsPath != "/srv/models" {
					t.Errorf("expected models path /srv/models, got %s", settings.ModelsPath)
				}
				if settings.ModelLoadTimeout != 2500*time.Millisecond {
					t.Errorf("expected load timeout 2.5s, got %v", settings.ModelLoadTimeout)
				}
				if settings.JWT.Expiration != 15*time.Minute {
					t.Errorf("expected expiration 15m, got %v", settings.JWT.Expiration)
				}
				if settings.RateLimits.Predictions.Interval() != 100*time.Millisecond {
					t.Errorf("expected 100ms interval, got %v", settings.RateLimits.Predictions.Interval())
				}
				if settings.StreamEnabled {
					t.Error("expected stream to be disabled")
				}
			},
		},
		{
			name:    "RS256 without public key",
			envVars: map[string]string{},
			wantErr: true,
		},
		{
			name: "short HS256 secret",
			envVars: map[string]string{
				common.EnvJWTAlgorithm: "HS256",
				common.EnvJWTSecret:    "short",
			},
			wantErr: true,
		},
		{
			name: "invalid rate limit",
			envVars: map[string]string{
				common.EnvJWTAlgorithm:     "HS256",
				common.EnvJWTSecret:        testSecret,
				common.EnvRateLimitDefault: "lots",
			},
			wantErr: true,
		},
		{
			name: "privileged port",
			envVars: map[string]string{
				common.EnvJWTAlgorithm: "HS256",
				common.EnvJWTSecret:    testSecret,
				common.EnvPort:         "80",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearTestEnv(t)
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			settings, err := Load()
			if tt.wantErr && err == nil {
				t.Error("expected error but got none")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if tt.wantErr && err != nil {
				var cfgErr *common.ConfigurationError
				if !errors.As(err, &cfgErr) {
					t.Errorf("expected ConfigurationError, got %T", err)
				}
			}

			if !tt.wantErr && tt.validate != nil {
				tt.validate(t, settings)
			}
		})
	}
}

func TestLoadFromYAML(t *testing.T) {
	clearTestEnv(t)
	dir := t.TempDir()

	keyPath := filepath.Join(dir, "public.pem")
	pem := "-----BEGIN PUBLIC KEY-----\nabc\n-----END PUBLIC KEY-----\n"
	if err := os.WriteFile(keyPath, []byte(pem), 0o600); err != nil {
		t.Fatal(err)
	}

	config := `
service:
  environment: production
  port: 8100
  requestTimeout: 20s
  streamEnabled: false
models:
  path: ./artifacts
  loadTimeout: 3s
  minAccuracy: 0.75
auth:
  algorithm: RS256
  publicKey: ` + keyPath + `
  expireMinutes: 30
rateLimits:
  predictions: 5/second
system:
  logLevel: debug
`
	configPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(config), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(common.EnvConfigFile, configPath)
	t.Setenv(common.EnvPort, "8200") // env wins over file

	settings, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if settings.Port != 8200 {
		t.Errorf("expected env override port 8200, got %d", settings.Port)
	}
	if !settings.IsProduction() {
		t.Error("expected production environment")
	}
	if settings.ModelsPath != "./artifacts" {
		t.Errorf("expected models path from file, got %s", settings.ModelsPath)
	}
	if settings.ModelLoadTimeout != 3*time.Second || settings.RequestTimeout != 20*time.Second {
		t.Errorf("unexpected timeouts %v %v", settings.ModelLoadTimeout, settings.RequestTimeout)
	}
	if settings.MinModelAccuracy != 0.75 {
		t.Errorf("expected min accuracy 0.75, got %f", settings.MinModelAccuracy)
	}
	if settings.JWT.PublicKey != pem {
		t.Error("expected public key to be read from file")
	}
	if settings.JWT.Expiration != 30*time.Minute {
		t.Errorf("expected expiration 30m, got %v", settings.JWT.Expiration)
	}
	if settings.RateLimits.Predictions.Requests != 5 || settings.RateLimits.Default.Requests != 100 {
		t.Errorf("unexpected rate limits %+v", settings.RateLimits)
	}
	if settings.StreamEnabled {
		t.Error("expected stream disabled from file")
	}
	if settings.LogLevel != "debug" {
		t.Errorf("expected log level debug, got %s", settings.LogLevel)
	}
}

func TestLoadFromYAML_Errors(t *testing.T) {
	clearTestEnv(t)

	t.Run("missing file", func(t *testing.T) {
		t.Setenv(common.EnvConfigFile, filepath.Join(t.TempDir(), "absent.yaml"))
		if _, err := Load(); err == nil {
			t.Error("expected error for missing config file")
		}
	})

	t.Run("malformed yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		if err := os.WriteFile(path, []byte("service: [unclosed"), 0o644); err != nil {
			t.Fatal(err)
		}
		t.Setenv(common.EnvConfigFile, path)
		_, err := Load()
		if err == nil || !strings.Contains(err.Error(), "parse") {
			t.Errorf("expected parse error, got %v", err)
		}
	})

	t.Run("missing key file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		if err := os.WriteFile(path, []byte("auth:\n  publicKey: /nonexistent/key.pem\n"), 0o644); err != nil {
			t.Fatal(err)
		}
		t.Setenv(common.EnvConfigFile, path)
		if _, err := Load(); err == nil {
			t.Error("expected error for unreadable key file")
		}
	})
}

func TestParseRateLimit(t *testing.T) {
	tests := []struct {
		in      string
		want    RateLimit
		wantErr bool
	}{
		{"100/minute", RateLimit{100, time.Minute}, false},
		{"10/s", RateLimit{10, time.Second}, false},
		{" 3 / Hour ", RateLimit{3, time.Hour}, false},
		{"1000/day", RateLimit{1000, 24 * time.Hour}, false},
		{"100", RateLimit{}, true},
		{"0/minute", RateLimit{}, true},
		{"x/minute", RateLimit{}, true},
		{"5/fortnight", RateLimit{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseRateLimit(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseRateLimit(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseRateLimit(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

// clearTestEnv clears potentially conflicting environment variables
func clearTestEnv(t *testing.T) {
	envVars := []string{
		common.EnvConfigFile, common.EnvEnvironment, common.EnvHost, common.EnvPort,
		common.EnvModelsPath, common.EnvDataPath, common.EnvLogLevel, common.EnvLogFormat,
		common.EnvModelLoadTimeout, common.EnvRequestTimeout, common.EnvShutdownTimeout,
		common.EnvMinModelAccuracy, common.EnvJWTAlgorithm, common.EnvJWTPrivateKey,
		common.EnvJWTPublicKey, common.EnvJWTSecret, common.EnvJWTIssuer,
		common.EnvJWTExpireMinutes, common.EnvRateLimitDefault, common.EnvRateLimitPredict,
		common.EnvRateLimitHealth, common.EnvStreamEnabled,
	}

	for _, env := range envVars {
		t.Setenv(env, "")
	}
}
