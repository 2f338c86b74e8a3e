package config

import (
	"os"
	"testing"
	"time"
)

func TestGetEnv(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue string
		envValue     string
		want         string
	}{
		{
			name:         "environment variable set",
			key:          "TEST_VAR",
			defaultValue: "default",
			envValue:     "from-env",
			want:         "from-env",
		},
		{
			name:         "environment variable not set",
			key:          "NONEXISTENT_VAR",
			defaultValue: "default",
			envValue:     "",
			want:         "default",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				os.Setenv(tt.key, tt.envValue)
				defer os.Unsetenv(tt.key)
			}

			got := getEnv(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnv() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGetEnvDuration(t *testing.T) {
	os.Setenv("TEST_DUR", "5m")
	defer os.Unsetenv("TEST_DUR")

	if got := getEnvDuration("TEST_DUR", time.Minute); got != 5*time.Minute {
		t.Errorf("getEnvDuration() = %v, want 5m", got)
	}
	if got := getEnvDuration("MISSING_DUR", time.Minute); got != time.Minute {
		t.Errorf("getEnvDuration() default = %v, want 1m", got)
	}

	os.Setenv("TEST_DUR", "not-a-duration")
	if got := getEnvDuration("TEST_DUR", time.Minute); got != time.Minute {
		t.Errorf("getEnvDuration() invalid = %v, want fallback 1m", got)
	}
}

func validConfig() *Config {
	return &Config{
		Queue:      "payments",
		Collector:  "prometheus",
		PromURL:    "http://prometheus:9090",
		RateQuery:  "sum(rate(jobs_enqueued_total[1m]))",
		Storage:    "memory",
		MinWorkers: 1,
		MaxWorkers: 100,
		TargetWait: 2 * time.Second,
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *Config) {}, wantErr: false},
		{name: "bad queue name", mutate: func(c *Config) { c.Queue = "bad queue!" }, wantErr: true},
		{name: "min below one", mutate: func(c *Config) { c.MinWorkers = 0 }, wantErr: true},
		{name: "max below min", mutate: func(c *Config) { c.MaxWorkers = 0 }, wantErr: true},
		{name: "zero target wait", mutate: func(c *Config) { c.TargetWait = 0 }, wantErr: true},
		{name: "prometheus without url", mutate: func(c *Config) { c.PromURL = "" }, wantErr: true},
		{name: "unknown collector", mutate: func(c *Config) { c.Collector = "kafka" }, wantErr: true},
		{name: "unknown storage", mutate: func(c *Config) { c.Storage = "postgres" }, wantErr: true},
		{
			name: "http collector with url",
			mutate: func(c *Config) {
				c.Collector = "http"
				c.CollectorConfig = map[string]string{"url": "http://example.com"}
			},
			wantErr: false,
		},
		{
			name:    "http collector without url",
			mutate:  func(c *Config) { c.Collector = "http" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseCollectorConfig(t *testing.T) {
	os.Setenv("COLLECTOR_RATE_PATH", "points.#.rate")
	os.Setenv("COLLECTOR_URL", "http://example.com")
	defer os.Unsetenv("COLLECTOR_RATE_PATH")
	defer os.Unsetenv("COLLECTOR_URL")

	got := parseCollectorConfig()
	if got["ratePath"] != "points.#.rate" {
		t.Errorf("ratePath = %q, want points.#.rate", got["ratePath"])
	}
	if got["url"] != "http://example.com" {
		t.Errorf("url = %q, want http://example.com", got["url"])
	}
}
