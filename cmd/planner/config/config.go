// Package config provides configuration parsing for the planner.
//
// It handles both command-line flags and environment variables, with flags
// taking precedence. The Config struct contains all runtime configuration:
//   - Queue identification and collector settings
//   - Forecast parameters (horizon, step, window, seasonal period)
//   - Safety policy (worker bounds, step size, cooldown, hysteresis)
//   - SLO targets (wait time, backlog, drain time, error budget)
//   - Cost rates, storage backend, logging, and TLS
//
// Supported configuration sources (in order of precedence):
//  1. Command-line flags
//  2. Environment variables
//  3. Default values
package config

import (
	"flag"
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/HatiCode/queuecap/pkg/tls"
)

// Config holds all planner configuration.
type Config struct {
	Listen    string
	LogFormat string
	LogLevel  string

	Storage       string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTTL      time.Duration
	TLS           tls.Config

	// Queue is the worker pool this planner instance evaluates.
	Queue string

	// Collector selects the metrics source: prometheus or http.
	Collector string

	// PromURL and the three queries drive the prometheus collector. The
	// rate query is required; workers and backlog queries are optional and
	// default the snapshot fields to zero when unset.
	PromURL      string
	RateQuery    string
	WorkersQuery string
	BacklogQuery string

	// CollectorConfig carries generic http collector settings from
	// COLLECTOR_* environment variables (url, ratePath, timestampPath, ...).
	CollectorConfig map[string]string

	Horizon  time.Duration
	Step     time.Duration
	Interval time.Duration
	Window   time.Duration

	// SeasonalPeriod is the Holt-Winters period in steps; 0 disables the
	// seasonal model.
	SeasonalPeriod int
	SafetyMargin   float64

	MinWorkers           int
	MaxWorkers           int
	MaxStepSize          int
	MaxPlanDelta         int
	Cooldown             time.Duration
	ScaleUpUtilization   float64
	ScaleDownUtilization float64
	ConfidenceThreshold  float64

	// ServiceTime is the assumed mean per-job service time; ServiceTimeStd
	// feeds the M/G/c correction. Both can be overridden per snapshot when
	// the metrics source reports them.
	ServiceTime    time.Duration
	ServiceTimeStd time.Duration

	TargetWait   time.Duration
	MaxBacklog   int
	MaxDrainTime time.Duration
	ErrorBudget  float64

	WorkerCostPerHour    float64
	ViolationCostPerHour float64

	SimSeed int64
}

// ParseFlags parses command-line flags and environment variables into a
// Config. Environment variables are used as fallbacks when flags are not
// provided. Each planner instance manages a single queue.
func ParseFlags() *Config {
	cfg := &Config{}

	flag.StringVar(&cfg.Listen, "listen", getEnv("LISTEN", ":8082"), "HTTP listen address")

	flag.StringVar(&cfg.LogFormat, "log-format", getEnv("LOG_FORMAT", "text"), "Log format: text or json")
	flag.StringVar(&cfg.LogLevel, "log-level", getEnv("LOG_LEVEL", "info"), "Log level: debug, info, warn, error")

	flag.StringVar(&cfg.Storage, "storage", getEnv("STORAGE", "memory"), "Storage backend: memory or redis")
	flag.StringVar(&cfg.RedisAddr, "redis-addr", getEnv("REDIS_ADDR", "localhost:6379"), "Redis server address")
	flag.StringVar(&cfg.RedisPassword, "redis-password", getEnv("REDIS_PASSWORD", ""), "Redis password")
	flag.IntVar(&cfg.RedisDB, "redis-db", getEnvInt("REDIS_DB", 0), "Redis database number")
	flag.DurationVar(&cfg.RedisTTL, "redis-ttl", getEnvDuration("REDIS_TTL", 30*time.Minute), "Redis plan TTL")

	flag.BoolVar(&cfg.TLS.Enabled, "tls-enabled", getEnvBool("TLS_ENABLED", false), "Enable TLS for HTTP server")
	flag.StringVar(&cfg.TLS.CertFile, "tls-cert-file", getEnv("TLS_CERT_FILE", ""), "TLS certificate file")
	flag.StringVar(&cfg.TLS.KeyFile, "tls-key-file", getEnv("TLS_KEY_FILE", ""), "TLS private key file")
	flag.StringVar(&cfg.TLS.CAFile, "tls-ca-file", getEnv("TLS_CA_FILE", ""), "TLS CA certificate file for client verification")

	flag.StringVar(&cfg.Queue, "queue", getEnv("QUEUE", ""), "Queue name (required)")
	flag.StringVar(&cfg.Collector, "collector", getEnv("COLLECTOR", "prometheus"), "Metrics collector: prometheus or http")
	flag.StringVar(&cfg.PromURL, "prom-url", getEnv("PROM_URL", ""), "Prometheus server URL")
	flag.StringVar(&cfg.RateQuery, "rate-query", getEnv("RATE_QUERY", ""), "PromQL query for the arrival rate (jobs/sec)")
	flag.StringVar(&cfg.WorkersQuery, "workers-query", getEnv("WORKERS_QUERY", ""), "PromQL query for the current worker count")
	flag.StringVar(&cfg.BacklogQuery, "backlog-query", getEnv("BACKLOG_QUERY", ""), "PromQL query for the queue backlog")

	flag.DurationVar(&cfg.Horizon, "horizon", getEnvDuration("HORIZON", 30*time.Minute), "Plan horizon")
	flag.DurationVar(&cfg.Step, "step", getEnvDuration("STEP", 1*time.Minute), "Forecast and simulation step size")
	flag.DurationVar(&cfg.Interval, "interval", getEnvDuration("INTERVAL", 30*time.Second), "Evaluation loop interval")
	flag.DurationVar(&cfg.Window, "window", getEnvDuration("WINDOW", 2*time.Hour), "Historical window")
	flag.IntVar(&cfg.SeasonalPeriod, "seasonal-period", getEnvInt("SEASONAL_PERIOD", 0), "Holt-Winters seasonal period in steps (0 disables)")
	flag.Float64Var(&cfg.SafetyMargin, "safety-margin", getEnvFloat("SAFETY_MARGIN", 0.15), "Headroom applied to the forecast peak")

	flag.IntVar(&cfg.MinWorkers, "min", getEnvInt("MIN_WORKERS", 1), "Minimum workers")
	flag.IntVar(&cfg.MaxWorkers, "max", getEnvInt("MAX_WORKERS", 100), "Maximum workers")
	flag.IntVar(&cfg.MaxStepSize, "max-step", getEnvInt("MAX_STEP_SIZE", 15), "Max workers changed per scaling step")
	flag.IntVar(&cfg.MaxPlanDelta, "max-plan-delta", getEnvInt("MAX_PLAN_DELTA", 0), "Max workers moved per plan (0 = unbounded)")
	flag.DurationVar(&cfg.Cooldown, "cooldown", getEnvDuration("COOLDOWN", 5*time.Minute), "Minimum time between scaling actions")
	flag.Float64Var(&cfg.ScaleUpUtilization, "scale-up-util", getEnvFloat("SCALE_UP_UTIL", 0.80), "Utilization above which scale-up proceeds")
	flag.Float64Var(&cfg.ScaleDownUtilization, "scale-down-util", getEnvFloat("SCALE_DOWN_UTIL", 0.60), "Utilization below which scale-down proceeds")
	flag.Float64Var(&cfg.ConfidenceThreshold, "confidence-threshold", getEnvFloat("CONFIDENCE_THRESHOLD", 0.85), "Minimum confidence for auto-apply")

	flag.DurationVar(&cfg.ServiceTime, "service-time", getEnvDuration("SERVICE_TIME", 0), "Mean per-job service time (required unless reported by metrics)")
	flag.DurationVar(&cfg.ServiceTimeStd, "service-time-std", getEnvDuration("SERVICE_TIME_STD", 0), "Service time standard deviation (0 assumes exponential)")

	flag.DurationVar(&cfg.TargetWait, "target-wait", getEnvDuration("TARGET_WAIT", 2*time.Second), "SLO target p95 queueing delay")
	flag.IntVar(&cfg.MaxBacklog, "max-backlog", getEnvInt("MAX_BACKLOG", 0), "SLO max acceptable backlog (0 disables)")
	flag.DurationVar(&cfg.MaxDrainTime, "max-drain-time", getEnvDuration("MAX_DRAIN_TIME", 0), "SLO max backlog drain time (0 disables)")
	flag.Float64Var(&cfg.ErrorBudget, "error-budget", getEnvFloat("ERROR_BUDGET", 0), "Tolerated fraction of horizon in breach")

	flag.Float64Var(&cfg.WorkerCostPerHour, "worker-cost", getEnvFloat("WORKER_COST", 0), "Cost of one worker per hour")
	flag.Float64Var(&cfg.ViolationCostPerHour, "violation-cost", getEnvFloat("VIOLATION_COST", 0), "Cost of one hour in SLO breach")

	flag.Int64Var(&cfg.SimSeed, "sim-seed", int64(getEnvInt("SIM_SEED", 1)), "Simulation random seed")

	flag.Parse()

	cfg.CollectorConfig = parseCollectorConfig()

	if cfg.Queue == "" {
		fmt.Fprintln(os.Stderr, "Error: --queue is required")
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	return cfg
}

var queueNameRegex = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9_-]{0,251}[a-zA-Z0-9])?$`)

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	if !queueNameRegex.MatchString(c.Queue) {
		return fmt.Errorf("invalid queue name %q", c.Queue)
	}
	if c.MinWorkers < 1 {
		return fmt.Errorf("min workers must be >= 1, got %d", c.MinWorkers)
	}
	if c.MaxWorkers < c.MinWorkers {
		return fmt.Errorf("max workers (%d) must be >= min workers (%d)", c.MaxWorkers, c.MinWorkers)
	}
	if c.TargetWait <= 0 {
		return fmt.Errorf("target wait must be positive, got %s", c.TargetWait)
	}
	switch c.Collector {
	case "prometheus":
		if c.PromURL == "" || c.RateQuery == "" {
			return fmt.Errorf("prometheus collector requires --prom-url and --rate-query")
		}
	case "http":
		if c.CollectorConfig["url"] == "" {
			return fmt.Errorf("http collector requires COLLECTOR_URL")
		}
	default:
		return fmt.Errorf("unknown collector %q", c.Collector)
	}
	if c.Storage != "memory" && c.Storage != "redis" {
		return fmt.Errorf("unknown storage backend %q", c.Storage)
	}
	return c.TLS.Validate()
}

// parseCollectorConfig parses COLLECTOR_* environment variables into a
// generic configuration map for the http collector. Variable names are
// converted to camelCase keys (COLLECTOR_RATE_PATH -> ratePath).
func parseCollectorConfig() map[string]string {
	config := make(map[string]string)

	for _, env := range os.Environ() {
		if len(env) > 10 && env[:10] == "COLLECTOR_" {
			parts := splitEnv(env)
			if len(parts) == 2 {
				key := toLowerCamelCase(parts[0][10:])
				config[key] = parts[1]
			}
		}
	}

	return config
}

func splitEnv(env string) []string {
	for i := 0; i < len(env); i++ {
		if env[i] == '=' {
			return []string{env[:i], env[i+1:]}
		}
	}
	return []string{env}
}

func toLowerCamelCase(s string) string {
	if s == "" {
		return s
	}
	parts := []rune(s)
	result := make([]rune, 0, len(parts))
	nextUpper := false
	for i, r := range parts {
		if r == '_' {
			nextUpper = true
			continue
		}
		if i == 0 {
			result = append(result, toLower(r))
		} else if nextUpper {
			result = append(result, r)
			nextUpper = false
		} else {
			result = append(result, toLower(r))
		}
	}
	return string(result)
}

func toLower(r rune) rune {
	if r >= 'A' && r <= 'Z' {
		return r + 32
	}
	return r
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var i int
		if _, err := fmt.Sscanf(value, "%d", &i); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		var f float64
		if _, err := fmt.Sscanf(value, "%f", &f); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}
