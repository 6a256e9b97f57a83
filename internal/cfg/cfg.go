package cfg

import (
	"errors"
	"flag"
	"fmt"
)

// Backend names accepted by -vqa-backend.
const (
	BackendInferHTTP = "inferhttp"
	BackendClaude    = "claude"
	BackendStatic    = "static"
)

// Config holds application settings. It satisfies the go-core
// cfg.Registerable and cfg.Validatable interfaces.
type Config struct {
	DrainSeconds          int
	ShutdownBudgetSeconds int
	APIPort               int
	APIToken              string

	Backend         string
	InferenceURL    string
	VQAModel        string
	ClaudeAPIKey    string
	ClaudeModel     string
	StaticAnswer    string
	ForcePortable   bool
	QuestionTimeout int
	RequestTimeout  int
	Workers         int
	CacheCapacity   int
	RulesFile       string

	DatabaseURL     string
	DBMaxConns      int
	SlowQueryMillis int
	MemstoreLimit   int
	SlackWebhookURL string
}

// RegisterFlags binds Config fields to the given FlagSet with defaults inline
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.DrainSeconds, "drain-seconds", 60, "seconds to wait for in-flight requests to drain before shutdown (1..300)")
	fs.IntVar(&c.ShutdownBudgetSeconds, "shutdown-budget-seconds", 90, "total seconds for component shutdown after drain (1..300)")
	fs.IntVar(&c.APIPort, "http-port", 8080, "API listen TCP port (1..65535)")
	fs.StringVar(&c.APIToken, "api-token", "", "bearer token required on /api routes (empty = no auth)")

	fs.StringVar(&c.Backend, "vqa-backend", BackendInferHTTP, "model backend: inferhttp, claude or static")
	fs.StringVar(&c.InferenceURL, "inference-url", "http://127.0.0.1:8000", "base URL of the VQA inference server (inferhttp backend)")
	fs.StringVar(&c.VQAModel, "vqa-model", "Salesforce/blip-vqa-base", "model loaded by the inference server (inferhttp backend)")
	fs.StringVar(&c.ClaudeAPIKey, "claude-api-key", "", "API key for the Claude backend")
	fs.StringVar(&c.ClaudeModel, "claude-model", "claude-sonnet-4-20250514", "Claude model to use (claude backend)")
	fs.StringVar(&c.StaticAnswer, "static-answer", "no", "answer given to every question by the static backend")
	fs.BoolVar(&c.ForcePortable, "force-portable", false, "skip the accelerated model load and start in portable mode")
	fs.IntVar(&c.QuestionTimeout, "question-timeout-seconds", 30, "timeout for a single model call (1..600)")
	fs.IntVar(&c.RequestTimeout, "request-timeout-seconds", 300, "timeout for a whole analysis including the wait for a worker (1..3600)")
	fs.IntVar(&c.Workers, "workers", 4, "concurrent analyses (1..64)")
	fs.IntVar(&c.CacheCapacity, "cache-capacity", 10, "answer cache capacity in phase bundles (1..10000)")
	fs.StringVar(&c.RulesFile, "rules-file", "", "YAML file with questions and keyword rules (empty = built-in rules)")

	fs.StringVar(&c.DatabaseURL, "database-url", "", "PostgreSQL connection URL (empty = in-memory store)")
	fs.IntVar(&c.DBMaxConns, "db-max-conns", 0, "maximum postgres pool connections (0 = pgx default)")
	fs.IntVar(&c.SlowQueryMillis, "db-slow-query-ms", 200, "log successful postgres queries slower than this many milliseconds (0 = log every query)")
	fs.IntVar(&c.MemstoreLimit, "memstore-limit", 10000, "run records kept by the in-memory store")
	fs.StringVar(&c.SlackWebhookURL, "slack-webhook-url", "", "Slack webhook URL for CRITICAL and HIGH notifications")
}

// Validate checks all configuration fields for correctness.
// It returns an error if any field is invalid, or nil if all fields are valid.
func (c *Config) Validate() error {
	var errs []error

	// Drain and shutdown budgets
	if c.DrainSeconds <= 0 || c.DrainSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid DRAIN_SECONDS %d (must be 1..300)", c.DrainSeconds))
	}
	if c.ShutdownBudgetSeconds <= 0 || c.ShutdownBudgetSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid SHUTDOWN_BUDGET_SECONDS %d (must be 1..300)", c.ShutdownBudgetSeconds))
	}

	// Shutdown budget must be greater than drain time
	if c.ShutdownBudgetSeconds <= c.DrainSeconds {
		errs = append(errs, fmt.Errorf("SHUTDOWN_BUDGET_SECONDS %d must be greater than DRAIN_SECONDS %d", c.ShutdownBudgetSeconds, c.DrainSeconds))
	}

	// API port must be valid TCP port number
	if c.APIPort <= 0 || c.APIPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.APIPort))
	}

	// Backend-specific requirements
	switch c.Backend {
	case BackendInferHTTP:
		if c.InferenceURL == "" {
			errs = append(errs, errors.New("INFERENCE_URL is required for the inferhttp backend"))
		}
		if c.VQAModel == "" {
			errs = append(errs, errors.New("VQA_MODEL is required for the inferhttp backend"))
		}
	case BackendClaude:
		if c.ClaudeAPIKey == "" {
			errs = append(errs, errors.New("CLAUDE_API_KEY is required for the claude backend"))
		}
		if c.ClaudeModel == "" {
			errs = append(errs, errors.New("CLAUDE_MODEL is required for the claude backend"))
		}
	case BackendStatic:
	default:
		errs = append(errs, fmt.Errorf("invalid VQA_BACKEND %q (must be inferhttp, claude or static)", c.Backend))
	}

	// Engine limits
	if c.QuestionTimeout <= 0 || c.QuestionTimeout > 600 {
		errs = append(errs, fmt.Errorf("invalid QUESTION_TIMEOUT_SECONDS %d (must be 1..600)", c.QuestionTimeout))
	}
	if c.RequestTimeout <= 0 || c.RequestTimeout > 3600 {
		errs = append(errs, fmt.Errorf("invalid REQUEST_TIMEOUT_SECONDS %d (must be 1..3600)", c.RequestTimeout))
	}
	if c.Workers <= 0 || c.Workers > 64 {
		errs = append(errs, fmt.Errorf("invalid WORKERS %d (must be 1..64)", c.Workers))
	}
	if c.CacheCapacity <= 0 || c.CacheCapacity > 10000 {
		errs = append(errs, fmt.Errorf("invalid CACHE_CAPACITY %d (must be 1..10000)", c.CacheCapacity))
	}

	// Storage
	if c.DBMaxConns < 0 {
		errs = append(errs, fmt.Errorf("invalid DB_MAX_CONNS %d (must be >= 0)", c.DBMaxConns))
	}
	if c.SlowQueryMillis < 0 {
		errs = append(errs, fmt.Errorf("invalid DB_SLOW_QUERY_MS %d (must be >= 0)", c.SlowQueryMillis))
	}
	if c.DatabaseURL == "" && c.MemstoreLimit <= 0 {
		errs = append(errs, fmt.Errorf("invalid MEMSTORE_LIMIT %d (must be >= 1)", c.MemstoreLimit))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
