package testsupport

import (
	"path/filepath"
	"testing"
	"time"

	"extracto/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.LLM.APIKey = "test"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithLLMBaseURL points the LLM client at an alternate endpoint, usually an
// httptest server.
func WithLLMBaseURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.LLM.BaseURL = url
	}
}

// WithWorkerIntervals shortens the worker timing knobs so loop tests finish
// quickly.
func WithWorkerIntervals(poll, errorRetry, heartbeat, heartbeatTimeout time.Duration) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Worker.PollInterval = int(poll / time.Second)
		b.cfg.Worker.ErrorRetryInterval = int(errorRetry / time.Second)
		b.cfg.Worker.HeartbeatInterval = int(heartbeat / time.Second)
		b.cfg.Worker.HeartbeatTimeout = int(heartbeatTimeout / time.Second)
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
