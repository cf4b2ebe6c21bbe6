package config

const (
	defaultDataDir            = "~/.local/share/extracto"
	defaultLogDir             = "~/.local/share/extracto/logs"
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
	defaultLLMBaseURL         = "https://api.openai.com/v1/chat/completions"
	defaultLLMModel           = "gpt-4o-mini"
	defaultLLMTimeoutSeconds  = 120
	defaultPollInterval       = 30
	defaultErrorRetryInterval = 10
	defaultHeartbeatInterval  = 15
	defaultHeartbeatTimeout   = 300
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
		},
		LLM: LLM{
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
		},
		Worker: Worker{
			PollInterval:       defaultPollInterval,
			ErrorRetryInterval: defaultErrorRetryInterval,
			HeartbeatInterval:  defaultHeartbeatInterval,
			HeartbeatTimeout:   defaultHeartbeatTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
