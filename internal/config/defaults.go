package config

const (
	defaultDataDir            = "~/.local/share/tunesync"
	defaultLogDir             = "~/.local/share/tunesync/logs"
	defaultAPIBind            = "127.0.0.1:7612"
	defaultBridgeCommand      = "spotify-bridge"
	defaultBridgeStartup      = 10
	defaultLLMBaseURL         = "https://openrouter.ai/api/v1/chat/completions"
	defaultLLMModel           = "openai/gpt-4o-mini"
	defaultLLMTitle           = "Tunesync Disambiguator"
	defaultLLMTimeoutSeconds  = 60
	defaultMatchThreshold     = 0.85
	defaultSearchLimit        = 10
	defaultMaxConcurrentRuns  = 4
	defaultRunDeadlineSeconds = 600
	defaultStepTimeoutSeconds = 30
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		Bridge: Bridge{
			Command:        defaultBridgeCommand,
			StartupSeconds: defaultBridgeStartup,
		},
		LLM: LLM{
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			Title:          defaultLLMTitle,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
		},
		Sync: Sync{
			MatchThreshold:     defaultMatchThreshold,
			SearchLimit:        defaultSearchLimit,
			MaxConcurrentRuns:  defaultMaxConcurrentRuns,
			RunDeadlineSeconds: defaultRunDeadlineSeconds,
			StepTimeoutSeconds: defaultStepTimeoutSeconds,
			Disambiguation:     true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
