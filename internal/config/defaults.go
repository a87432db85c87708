package config

const (
	defaultOutputDir       = "~/lectern"
	defaultWorkDir         = "~/.local/share/lectern/work"
	defaultLogDir          = "~/.local/share/lectern/logs"
	defaultLockDir         = "~/.local/share/lectern/locks"
	defaultMaxVideoMinutes = 240
	defaultNetworkTimeout  = 60
	defaultDownloadPerMin  = 30
	defaultDownloadFormat  = "bestvideo[ext=mp4]+bestaudio[ext=m4a]/best[ext=mp4]/best"
	defaultInterval        = 5.0
	defaultThreshold       = 0.85
	defaultJPEGQuality     = 85
	defaultFrameFailurePct = 0.10
	defaultOCRFailurePct   = 0.20
	defaultOCRConfidence   = 0.6
	defaultWhisperModel    = "base"
	defaultWhisperPerMin   = 60
	defaultVerifyModel     = "gemini-2.0-flash"
	defaultVerifyTimeout   = 30
	defaultNtfyTimeout     = 10
	defaultReportFormat    = "markdown"
	defaultRetryAttempts   = 3
	defaultBackoffBase     = 2
	defaultBackoffCeiling  = 60
	defaultLogFormat       = "console"
	defaultLogLevel        = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			OutputDir: defaultOutputDir,
			WorkDir:   defaultWorkDir,
			LogDir:    defaultLogDir,
			LockDir:   defaultLockDir,
		},
		Download: Download{
			MaxVideoMinutes:  defaultMaxVideoMinutes,
			NetworkTimeout:   defaultNetworkTimeout,
			TimeoutPerMinute: defaultDownloadPerMin,
			Format:           defaultDownloadFormat,
		},
		Extraction: Extraction{
			IntervalSeconds:     defaultInterval,
			SimilarityThreshold: defaultThreshold,
			JPEGQuality:         defaultJPEGQuality,
			MaxFrameFailurePct:  defaultFrameFailurePct,
		},
		OCR: OCR{
			Languages:           []string{"eng"},
			ConfidenceThreshold: defaultOCRConfidence,
			MaxFailurePct:       defaultOCRFailurePct,
		},
		Transcription: Transcription{
			Enabled:          true,
			Model:            defaultWhisperModel,
			TimeoutPerMinute: defaultWhisperPerMin,
		},
		Verification: Verification{
			Enabled:        false,
			Model:          defaultVerifyModel,
			TimeoutSeconds: defaultVerifyTimeout,
		},
		Notifications: Notifications{
			TimeoutSeconds: defaultNtfyTimeout,
		},
		Report: Report{
			Format:          defaultReportFormat,
			IncludeTimeline: true,
		},
		Retry: Retry{
			MaxAttempts:    defaultRetryAttempts,
			BackoffBase:    defaultBackoffBase,
			BackoffCeiling: defaultBackoffCeiling,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
