package config

const (
	defaultTrashDir          = "~/.local/share/trashcan"
	defaultLogDir            = "~/.local/share/trashcan/logs"
	defaultListen            = "127.0.0.1:7213"
	defaultAPIBind           = "127.0.0.1:7214"
	defaultReadTimeout       = 30
	defaultMaxRequestBytes   = 1 << 20
	defaultSweepSchedule     = "@every 1h"
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
	defaultLogRetentionDays  = 30
	defaultRetentionFileName = "config.conf"
)

// DefaultDeleteAfterDays applies when the retention file omits or garbles
// delete_after.
const DefaultDeleteAfterDays = 1

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			TrashDir: defaultTrashDir,
			LogDir:   defaultLogDir,
		},
		Daemon: Daemon{
			Listen:          defaultListen,
			APIBind:         defaultAPIBind,
			ReadTimeout:     defaultReadTimeout,
			MaxRequestBytes: defaultMaxRequestBytes,
			SweepSchedule:   defaultSweepSchedule,
			JournalEnabled:  true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
