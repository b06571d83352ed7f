package music_player

import "time"

// Config holds the music player module configuration.
type Config struct {
	CacheDir       string        `env:"MUSIC_CACHE_DIR" envDefault:"music_cache"`
	CacheBudgetMB  int64         `env:"MUSIC_CACHE_BUDGET_MB" envDefault:"512"`
	IdleTimeout    time.Duration `env:"MUSIC_IDLE_TIMEOUT" envDefault:"30m"`
	CommandTimeout time.Duration `env:"MUSIC_COMMAND_TIMEOUT" envDefault:"45s"`
	ResolveRetries int           `env:"MUSIC_RESOLVE_RETRIES" envDefault:"3"`
}
