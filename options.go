package andromem

import "go.uber.org/zap"

// Config holds the runtime knobs OpenLibrary/OpenLibraryBytes accept,
// mirroring the flags cmd/andromem already exposes.
type Config struct {
	logger     *zap.Logger
	dlopenHook dlopenHook
}

// Option configures a library load. See WithLogger and WithDlopenHook.
type Option func(*Config)

func defaultConfig() *Config {
	return &Config{
		dlopenHook: defaultDlopenHook{},
	}
}

// WithLogger attaches a zap logger to this load. A successful load logs one
// Debug summary (image base, relocations applied and undefined), plus one
// Warn with the count when any relocation fell back to the undefined-symbol
// sentinel; load failure is logged at Error. Segment layout and individual
// relocations are not logged.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithDlopenHook overrides how the guest library's own dlopen/dlsym/dlclose
// calls are re-entered. The default re-enters this package's own
// OpenLibrary, LookupSymbol, and Close.
func WithDlopenHook(hook dlopenHook) Option {
	return func(c *Config) {
		if hook != nil {
			c.dlopenHook = hook
		}
	}
}
