package extension

import (
	"go.uber.org/zap"

	"github.com/xraph/tenure"
	"github.com/xraph/tenure/plugin"
	"github.com/xraph/tenure/store"
)

// Option configures the Tenure Forge extension.
type Option func(*Extension)

// WithStore sets the store for the tenure engine.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithEngineOption passes a tenure.Option through to the underlying engine.
func WithEngineOption(opt tenure.Option) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, opt)
	}
}

// WithPlugin registers a tenure plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, tenure.WithPlugin(p))
	}
}

// WithLogger sets the logger handed to the engine and the HTTP handler.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Extension) { e.logger = logger }
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithAuthority sets the voucher signing authority.
func WithAuthority(addr string) Option {
	return func(e *Extension) { e.config.Authority = addr }
}

// WithDisableRoutes prevents HTTP route registration.
func WithDisableRoutes() Option {
	return func(e *Extension) { e.config.DisableRoutes = true }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithBasePath sets the URL prefix for tenure routes.
func WithBasePath(path string) Option {
	return func(e *Extension) { e.config.BasePath = path }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}
