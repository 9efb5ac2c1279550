// Package extension provides the Forge extension adapter for Tenure.
//
// It implements the forge.Extension interface to integrate Tenure
// into a Forge application with DI registration and lifecycle management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.tenure" or "tenure" keys.
package extension

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/xraph/forge"
	"github.com/xraph/vessel"
	"go.uber.org/zap"

	"github.com/xraph/tenure"
	"github.com/xraph/tenure/api"
	"github.com/xraph/tenure/store"
	"github.com/xraph/tenure/store/memory"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "tenure"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Voucher-issued time-bound subscription assets"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts Tenure as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config     Config
	engine     *tenure.Engine
	store      store.Store
	logger     *zap.Logger
	engineOpts []tenure.Option
}

// New creates a new Tenure Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying engine.
// This is nil until Register is called.
func (e *Extension) Engine() *tenure.Engine { return e.engine }

// Config returns the resolved configuration.
func (e *Extension) Config() Config { return e.config }

// Register implements [forge.Extension]. It loads configuration,
// initializes the engine, and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	if e.store == nil {
		e.store = memory.New()
	}

	opts, err := e.buildEngineOpts()
	if err != nil {
		return err
	}

	eng, err := tenure.New(e.store, opts...)
	if err != nil {
		return err
	}
	e.engine = eng

	return vessel.Provide(fapp.Container(), func() (*tenure.Engine, error) {
		return e.engine, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("tenure: extension not initialized")
	}

	if !e.config.DisableMigrate {
		if err := e.engine.Start(ctx); err != nil {
			return err
		}
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(ctx context.Context) error {
	if e.engine != nil {
		if err := e.engine.Stop(ctx); err != nil {
			e.MarkStopped()
			return err
		}
	}
	e.MarkStopped()
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("tenure: store not initialized")
	}
	return e.store.Ping(ctx)
}

// Handler returns the HTTP API mounted under BasePath, or nil when routes
// are disabled or the extension is not registered.
func (e *Extension) Handler() http.Handler {
	if e.engine == nil || e.config.DisableRoutes {
		return nil
	}
	opts := []api.Option{}
	if e.logger != nil {
		opts = append(opts, api.WithLogger(e.logger.Named("http")))
	}
	h := api.New(e.engine, opts...)
	return http.StripPrefix(strings.TrimSuffix(e.config.BasePath, "/"), h)
}

// buildEngineOpts constructs tenure.Option values from the resolved config.
func (e *Extension) buildEngineOpts() ([]tenure.Option, error) {
	opts := make([]tenure.Option, 0, len(e.engineOpts)+5)

	if e.config.Authority != "" {
		if !common.IsHexAddress(e.config.Authority) {
			return nil, tenure.ValidationError{Field: "authority", Message: "must be a hex address"}
		}
		opts = append(opts, tenure.WithAuthority(common.HexToAddress(e.config.Authority)))
	}
	if e.config.SystemAddress != "" {
		if !common.IsHexAddress(e.config.SystemAddress) {
			return nil, tenure.ValidationError{Field: "system_address", Message: "must be a hex address"}
		}
		opts = append(opts, tenure.WithSystemAddress(common.HexToAddress(e.config.SystemAddress)))
	}
	opts = append(opts,
		tenure.WithCurrency(e.config.Currency),
		tenure.WithFreshnessWindow(e.config.FreshnessWindow),
	)
	if e.logger != nil {
		opts = append(opts, tenure.WithLogger(e.logger))
	}

	// Pass-through options last so they win over config.
	opts = append(opts, e.engineOpts...)

	return opts, nil
}

// --- Config Loading ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("tenure: configuration is required but not found in config files; " +
				"ensure 'extensions.tenure' or 'tenure' key exists in your config")
		}
		e.config = mergeWithDefaults(programmaticConfig)
	} else {
		e.config = mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("tenure: configuration loaded",
		forge.F("authority", e.config.Authority),
		forge.F("currency", e.config.Currency),
		forge.F("freshness_window", e.config.FreshnessWindow),
		forge.F("disable_routes", e.config.DisableRoutes),
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("base_path", e.config.BasePath),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()

	for _, key := range []string{"extensions.tenure", "tenure"} {
		if !cm.IsSet(key) {
			continue
		}
		var cfg Config
		if err := cm.Bind(key, &cfg); err == nil {
			e.Logger().Debug("tenure: loaded config from file", forge.F("key", key))
			return cfg, true
		}
		e.Logger().Warn("tenure: failed to bind config",
			forge.F("key", key),
			forge.F("error", "bind failed"),
		)
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.Currency == "" {
		cfg.Currency = defaults.Currency
	}
	if cfg.FreshnessWindow == 0 {
		cfg.FreshnessWindow = defaults.FreshnessWindow
	}
	if cfg.BasePath == "" {
		cfg.BasePath = defaults.BasePath
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence; programmatic values fill gaps.
func mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	if programmaticConfig.DisableRoutes {
		yamlConfig.DisableRoutes = true
	}
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}

	if yamlConfig.Authority == "" {
		yamlConfig.Authority = programmaticConfig.Authority
	}
	if yamlConfig.SystemAddress == "" {
		yamlConfig.SystemAddress = programmaticConfig.SystemAddress
	}
	if yamlConfig.Currency == "" {
		yamlConfig.Currency = programmaticConfig.Currency
	}
	if yamlConfig.BasePath == "" {
		yamlConfig.BasePath = programmaticConfig.BasePath
	}
	if yamlConfig.FreshnessWindow == 0 {
		yamlConfig.FreshnessWindow = programmaticConfig.FreshnessWindow
	}

	return mergeWithDefaults(yamlConfig)
}
