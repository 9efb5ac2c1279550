package extension

import "time"

// Config holds the Tenure extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.tenure" or "tenure" keys).
type Config struct {
	// Authority is the hex address whose signatures vouchers must carry.
	Authority string `json:"authority" mapstructure:"authority" yaml:"authority"`

	// SystemAddress is the hex address vouchers are bound to. Defaults to
	// the zero address.
	SystemAddress string `json:"system_address" mapstructure:"system_address" yaml:"system_address"`

	// Currency is the currency prices are denominated in (default: "wei").
	Currency string `json:"currency" mapstructure:"currency" yaml:"currency"`

	// FreshnessWindow bounds how long after issuance a voucher may be
	// redeemed (default: 5m).
	FreshnessWindow time.Duration `json:"freshness_window" mapstructure:"freshness_window" yaml:"freshness_window"`

	// DisableRoutes prevents HTTP route registration.
	DisableRoutes bool `json:"disable_routes" mapstructure:"disable_routes" yaml:"disable_routes"`

	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// BasePath is the URL prefix for tenure routes (default: "/tenure").
	BasePath string `json:"base_path" mapstructure:"base_path" yaml:"base_path"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Currency:        "wei",
		FreshnessWindow: 5 * time.Minute,
		BasePath:        "/tenure",
	}
}
