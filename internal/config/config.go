// Package config loads runtime configuration for the epcd demo host from
// viper, which merges CLI flags, EPC_* environment variables, and
// defaults registered by the cobra command in cmd/epcd.
package config

import "github.com/spf13/viper"

// Config holds all runtime configuration for epcd.
type Config struct {
	StateDir           string
	DashboardPort      int
	WaitItems          int
	WaitMS             int
	DefaultDNT         bool
	DefaultDestination string
	Verbose            bool
}

// Load reads configuration from viper.
func Load() Config {
	return Config{
		StateDir:           viper.GetString("state_dir"),
		DashboardPort:      viper.GetInt("dashboard_port"),
		WaitItems:          viper.GetInt("wait_items"),
		WaitMS:             viper.GetInt("wait_ms"),
		DefaultDNT:         viper.GetBool("default_dnt"),
		DefaultDestination: viper.GetString("default_destination"),
		Verbose:            viper.GetBool("verbose"),
	}
}
