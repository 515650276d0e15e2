package cli

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"aptly-reconcile/internal/app"
)

// loadSettings reads the persistent flags through viper, so environment and
// settings file values apply when a flag is not given.
func loadSettings() app.Settings {
	return app.Settings{
		AptlyBin:        viper.GetString("aptly_bin"),
		GPGBin:          viper.GetString("gpg_bin"),
		Keyring:         viper.GetString("keyring"),
		Keyserver:       viper.GetString("keyserver"),
		MinAptlyVersion: viper.GetString("min_aptly_version"),
	}
}

func newAppService() app.Service {
	return app.NewService(loadSettings())
}

func resolveString(cmd *cobra.Command, value string, key string, flagName string) string {
	if cmd == nil {
		if value != "" {
			return value
		}
		return viper.GetString(key)
	}
	if flagChanged(cmd, flagName) {
		return value
	}
	return viper.GetString(key)
}

func resolveBool(cmd *cobra.Command, value bool, key string, flagName string) bool {
	if cmd == nil {
		return value
	}
	if flagChanged(cmd, flagName) {
		return value
	}
	return viper.GetBool(key)
}

func resolveInt(cmd *cobra.Command, value int, key string, flagName string) int {
	if cmd == nil {
		return value
	}
	if flagChanged(cmd, flagName) {
		return value
	}
	return viper.GetInt(key)
}

func flagChanged(cmd *cobra.Command, name string) bool {
	if cmd == nil || strings.TrimSpace(name) == "" {
		return false
	}
	if flag := cmd.Flags().Lookup(name); flag != nil {
		return flag.Changed
	}
	if flag := cmd.PersistentFlags().Lookup(name); flag != nil {
		return flag.Changed
	}
	return false
}
