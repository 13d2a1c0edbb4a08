package config

import (
	"log/slog"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Watch re-reads the config file held by v whenever it changes and passes
// every valid result to onChange. Invalid edits are logged and ignored so
// the running configuration stays in effect.
func Watch(v *viper.Viper, logger *slog.Logger, onChange func(*Config)) {
	if v.ConfigFileUsed() == "" {
		logger.Debug("no config file in use, config reload disabled")
		return
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := LoadFrom(v)
		if err != nil {
			logger.Error("ignoring invalid config change", "file", e.Name, "error", err)
			return
		}
		logger.Info("config file changed", "file", e.Name, "op", e.Op.String())
		onChange(cfg)
	})
	v.WatchConfig()
}
