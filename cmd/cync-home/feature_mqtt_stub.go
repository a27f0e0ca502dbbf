//go:build no_mqtt

package main

import (
	"log/slog"

	"cync-go-home/internal/bridge"
)

type mqttStopper struct{}

func (m *mqttStopper) Stop() {}

func initMQTT(core *bridge.Bridge, cfg *Config, logger *slog.Logger) *mqttStopper {
	if cfg.MQTT.Enabled {
		logger.Warn("mqtt requested but binary built with no_mqtt")
	}
	return &mqttStopper{}
}
