//go:build no_automation

package main

import (
	"log/slog"

	"cync-go-home/internal/bridge"
)

type autoStopper struct{}

func (a *autoStopper) Stop() {}

func initAutomation(core *bridge.Bridge, cfg *Config, logger *slog.Logger) *autoStopper {
	return &autoStopper{}
}
