//go:build !no_automation

package main

import (
	"log/slog"

	"cync-go-home/internal/automation"
	"cync-go-home/internal/bridge"
)

type autoStopper struct {
	engine *automation.Engine
}

func (a *autoStopper) Stop() {
	if a.engine != nil {
		a.engine.Stop()
	}
}

func initAutomation(core *bridge.Bridge, cfg *Config, logger *slog.Logger) *autoStopper {
	engine := automation.NewEngine(core, logger)
	if err := engine.Start(cfg.ScriptsDir); err != nil {
		logger.Error("automation engine", "err", err)
		return &autoStopper{}
	}
	return &autoStopper{engine: engine}
}
