// Package main is the entry point for the authsync CLI
package main

import (
	"github.com/jrschumacher/authsync/cmd"
	"github.com/jrschumacher/authsync/internal/config"
	"github.com/jrschumacher/authsync/internal/logger"
)

func main() {
	cfg := config.Load()
	logger.Init(cfg.LogLevel)

	cmd.Execute(cfg)
}
