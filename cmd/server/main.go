package main

import (
	"github.com/joho/godotenv"

	app "agent-pricing-engine/internal/app/server"
	"agent-pricing-engine/internal/config"
)

func main() {
	_ = godotenv.Load() // optional; real deployments configure via env

	cfg := config.Load()
	config.SetupLogging(cfg.Server.LogLevel)
	app.Run(cfg)
}
