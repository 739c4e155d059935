package main

import (
	"github.com/joho/godotenv"

	"github.com/AltairaLabs/RealtimeKit/logger"
)

func loadDotEnv() {
	if err := godotenv.Load(); err != nil {
		logger.Debug("no .env file loaded", "error", err)
	}
}
