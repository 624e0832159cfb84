package main

import (
	"os"

	"github.com/joho/godotenv"

	"trove/internal/logger"
)

func main() {
	logger := logger.New()

	if err := godotenv.Load(); err != nil {
		logger.Warn().Msg("Warning: no .env file found")
	}

	if err := newRootCmd(logger).Execute(); err != nil {
		logger.Error().Err(err).Msg("trovectl failed")
		os.Exit(1)
	}
}
