package main

import (
	"os"

	"github.com/optimumenergyco/sorbet/internal/logging"
)

func main() {
	logger := logging.NewLogger(logging.Config{
		Format: logging.HumanFormat,
		Level:  "info",
	})

	if err := rootCmd.Execute(); err != nil {
		logger.Error("command execution failed", "error", err.Error())
		os.Exit(1)
	}
}
