package main

import (
	"log/slog"
	"os"
)

var version = "dev"

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command failed", "err", err)
		os.Exit(1)
	}
}
