package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/kirillkom/uk-legal-assistant/cmd/legalctl/cmd"
)

func main() {
	_ = godotenv.Load()
	if err := cmd.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
