// Command forge runs the Celestial Forge perk tracker.
package main

import (
	"errors"
	"io/fs"
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/forgeworks/forge/internal/cli"
)

func main() {
	// .env is optional; FORGE_* variables may come from the real environment.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("[forge] loading .env: %v", err)
	}
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
