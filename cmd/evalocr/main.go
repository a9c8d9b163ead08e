package main

import (
	"fmt"
	"os"

	"github.com/MeKo-Tech/evalocr/cmd/evalocr/cmd"
	"github.com/MeKo-Tech/evalocr/internal/config"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading .env: %v\n", err)
		os.Exit(1)
	}
	cmd.Execute()
}
