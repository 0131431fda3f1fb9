// Package main is the lotuswxr CLI entry point.
package main

import (
	"errors"
	"fmt"
	"os"
	_ "time/tzdata"

	"github.com/hyperjump/lotuswxr/internal/config"
	"github.com/joho/godotenv"
)

var version = "dev"

const (
	exitFailure = 1
	exitConfig  = 2
)

func main() {
	// credentials for publish may live in .env
	_ = godotenv.Load()
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cmd := newRootCommand()
	cmd.SetArgs(args)
	err := cmd.Execute()
	if err == nil {
		return 0
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	return exitCode(err)
}

// exitCode maps configuration problems to 2 and every other failure to 1.
func exitCode(err error) int {
	if errors.Is(err, config.ErrInvalidConfig) {
		return exitConfig
	}
	return exitFailure
}
