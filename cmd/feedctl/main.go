// Package main is feedctl, the operator CLI of the discovery service.
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
	}

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "feedctl",
		Short:         "feedctl: operate the matchfeed discovery service",
		Long:          "Applies schema migrations, issues access tokens, inspects feature flags and validates vector calibration files.",
		SilenceUsage: true,
	}

	root.AddCommand(
		migrateCmd(),
		tokenCmd(),
		flagsCmd(),
		calibrationCmd(),
	)
	return root
}
