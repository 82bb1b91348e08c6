package main

import (
	"github.com/spf13/cobra"

	"github.com/optimumenergyco/sorbet/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "sorbet",
	Short: "A fast type checker for Ruby",
	Long: `Sorbet is a static type checker for Ruby. The lsp subcommand runs the
incremental language server over stdio for editor integration.`,
	Version: version.Version,
}

func init() {
	rootCmd.SetVersionTemplate("sorbet version {{.Version}}\n")
}
