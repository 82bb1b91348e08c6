package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/optimumenergyco/sorbet/internal/config"
	"github.com/optimumenergyco/sorbet/internal/kvstore"
	"github.com/optimumenergyco/sorbet/internal/logging"
	"github.com/optimumenergyco/sorbet/internal/lsp"
	"github.com/optimumenergyco/sorbet/internal/watcher"
)

var (
	lspRootFlag     string
	lspLogLevelFlag string
	lspNoCacheFlag  bool
)

var lspCmd = &cobra.Command{
	Use:   "lsp",
	Short: "Run the language server over stdio",
	Long: `Starts the incremental language server. The editor speaks length-framed
JSON-RPC on stdin/stdout; logs go to stderr.`,
	RunE: runLsp,
}

func init() {
	lspCmd.Flags().StringVar(&lspRootFlag, "root", ".", "Workspace root directory")
	lspCmd.Flags().StringVar(&lspLogLevelFlag, "log-level", "", "Override configured log level")
	lspCmd.Flags().BoolVar(&lspNoCacheFlag, "no-cache", false, "Disable the on-disk tree cache")
	rootCmd.AddCommand(lspCmd)
}

func runLsp(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(lspRootFlag)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	level := cfg.Logging.Level
	if lspLogLevelFlag != "" {
		level = lspLogLevelFlag
	}
	logger := logging.NewLogger(logging.Config{
		Format: logging.Format(cfg.Logging.Format),
		Level:  level,
	})

	opts := lsp.Options{WorkspaceRoot: lspRootFlag}

	if cfg.Cache.Enabled && !lspNoCacheFlag {
		cache, cacheErr := kvstore.Open(filepath.Join(lspRootFlag, cfg.Cache.Path), logger)
		if cacheErr != nil {
			logger.Warn("tree cache unavailable", "error", cacheErr.Error())
		} else {
			defer cache.Close()
			opts.Cache = cache
		}
	}

	if cfg.Watcher.Enabled {
		opts.Watcher = watcher.New(watcher.Config{
			Root:         lspRootFlag,
			Extensions:   cfg.Workspace.SourceExtensions,
			IgnoreDirs:   cfg.Workspace.Ignore,
			PollInterval: time.Duration(cfg.Watcher.PollIntervalMs) * time.Millisecond,
			Debounce:     time.Duration(cfg.Watcher.DebounceMs) * time.Millisecond,
		}, logger)
	}

	return lsp.New(cfg, logger, opts).Run()
}
