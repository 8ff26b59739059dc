package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/liliang-cn/channelfinder/internal/config"
	"github.com/liliang-cn/channelfinder/pkg/catalog"
	"github.com/liliang-cn/channelfinder/pkg/core"
)

var (
	configPath string
	dbPath     string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:           "channelfinder",
	Short:         "CLI tool for the ChannelFinder metadata catalog",
	Long:          `A command-line interface for managing channels, tags and properties in a SQLite-backed ChannelFinder catalog.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new catalog database",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		cat, err := openCatalog(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer cat.Close()

		fmt.Printf("Catalog initialized at %s\n", cfg.Store.Path)
		return nil
	},
}

// loadConfig reads the configuration file, .env and environment, then
// applies the command line overrides
func loadConfig() (*config.Config, error) {
	if err := config.LoadEnv(); err != nil {
		return nil, err
	}

	var (
		cfg *config.Config
		err error
	)
	if configPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(configPath)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if dbPath != "" {
		cfg.Store.Path = dbPath
	}
	if verbose {
		cfg.Log.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func openCatalog(ctx context.Context, cfg *config.Config) (*catalog.Catalog, error) {
	logger, err := cfg.Logger(os.Stderr)
	if err != nil {
		return nil, err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	cat, err := catalog.OpenWithStoreConfig(ctx, cfg.StoreConfig(logger), cfg.Catalog(), catalog.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	return cat, nil
}

// withCatalog loads the configuration, opens the catalog and runs fn
func withCatalog(cmd *cobra.Command, fn func(ctx context.Context, cat *catalog.Catalog) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cat, err := openCatalog(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer cat.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return fn(ctx, cat)
}

// readPayload reads the JSON payload named by --file; "-" reads stdin
func readPayload(cmd *cobra.Command) ([]byte, error) {
	path, _ := cmd.Flags().GetString("file")
	if path == "" || path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(path)
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// exitCode maps an error class to the process exit status
func exitCode(err error) int {
	switch core.Classify(err) {
	case core.ClassInvalidInput:
		return 2
	case core.ClassNotFound:
		return 3
	case core.ClassUnauthorized:
		return 4
	default:
		return 1
	}
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to YAML config file")
	rootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "Database file path (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")

	rootCmd.AddCommand(
		initCmd,
		channelCmd,
		newVocabularyCmd(tagResource()),
		newVocabularyCmd(propertyResource()),
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(exitCode(err))
	}
}
