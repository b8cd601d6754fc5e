package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"vsxreg/internal/app"
	"vsxreg/internal/config"
	"vsxreg/internal/errs"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// Exit codes. Not-found and invalid-input failures get their own codes so
// scripts can tell them apart from internal errors.
const (
	exitError        = 1
	exitNotFound     = 2
	exitInvalidInput = 3
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		color.Red("Error: %v", err)
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	switch {
	case errs.IsNotFound(err):
		return exitNotFound
	case errs.IsInvalidInput(err):
		return exitInvalidInput
	default:
		return exitError
	}
}

func readConfig() (*config.Config, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}
	cfg, err := config.ReadFromFile(defaults.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return cfg, nil
}

// newApp reads the config and creates a RegistryApp. The caller must defer app.Close().
// operation identifies the CLI command being run (e.g. "Publish", "DeleteVersion").
func newApp(cmd *cobra.Command, operation string, args []string) (*app.RegistryApp, error) {
	cfg, err := readConfig()
	if err != nil {
		return nil, err
	}

	passphrase, err := passphrase(cfg)
	if err != nil {
		return nil, err
	}

	settings := app.Settings{
		Operation:  operation,
		Parameters: strings.Join(args, " "),
		Passphrase: passphrase,
	}
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		settings.LogEcho = os.Stderr
	}

	a, err := app.NewRegistryApp(cmd.Context(), cfg, settings)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

// passphrase returns the signing key passphrase from the environment, or
// prompts for it when stdin is a terminal.
func passphrase(cfg *config.Config) (string, error) {
	if !app.NeedsPassphrase(cfg) {
		return "", nil
	}
	if p := app.PassphraseFromEnv(cfg); p != "" {
		return p, nil
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errs.InvalidInputf("signing key passphrase required: set %s", cfg.Integrity.PassphraseEnv)
	}
	fmt.Fprint(os.Stderr, "Signing key passphrase: ")
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return string(b), nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var rootCmd = &cobra.Command{
	Use:           "vsxreg",
	Short:         "Extension registry backend",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(defaults.BaseDir)
		if err := config.Init(defaults.ConfigPath, cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		color.Green("Configuration initialized at %s", defaults.ConfigPath)
		fmt.Printf("Base Dir: %s\n", defaults.BaseDir)
		fmt.Println("Run 'vsxreg db migrate' to create the catalog.")
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}
		cfg, err := config.ReadFromFile(defaults.ConfigPath)
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		keyMode := cfg.Integrity.KeyPair
		if !cfg.Integrity.Enabled() {
			keyMode = "disabled"
		}

		fmt.Printf("Configuration from %s:\n\n", defaults.ConfigPath)
		fmt.Printf("Base Dir:  %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:   %s\n", cfg.LogDir)
		fmt.Printf("Base URL:  %s\n", cfg.BaseURL)
		fmt.Printf("Database:  %s\n", cfg.Database.Type)
		fmt.Printf("Storage:   %s\n", cfg.Storage.Type)
		fmt.Printf("Cache:     %s\n", cfg.Cache.Type)
		fmt.Printf("Staging:   %s\n", cfg.Staging.Type)
		fmt.Printf("Signing:   %s\n", keyMode)
		fmt.Printf("Builtin:   %s\n", cfg.Publish.BuiltinNamespace)
		return nil
	},
}

// db command
var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the catalog database",
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := readConfig()
		if err != nil {
			return err
		}
		st, err := app.MigrateDatabase(cfg)
		if err != nil {
			return fmt.Errorf("migrating database: %w", err)
		}
		color.Green("Database at schema version %d", st.Current)
		return nil
	},
}

var dbStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the schema version",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := readConfig()
		if err != nil {
			return err
		}
		st, err := app.DatabaseStatus(cfg)
		if err != nil {
			return err
		}
		fmt.Printf("Current: %d\nLatest:  %d\n", st.Current, st.Latest)
		switch {
		case st.Dirty:
			color.Red("Dirty: a previous migration failed")
		case st.UpToDate():
			color.Green("Up to date")
		case st.Current > st.Latest:
			color.Red("Database is newer than this binary")
		default:
			color.Yellow("%d migration(s) pending", st.Latest-st.Current)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Echo log lines to stderr")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)
	rootCmd.AddCommand(configCmd)

	dbCmd.AddCommand(dbMigrateCmd)
	dbCmd.AddCommand(dbStatusCmd)
	rootCmd.AddCommand(dbCmd)
}
