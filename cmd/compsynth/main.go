package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"compsynth/internal/app"
	"compsynth/internal/config"
	"compsynth/internal/synth"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates an App. The caller must defer a.Close().
// operation identifies the CLI command being run (e.g. "Generate", "BuildIndex").
func newApp(ctx context.Context, operation string) (*app.App, error) {
	defaults, err := app.LoadDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	a, err := app.NewApp(ctx, cfg, operation)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

// readPassphrase reads a passphrase from COMPSYNTH_PASSPHRASE or, failing
// that, from the terminal without echo.
func readPassphrase(prompt string, confirm bool) (string, error) {
	if p := os.Getenv("COMPSYNTH_PASSPHRASE"); p != "" {
		return p, nil
	}

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("no terminal for passphrase prompt: set COMPSYNTH_PASSPHRASE")
	}

	fmt.Fprint(os.Stderr, prompt)
	p, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	if len(p) == 0 {
		return "", errors.New("passphrase must not be empty")
	}

	if confirm {
		fmt.Fprint(os.Stderr, "Confirm passphrase: ")
		again, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("reading passphrase: %w", err)
		}
		if string(again) != string(p) {
			return "", errors.New("passphrases do not match")
		}
	}
	return string(p), nil
}

var rootCmd = &cobra.Command{
	Use:          "compsynth",
	Short:        "Synthesize compromised-account datasets from a tweet corpus",
	SilenceUsage: true,
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
		defaults, err := app.LoadDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		projectID := uuid.New().String()
		cfg := config.NewConfig(projectID, defaults.BaseDir)

		if err := config.Init(defaults.ConfigPath, cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults.ConfigPath)
		fmt.Printf("Project ID: %s\n", projectID)
		fmt.Printf("Base Dir:   %s\n", defaults.BaseDir)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.LoadDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults.ConfigPath)
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults.ConfigPath)
		m := &config.Manager{}
		return m.Write(os.Stdout, cfg)
	},
}

// generate command
var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate compromised-account datasets",
	RunE: func(cmd *cobra.Command, args []string) error {
		var o app.GenerateOverrides
		if cmd.Flags().Changed("seed") {
			seed, _ := cmd.Flags().GetInt64("seed")
			o.Seed = &seed
		}
		if cmd.Flags().Changed("prob") {
			prob, _ := cmd.Flags().GetFloat64("prob")
			o.Prob = &prob
		}
		o.Percs, _ = cmd.Flags().GetFloat64Slice("perc")
		o.KeepUnpaired, _ = cmd.Flags().GetBool("keep-unpaired")

		a, err := newApp(cmd.Context(), "Generate")
		if err != nil {
			return err
		}
		defer a.Close()

		datasets, err := a.Generate(cmd.Context(), o)
		if err != nil {
			return fmt.Errorf("generate failed: %w", err)
		}

		fmt.Printf("Run %s\n", a.RunUUID())
		for _, ds := range datasets {
			fmt.Printf("%s  perc=%s  seed=%d  written=%d  injected=%d  omitted=%d\n",
				ds.OutputPath, synth.FormatPerc(ds.PercCompromised), ds.Seed, ds.Written, ds.Injected, ds.Omitted)
		}
		return nil
	},
}

// index command
var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Group the corpus and write the user index only",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "BuildIndex")
		if err != nil {
			return err
		}
		defer a.Close()

		corpus, err := a.BuildIndex(cmd.Context())
		if err != nil {
			return fmt.Errorf("index failed: %w", err)
		}

		fmt.Printf("Indexed %d user(s), %d record(s), %d blank line(s) skipped\n",
			corpus.Users(), corpus.Records(), corpus.Blank)
		return nil
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View run history",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp(cmd.Context(), "GetHistory")
		if err != nil {
			return err
		}
		defer a.Close()

		runs, err := a.GetHistory(limit)
		if err != nil {
			return err
		}

		if len(runs) == 0 {
			fmt.Println("No runs recorded.")
			return nil
		}

		for _, run := range runs {
			duration := ""
			if run.FinishedAt.Valid {
				d := run.FinishedAt.Time.Sub(run.StartedAt)
				duration = d.Truncate(time.Millisecond).String()
			}
			fmt.Printf("%s  %-10s  %s  %-8s  %-8s  %s\n",
				run.UUID,
				run.Operation,
				run.StartedAt.Format("2006-01-02 15:04:05"),
				run.Status,
				duration,
				run.Parameters,
			)
		}
		return nil
	},
}

// datasets command
var datasetsCmd = &cobra.Command{
	Use:   "datasets RUN_ID",
	Short: "List the datasets produced by a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "GetRunDatasets")
		if err != nil {
			return err
		}
		defer a.Close()

		run, datasets, err := a.GetRunDatasets(args[0])
		if err != nil {
			return err
		}

		fmt.Printf("Run %s  %s  %s\n", run.UUID, run.Operation, run.Status)
		if len(datasets) == 0 {
			fmt.Println("No datasets.")
			return nil
		}
		for _, ds := range datasets {
			archived := ds.ArchiveKey
			if archived == "" {
				archived = "-"
			}
			fmt.Printf("%s  perc=%s  prob=%s  seed=%d  users=%d  written=%d  injected=%d  omitted=%d  encrypted=%t  archive=%s\n",
				ds.OutputPath,
				synth.FormatPerc(ds.PercCompromised),
				synth.FormatPerc(ds.ProbCompromised),
				ds.Seed, ds.Users, ds.Written, ds.Injected, ds.Omitted, ds.Encrypted, archived,
			)
		}
		return nil
	},
}

// keys command
var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage the dataset encryption key pair",
}

var keysInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate a passphrase-protected key pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "SetupKeys")
		if err != nil {
			return err
		}
		defer a.Close()

		passphrase, err := readPassphrase("Passphrase: ", true)
		if err != nil {
			return err
		}
		if err := a.SetupKeys(passphrase); err != nil {
			return err
		}

		fmt.Println("Key pair created. Set encryption.enabled = true to seal new datasets.")
		return nil
	},
}

// decrypt command
var decryptCmd = &cobra.Command{
	Use:   "decrypt IN OUT",
	Short: "Decrypt a sealed dataset",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "DecryptDataset")
		if err != nil {
			return err
		}
		defer a.Close()

		passphrase, err := readPassphrase("Passphrase: ", false)
		if err != nil {
			return err
		}
		if err := a.DecryptDataset(passphrase, args[0], args[1]); err != nil {
			return err
		}

		fmt.Printf("Decrypted to %s (gzip-compressed)\n", args[1])
		return nil
	},
}

// fetch command
var fetchCmd = &cobra.Command{
	Use:   "fetch NAME OUT",
	Short: "Download an archived dataset",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "FetchDataset")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.FetchDataset(args[0], args[1]); err != nil {
			return err
		}

		fmt.Printf("Fetched %s to %s\n", synth.DatasetKey(args[0]), args[1])
		return nil
	},
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	// keys subcommands
	keysCmd.AddCommand(keysInitCmd)

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(generateCmd)
	generateCmd.Flags().Int64("seed", 0, "Seed for the random generator (default: config seed or clock)")
	generateCmd.Flags().Float64Slice("perc", nil, "Compromise percentages, one dataset each (default: config percs_compromised)")
	generateCmd.Flags().Float64("prob", 0, "Probability a user is left untouched (default: config prob_compromised)")
	generateCmd.Flags().Bool("keep-unpaired", false, "Keep users with no eligible donor instead of failing")
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of runs to show")
	rootCmd.AddCommand(datasetsCmd)
	rootCmd.AddCommand(keysCmd)
	rootCmd.AddCommand(decryptCmd)
	rootCmd.AddCommand(fetchCmd)
}
