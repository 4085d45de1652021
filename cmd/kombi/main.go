package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ormasoftchile/kombi/pkg/ctxlog"
	"github.com/ormasoftchile/kombi/pkg/dispatcher"
	"github.com/ormasoftchile/kombi/pkg/element"
	"github.com/ormasoftchile/kombi/pkg/procedure"
	"github.com/ormasoftchile/kombi/pkg/reporter"
	"github.com/ormasoftchile/kombi/pkg/resource"
	"github.com/ormasoftchile/kombi/pkg/schema"
	"github.com/ormasoftchile/kombi/pkg/task"
	"github.com/ormasoftchile/kombi/pkg/tasks"
	"github.com/ormasoftchile/kombi/pkg/taskwrapper"
)

// Version is set at build time via ldflags.
var (
	version = "dev"
	commit  = "unknown"
)

var (
	verbose   bool
	logFormat string
)

func main() {
	loadDotEnv(".env")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// loadDotEnv reads a .env file and sets any variables that aren't already
// set in the environment. Lines are KEY=VALUE (or KEY="VALUE"). Comments (#)
// and blanks are skipped.
func loadDotEnv(path string) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		val := strings.Trim(strings.TrimSpace(parts[1]), `"'`)
		if os.Getenv(key) == "" {
			os.Setenv(key, val)
		}
	}
}

var rootCmd = &cobra.Command{
	Use:   "kombi",
	Short: "Rule-driven media pipeline engine",
	Long:  "kombi matches elements against a tree of rules and runs the rules' tasks locally, in subprocesses or on a render farm.",
}

// setup installs the logger and loads the builtin tasks before any command
// runs.
func setup(cmd *cobra.Command, args []string) error {
	logger, err := newLogger(verbose, logFormat)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	cmd.SetContext(ctxlog.WithLogger(cmd.Context(), logger))
	return resource.Require(tasks.Resource)
}

func newLogger(verbose bool, format string) (*slog.Logger, error) {
	opts := &slog.HandlerOptions{Level: slog.LevelWarn}
	if verbose {
		opts.Level = slog.LevelDebug
	}
	switch format {
	case "", "text":
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	default:
		return nil, fmt.Errorf("invalid --log-format %q: expected text or json", format)
	}
}

// parseKeyValues parses repeated key=value flags.
func parseKeyValues(flag string, pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 || parts[0] == "" {
			return nil, fmt.Errorf("invalid --%s %q: expected key=value", flag, pair)
		}
		out[parts[0]] = parts[1]
	}
	return out, nil
}

// --- validate ---

var validateCmd = &cobra.Command{
	Use:   "validate <config>",
	Short: "Validate a rule configuration file or directory",
	Args:  cobra.ExactArgs(1),
	RunE:  runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, errs := schema.ValidateFile(args[0])
	if len(errs) > 0 {
		var failures int
		for _, e := range errs {
			if e.Severity == "warning" {
				fmt.Fprintf(os.Stderr, "  ⚠ [%s] %s\n", e.Phase, e.Message)
				if e.Path != "" {
					fmt.Fprintf(os.Stderr, "    at: %s\n", e.Path)
				}
				continue
			}
			failures++
		}
		if failures > 0 {
			fmt.Fprintf(os.Stderr, "Validation failed: %d error(s)\n\n", failures)
			i := 0
			for _, e := range errs {
				if e.Severity == "warning" {
					continue
				}
				i++
				fmt.Fprintf(os.Stderr, "  %d. [%s] %s\n", i, e.Phase, e.Message)
				if e.Path != "" {
					fmt.Fprintf(os.Stderr, "     at: %s\n", e.Path)
				}
			}
			return fmt.Errorf("validation failed with %d error(s)", failures)
		}
	}
	fmt.Printf("✓ %s is valid (%d task holders)\n", args[0], countHolders(cfg.TaskHolders))
	return nil
}

func countHolders(holders []schema.TaskHolder) int {
	n := len(holders)
	for _, h := range holders {
		n += countHolders(h.TaskHolders)
	}
	return n
}

// --- schema ---

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Schema operations",
}

var schemaExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the rule configuration JSON Schema to stdout",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := schema.GenerateJSONSchema()
		if err != nil {
			return fmt.Errorf("generate schema: %w", err)
		}
		fmt.Println(string(data))
		return nil
	},
}

// --- registries ---

var proceduresCmd = &cobra.Command{
	Use:   "procedures",
	Short: "List the template procedures",
	Run: func(cmd *cobra.Command, args []string) {
		for _, name := range procedure.Names() {
			fmt.Println(name)
		}
	},
}

var typesJSON bool

var typesCmd = &cobra.Command{
	Use:   "types",
	Short: "List registered element types, tasks, wrappers, dispatchers, reporters and resources",
	RunE: func(cmd *cobra.Command, args []string) error {
		sections := []struct {
			Name  string   `json:"name"`
			Items []string `json:"items"`
		}{
			{"elements", element.RegisteredNames()},
			{"tasks", task.RegisteredNames()},
			{"wrappers", taskwrapper.Names()},
			{"dispatchers", dispatcher.RegisteredNames()},
			{"reporters", reporter.Names()},
			{"resources", resource.Names()},
		}
		if typesJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(sections)
		}
		for _, s := range sections {
			fmt.Printf("%s:\n", s.Name)
			for _, item := range s.Items {
				fmt.Printf("  %s\n", item)
			}
		}
		return nil
	},
}

// --- version ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("kombi %s (build: %s)\n", version, commit)
	},
}

func init() {
	rootCmd.PersistentPreRunE = setup
	rootCmd.SilenceUsage = true
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format: text or json")

	typesCmd.Flags().BoolVar(&typesJSON, "json", false, "Output as JSON")

	schemaCmd.AddCommand(schemaExportCmd)

	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(proceduresCmd)
	rootCmd.AddCommand(typesCmd)
	rootCmd.AddCommand(versionCmd)
}
