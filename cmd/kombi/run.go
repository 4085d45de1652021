package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ormasoftchile/kombi/pkg/ctxlog"
	"github.com/ormasoftchile/kombi/pkg/dispatcher"
	"github.com/ormasoftchile/kombi/pkg/element"
	"github.com/ormasoftchile/kombi/pkg/pathcache"
	"github.com/ormasoftchile/kombi/pkg/schema"
	"github.com/ormasoftchile/kombi/pkg/task"
	"github.com/ormasoftchile/kombi/pkg/taskholder"
	"github.com/ormasoftchile/kombi/pkg/taskwrapper"
)

// --- run ---

var (
	runDispatcher string
	runVars       []string
	runEnv        []string
	runOptions    []string
	runAwait      bool
	runLabel      string
	runTypes      []string
	runRecursive  bool
	runReporter   string
)

var runCmd = &cobra.Command{
	Use:   "run <config> [source...]",
	Short: "Run a rule configuration over source paths",
	Long: "Loads the rule configuration and dispatches every root rule over the sources.\n" +
		"Sources are paths (directories are globbed) or, when none are given, lines read\n" +
		"from stdin: either a path or the name<TAB>type<TAB>fullPath lines printed by glob.",
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	log := ctxlog.FromContext(ctx)

	cfg, err := schema.LoadPath(args[0])
	if err != nil {
		return err
	}
	vars, err := parseKeyValues("var", runVars)
	if err != nil {
		return err
	}
	if cfg.Vars == nil {
		cfg.Vars = map[string]any{}
	}
	for k, v := range vars {
		cfg.Vars[k] = v
	}
	holders, err := schema.Build(cfg)
	if err != nil {
		return err
	}
	if len(holders) == 0 {
		return fmt.Errorf("no task holders loaded from %s", args[0])
	}
	if runReporter != "" {
		if err := setReporter(holders, runReporter); err != nil {
			return err
		}
	}

	var stdin io.Reader
	if len(args) == 1 {
		stdin = cmd.InOrStdin()
	}
	sources, err := collectSources(args[1:], stdin, runTypes, runRecursive)
	if err != nil {
		return err
	}
	if len(sources) == 0 {
		return errors.New("no source elements")
	}
	log.Debug("loaded sources", "count", len(sources))

	env, err := parseKeyValues("env", runEnv)
	if err != nil {
		return err
	}
	options, err := parseKeyValues("option", runOptions)
	if err != nil {
		return err
	}

	var pending []*dispatcher.Local
	for _, h := range holders {
		d, err := newDispatcher(runDispatcher, env, options)
		if err != nil {
			return err
		}
		res, err := d.Dispatch(ctx, h, sources)
		if err != nil {
			return err
		}
		switch {
		case len(res.JobIDs) > 0:
			fmt.Printf("✓ %s: submitted %d job(s)\n", h.Task().Type(), len(res.JobIDs))
			for _, id := range res.JobIDs {
				fmt.Printf("    %s\n", id)
			}
		default:
			fmt.Printf("✓ %s: %d element(s)\n", h.Task().Type(), len(res.Elements))
		}
		if local, ok := d.(*dispatcher.Local); ok && local.Running() > 0 {
			pending = append(pending, local)
		}
	}
	var errs []error
	for _, local := range pending {
		errs = append(errs, local.Wait())
	}
	return errors.Join(errs...)
}

func newDispatcher(name string, env, options map[string]string) (dispatcher.Dispatcher, error) {
	d, err := dispatcher.Create(name)
	if err != nil {
		return nil, err
	}
	if len(env) > 0 {
		if err := d.SetOption(dispatcher.OptionEnv, env); err != nil {
			return nil, err
		}
	}
	if runLabel != "" {
		if err := d.SetOption(dispatcher.OptionLabel, runLabel); err != nil {
			return nil, err
		}
	}
	if _, ok := d.Option(dispatcher.OptionAwaitExecution); ok {
		if err := d.SetOption(dispatcher.OptionAwaitExecution, runAwait); err != nil {
			return nil, err
		}
	}
	for k, v := range options {
		if err := d.SetOption(k, v); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// setReporter names the reporter of every task of the trees.
func setReporter(holders []*taskholder.TaskHolder, name string) error {
	for _, h := range holders {
		if err := h.Task().SetMetadata(task.MetadataReporter, name); err != nil {
			return err
		}
		if err := setReporter(h.Children(), name); err != nil {
			return err
		}
	}
	return nil
}

// collectSources builds the source elements from paths, or from stdin lines
// when r is not nil. Directories are globbed for the given types.
func collectSources(paths []string, r io.Reader, types []string, recursive bool) ([]*element.Element, error) {
	var out []*element.Element
	if r != nil {
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			if fields := strings.Split(line, "\t"); len(fields) == 3 {
				e, err := element.New(fields[1], fields[2], nil)
				if err != nil {
					return nil, fmt.Errorf("source %q: %w", line, err)
				}
				out = append(out, e)
				continue
			}
			paths = append(paths, line)
		}
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("reading sources: %w", err)
		}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("source %s: %w", p, err)
		}
		e, err := element.CreateFromPath(p)
		if err != nil {
			return nil, err
		}
		if !pathcache.IsDir(p) {
			out = append(out, e)
			continue
		}
		children, err := e.Glob(types, recursive)
		if err != nil {
			return nil, err
		}
		out = append(out, children...)
	}
	return out, nil
}

// --- execute ---

var executeCmd = &cobra.Command{
	Use:    "execute <payload.json>",
	Short:  "Execute a dispatched task holder payload",
	Args:   cobra.ExactArgs(1),
	Hidden: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		payload, err := dispatcher.LoadPayload(args[0])
		if err != nil {
			return err
		}
		_, err = payload.Execute(cmd.Context())
		return err
	},
}

// --- execute-task ---

var (
	executeTaskInput  string
	executeTaskOutput string
)

var executeTaskCmd = &cobra.Command{
	Use:    "execute-task",
	Short:  "Execute a serialized task and write its outputs",
	Args:   cobra.NoArgs,
	Hidden: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return taskwrapper.ExecuteTaskFile(cmd.Context(), executeTaskInput, executeTaskOutput)
	},
}

// --- glob ---

var (
	globTypes     []string
	globRecursive bool
)

var globCmd = &cobra.Command{
	Use:   "glob <path...>",
	Short: "List the elements found under paths",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		elements, err := collectSources(args, nil, globTypes, globRecursive)
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		for _, e := range elements {
			fmt.Fprintf(w, "%s\t%s\t%s\n", e.Name(), e.Type(), e.FullPath())
		}
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&runDispatcher, "dispatcher", "runtime", "Dispatcher: runtime, local or renderFarm")
	runCmd.Flags().StringArrayVar(&runVars, "var", nil, "Set a root variable (key=value), repeatable")
	runCmd.Flags().StringArrayVar(&runEnv, "env", nil, "Set an environment variable for dispatched processes (key=value), repeatable")
	runCmd.Flags().StringArrayVar(&runOptions, "option", nil, "Set a dispatcher option (key=value), repeatable")
	runCmd.Flags().BoolVar(&runAwait, "await", true, "Wait for local dispatches to finish before reporting")
	runCmd.Flags().StringVar(&runLabel, "label", "", "Label of the dispatched work")
	runCmd.Flags().StringSliceVar(&runTypes, "type", nil, "Element types kept when globbing directories")
	runCmd.Flags().BoolVar(&runRecursive, "recursive", false, "Glob directories recursively")
	runCmd.Flags().StringVar(&runReporter, "reporter", "", "Reporter set on every task (columns, detailed, json)")

	executeTaskCmd.Flags().StringVar(&executeTaskInput, "input", "", "Serialized task JSON")
	executeTaskCmd.Flags().StringVar(&executeTaskOutput, "output", "", "Path of the result JSON")
	executeTaskCmd.MarkFlagRequired("input")
	executeTaskCmd.MarkFlagRequired("output")

	globCmd.Flags().StringSliceVar(&globTypes, "type", nil, "Element types to keep")
	globCmd.Flags().BoolVar(&globRecursive, "recursive", false, "Descend into sub directories")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(executeCmd)
	rootCmd.AddCommand(executeTaskCmd)
	rootCmd.AddCommand(globCmd)
}
