// Command sortie validates and executes attack playbooks.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/soralis-ops/sortie/pkg/executor"
	"github.com/soralis-ops/sortie/pkg/runtime"
	"github.com/soralis-ops/sortie/pkg/schema"
)

// Version is set at build time via ldflags.
var (
	version = "dev"
	commit  = "unknown"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("51"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	failStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

func main() {
	loadDotEnv()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadDotEnv reads a .env file from the working directory and sets any
// variables that aren't already set in the environment. Lines are KEY=VALUE;
// comments (#) and blanks are skipped.
func loadDotEnv() {
	f, err := os.Open(".env")
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
	Use:   "sortie",
	Short: "Attack playbook runner",
	Long:  "sortie — executes YAML attack playbooks with retry predicates, variable templating and session tracking.",
}

// --- validate ---

var validateCmd = &cobra.Command{
	Use:   "validate [playbook.yaml]",
	Short: "Validate a playbook YAML file against the schema",
	Args:  cobra.ExactArgs(1),
	RunE:  runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	pb, errs := schema.ValidateFile(args[0])
	if len(errs) > 0 {
		fmt.Fprintf(os.Stderr, "%s %d error(s)\n\n", failStyle.Render("Validation failed:"), len(errs))
		for i, e := range errs {
			fmt.Fprintf(os.Stderr, "  %d. [%s] %s\n", i+1, e.Phase, e.Message)
			if e.Path != "" {
				fmt.Fprintf(os.Stderr, "     at: %s\n", e.Path)
			}
		}
		return fmt.Errorf("validation failed with %d error(s)", len(errs))
	}
	fmt.Printf("%s %s is valid (%d commands)\n", okStyle.Render("✓"), pb.Meta.Name, len(pb.Commands))
	return nil
}

// --- exec ---

var (
	execVars     []string
	execTrace    string
	execQuiet    bool
	execDryRun   bool
	execLogLevel string
)

var execCmd = &cobra.Command{
	Use:   "exec [playbook.yaml]",
	Short: "Execute a playbook",
	Args:  cobra.ExactArgs(1),
	RunE:  runExec,
}

func runExec(cmd *cobra.Command, args []string) error {
	filePath := args[0]

	pb, errs := schema.ValidateFile(filePath)
	if len(errs) > 0 {
		fmt.Fprintf(os.Stderr, "Validation failed: %d error(s)\n", len(errs))
		for _, e := range errs {
			fmt.Fprintf(os.Stderr, "  [%s] %s\n", e.Phase, e.Message)
		}
		return fmt.Errorf("playbook validation failed")
	}

	cliVars := make(map[string]string)
	for _, v := range execVars {
		parts := strings.SplitN(v, "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid --var %q: expected key=value", v)
		}
		cliVars[parts[0]] = parts[1]
	}

	logger, err := buildLogger(execLogLevel)
	if err != nil {
		return err
	}

	runID := runtime.NewRunID()

	sinks := []executor.Sink{}
	if !execQuiet {
		sinks = append(sinks, &executor.ConsoleSink{W: os.Stdout})
	}
	if execTrace != "" {
		tw, err := runtime.NewTraceWriter(execTrace, runID)
		if err != nil {
			return err
		}
		defer tw.Close()
		sinks = append(sinks, tw)
	}

	runner, err := runtime.NewRunner(logger, pb, runtime.Options{
		Sink:   executor.Fanout(sinks...),
		Vars:   cliVars,
		RunID:  runID,
		DryRun: execDryRun,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Println(headerStyle.Render("sortie — " + pb.Meta.Name))
	fmt.Println(dimStyle.Render("run id: " + runner.RunID()))

	runErr := runner.Run(ctx)
	summary := runner.Summary()

	if runErr != nil {
		var fatal *executor.FatalError
		if errors.As(runErr, &fatal) {
			fmt.Fprintf(os.Stderr, "%s %v\n", failStyle.Render("✗ playbook aborted:"), runErr)
		} else {
			fmt.Fprintf(os.Stderr, "%s %v\n", failStyle.Render("✗ playbook failed:"), runErr)
		}
		fmt.Println(dimStyle.Render(fmt.Sprintf("executed %d, skipped %d", summary.Executed, summary.Skipped)))
		os.Exit(1)
	}

	fmt.Printf("%s playbook completed (executed %d, skipped %d)\n",
		okStyle.Render("✓"), summary.Executed, summary.Skipped)
	return nil
}

// buildLogger creates the run's slog logger at the requested level.
func buildLogger(level string) (*slog.Logger, error) {
	var lv slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lv = slog.LevelDebug
	case "info", "":
		lv = slog.LevelInfo
	case "warn":
		lv = slog.LevelWarn
	case "error":
		lv = slog.LevelError
	default:
		return nil, fmt.Errorf("unknown log level %q", level)
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lv})), nil
}

// --- schema ---

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the playbook JSON Schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := schema.GenerateJSONSchema()
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	},
}

// --- version ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("sortie %s (build: %s)\n", version, commit)
	},
}

func init() {
	execCmd.Flags().StringArrayVar(&execVars, "var", nil, "set a playbook variable (key=value, repeatable)")
	execCmd.Flags().StringVar(&execTrace, "trace", "", "append a JSONL trace of command results to this file")
	execCmd.Flags().BoolVar(&execQuiet, "quiet", false, "suppress command output on stdout")
	execCmd.Flags().BoolVar(&execDryRun, "dry-run", false, "echo commands instead of executing them")
	execCmd.Flags().StringVar(&execLogLevel, "log-level", "info", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(execCmd)
	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(versionCmd)
}
