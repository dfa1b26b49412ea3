package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/JonMunkholm/datacleaner/internal/config"
	"github.com/JonMunkholm/datacleaner/internal/core"
	_ "github.com/JonMunkholm/datacleaner/internal/core/entities" // Register clients, workers, tasks
	"github.com/JonMunkholm/datacleaner/internal/handler"
	"github.com/JonMunkholm/datacleaner/internal/logging"
)

// errBlocking is returned by validate when error-severity findings remain.
var errBlocking = errors.New("validation found blocking errors")

func main() {
	_ = godotenv.Load()
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// cli carries the settings shared by every subcommand.
type cli struct {
	v *viper.Viper
}

func newRootCmd() *cobra.Command {
	c := &cli{v: viper.New()}
	defaults := config.Defaults()

	root := &cobra.Command{
		Use:   "cleaner",
		Short: "Validate, fix and export client, worker and task files",
		Long: `cleaner loads clients, workers and tasks from CSV or XLSX files, validates them
against each other and against an optional rules_config.json, applies
deterministic fixes and writes cleaned CSVs with the rules config.

Files are taken from --clients/--workers/--tasks/--rules when given, otherwise
from --dir: names starting with client, worker or task pick the kind and other
data files are detected from their headers.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.initConfig()
		},
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "config file (yaml, json or toml)")
	flags.StringP("dir", "d", ".", "directory to scan for input files")
	flags.String("clients", "", "clients file")
	flags.String("workers", "", "workers file")
	flags.String("tasks", "", "tasks file")
	flags.String("rules", "", "rules config file (.json or .yaml)")
	flags.Bool("json", false, "output JSON")
	flags.Int64("max-file-size", defaults.Upload.MaxFileSize, "maximum input file size in bytes")
	flags.String("log-level", "warn", "log level (debug, info, warn, error)")
	flags.String("log-format", defaults.Logging.Format, "log format (json, text)")
	for _, name := range []string{"config", "dir", "clients", "workers", "tasks", "rules", "json", "max-file-size", "log-level", "log-format"} {
		_ = c.v.BindPFlag(name, flags.Lookup(name))
	}

	root.AddCommand(c.validateCmd())
	root.AddCommand(c.fixCmd())
	root.AddCommand(c.suggestCmd())
	root.AddCommand(c.exportCmd())
	root.AddCommand(c.watchCmd())
	return root
}

func (c *cli) initConfig() error {
	c.v.SetEnvPrefix("CLEANER")
	c.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	c.v.AutomaticEnv()

	if file := c.v.GetString("config"); file != "" {
		c.v.SetConfigFile(file)
		if err := c.v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config: %w", err)
		}
	}

	slog.SetDefault(logging.New(os.Stderr, c.v.GetString("log-level"), c.v.GetString("log-format")))
	return nil
}

func (c *cli) inputs() (handler.Inputs, error) {
	in := handler.Inputs{
		Clients: c.v.GetString("clients"),
		Workers: c.v.GetString("workers"),
		Tasks:   c.v.GetString("tasks"),
		Rules:   c.v.GetString("rules"),
	}
	if !in.Empty() {
		return in, nil
	}
	return handler.ScanDir(c.v.GetString("dir"))
}

func (c *cli) load(ctx context.Context) (*handler.Result, error) {
	in, err := c.inputs()
	if err != nil {
		return nil, err
	}
	loader := &handler.Loader{
		MaxFileSize:  c.v.GetInt64("max-file-size"),
		HistoryLimit: config.Defaults().Session.HistoryLimit,
	}
	return loader.Load(ctx, in)
}

/* ----------------------------------------
	validate
---------------------------------------- */

type validateOutput struct {
	Files      []string                `json:"files"`
	Summary    core.Summary            `json:"summary"`
	Blocking   bool                    `json:"blocking"`
	Errors     []core.ValidationError  `json:"errors"`
	FailedRows []core.FailedRow        `json:"failedRows,omitempty"`
	Fixes      []core.FixSuggestion    `json:"fixes,omitempty"`
	Counts     map[core.EntityKind]int `json:"rows"`
}

func (c *cli) validateCmd() *cobra.Command {
	var writeFailed bool
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate input files and list findings",
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := c.load(cmd.Context())
			if err != nil {
				return err
			}
			if writeFailed {
				for _, b := range res.Batches {
					path, err := handler.WriteFailedRows(b)
					if err != nil {
						return err
					}
					if path != "" {
						fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s\n", path)
					}
				}
			}
			if err := c.printValidation(cmd.OutOrStdout(), res); err != nil {
				return err
			}
			if core.HasBlockingErrors(res.State().ValidationErrors) {
				return errBlocking
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&writeFailed, "write-failed", false, `write skipped rows to "<file> - failed.csv"`)
	return cmd
}

func (c *cli) printValidation(w io.Writer, res *handler.Result) error {
	st := res.State()
	errs := st.ValidationErrors
	summary := core.Summarize(errs)

	if c.v.GetBool("json") {
		out := validateOutput{
			Summary:    summary,
			Blocking:   core.HasBlockingErrors(errs),
			Errors:     errs,
			FailedRows: res.FailedRows(),
			Fixes:      core.SuggestFixes(errs),
			Counts:     rowCounts(st),
		}
		for _, b := range res.Batches {
			out.Files = append(out.Files, b.FileName)
		}
		if res.Rules != "" {
			out.Files = append(out.Files, res.Rules)
		}
		return printJSON(w, out)
	}

	if len(errs) > 0 {
		tw := table.NewWriter()
		tw.SetOutputMirror(w)
		tw.AppendHeader(table.Row{"Entity", "Row", "Field", "Severity", "Message"})
		for _, e := range errs {
			tw.AppendRow(table.Row{e.Entity, displayRow(e.Row), e.Field, e.Severity, e.Message})
		}
		tw.Render()
	}

	renderSummary(w, st, summary)
	for _, row := range res.FailedRows() {
		fmt.Fprintf(w, "skipped %s line %d: %s\n", row.FileName, row.LineNumber, row.Reason)
	}
	return nil
}

func renderSummary(w io.Writer, st *core.State, summary core.Summary) {
	counts := rowCounts(st)
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"Entity", "Rows", "Errors", "Warnings"})
	for _, kind := range core.Kinds() {
		by := summary.ByEntity[kind]
		tw.AppendRow(table.Row{kind, counts[kind], by.Errors, by.Warnings})
	}
	tw.AppendFooter(table.Row{"Total", counts[core.KindClients] + counts[core.KindWorkers] + counts[core.KindTasks], summary.Errors, summary.Warnings})
	tw.Render()
}

func rowCounts(st *core.State) map[core.EntityKind]int {
	return map[core.EntityKind]int{
		core.KindClients: len(st.Clients),
		core.KindWorkers: len(st.Workers),
		core.KindTasks:   len(st.Tasks),
	}
}

// displayRow shows rows 1-based; entity-wide findings have no row.
func displayRow(row int) string {
	if row == core.EntityWide {
		return "-"
	}
	return fmt.Sprint(row + 1)
}

/* ----------------------------------------
	fix / suggest
---------------------------------------- */

func (c *cli) suggestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "suggest",
		Short: "List the fixes that would resolve current findings",
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := c.load(cmd.Context())
			if err != nil {
				return err
			}
			fixes := core.SuggestFixes(res.State().ValidationErrors)
			w := cmd.OutOrStdout()
			if c.v.GetBool("json") {
				if fixes == nil {
					fixes = []core.FixSuggestion{}
				}
				return printJSON(w, fixes)
			}
			if len(fixes) == 0 {
				fmt.Fprintln(w, "No fixes available.")
				return nil
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(w)
			tw.AppendHeader(table.Row{"Fix", "Entity", "Findings", "Confidence", "Action"})
			for _, f := range fixes {
				tw.AppendRow(table.Row{f.Kind, f.Entity, len(f.ErrorIDs), fmt.Sprintf("%.0f%%", f.Confidence*100), f.Action})
			}
			tw.Render()
			return nil
		},
	}
}

type fixOutput struct {
	RowsChanged int          `json:"rowsChanged"`
	Summary     core.Summary `json:"summary"`
	Blocking    bool         `json:"blocking"`
	Written     []string     `json:"written,omitempty"`
}

func (c *cli) fixCmd() *cobra.Command {
	var (
		kindNames []string
		outDir    string
	)
	cmd := &cobra.Command{
		Use:   "fix",
		Short: "Apply deterministic fixes and optionally export the result",
		Long: "Apply deterministic fixes. Available fixes: " + joinFixKinds() + ".\n" +
			"Without --kind every fix is applied.",
		RunE: func(cmd *cobra.Command, args []string) error {
			kinds := make([]core.FixKind, 0, len(kindNames))
			for _, name := range kindNames {
				k, err := core.ParseFixKind(name)
				if err != nil {
					return err
				}
				kinds = append(kinds, k)
			}

			res, err := c.load(cmd.Context())
			if err != nil {
				return err
			}
			changed := core.ApplyFixesTo(res.State(), kinds)
			st, err := res.Store.Dispatch(cmd.Context(), core.ApplyFixes{Kinds: kinds})
			if err != nil {
				return err
			}

			out := fixOutput{
				RowsChanged: changed,
				Summary:     core.Summarize(st.ValidationErrors),
				Blocking:    core.HasBlockingErrors(st.ValidationErrors),
			}
			if outDir != "" {
				if out.Written, err = core.WriteDir(outDir, st, time.Now()); err != nil {
					return err
				}
			}

			w := cmd.OutOrStdout()
			if c.v.GetBool("json") {
				return printJSON(w, out)
			}
			fmt.Fprintf(w, "%d row(s) changed\n", changed)
			renderSummary(w, st, out.Summary)
			for _, p := range out.Written {
				fmt.Fprintf(w, "wrote %s\n", p)
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&kindNames, "kind", nil, "fix to apply (repeatable)")
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "export the fixed data to this directory")
	return cmd
}

func joinFixKinds() string {
	names := make([]string, 0, len(core.FixKinds()))
	for _, k := range core.FixKinds() {
		names = append(names, string(k))
	}
	return strings.Join(names, ", ")
}

/* ----------------------------------------
	export
---------------------------------------- */

func (c *cli) exportCmd() *cobra.Command {
	var outDir string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write cleaned CSVs and rules_config.json",
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := c.load(cmd.Context())
			if err != nil {
				return err
			}
			return c.export(cmd.OutOrStdout(), res, outDir)
		},
	}
	cmd.Flags().StringVarP(&outDir, "out", "o", "export", "output directory")
	return cmd
}

func (c *cli) export(w io.Writer, res *handler.Result, outDir string) error {
	st := res.State()
	paths, err := core.WriteDir(outDir, st, time.Now())
	if err != nil {
		return err
	}
	if c.v.GetBool("json") {
		return printJSON(w, map[string]any{
			"written":  paths,
			"blocking": core.HasBlockingErrors(st.ValidationErrors),
		})
	}
	if n := core.Summarize(st.ValidationErrors).Errors; n > 0 {
		fmt.Fprintf(w, "warning: exported data still has %d error(s)\n", n)
	}
	for _, p := range paths {
		fmt.Fprintf(w, "wrote %s\n", p)
	}
	return nil
}

/* ----------------------------------------
	watch
---------------------------------------- */

func (c *cli) watchCmd() *cobra.Command {
	var (
		outDir   string
		debounce time.Duration
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Revalidate (and export) whenever files in --dir change",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			w := cmd.OutOrStdout()
			pass := func(ctx context.Context, changed []string) {
				if len(changed) > 0 {
					fmt.Fprintf(w, "\n%s changed\n", strings.Join(changed, ", "))
				}
				if err := c.runPass(ctx, w, outDir); err != nil {
					fmt.Fprintln(w, "error:", err)
				}
			}

			dw, err := newDirWatcher(c.v.GetString("dir"), debounce, pass)
			if err != nil {
				return err
			}
			pass(ctx, nil)
			dw.Start(ctx)
			<-ctx.Done()
			dw.Stop()
			return nil
		},
	}
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "also export to this directory after each change")
	cmd.Flags().DurationVar(&debounce, "debounce", 500*time.Millisecond, "wait for changes to settle")
	return cmd
}

func (c *cli) runPass(ctx context.Context, w io.Writer, outDir string) error {
	res, err := c.load(ctx)
	if err != nil {
		return err
	}
	if err := c.printValidation(w, res); err != nil {
		return err
	}
	if outDir == "" {
		return nil
	}
	return c.export(w, res, outDir)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
