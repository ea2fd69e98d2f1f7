package main

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/sakif/csv-extractor/internal/apperror"
)

var runCmd = &cobra.Command{
	Use:   "run <file|->",
	Short: "Validate and execute a script",
	Long: `Validate a script, run it with the configured executor and print where
its output file was written. The run is recorded like one submitted over HTTP.

Examples:
  extractor run extract.py
  extractor run --config prod.yaml - < extract.py`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	code, err := readSource(args[0], cmd.InOrStdin())
	if err != nil {
		return err
	}

	a, err := newApp(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.close()

	out := cmd.OutOrStdout()
	run, err := a.runs.Run(cmd.Context(), "", code)
	if err != nil {
		if run != nil {
			fmt.Fprintf(out, "run %s: %s\n", run.ID, run.Status)
		}
		var appErr *apperror.AppError
		if errors.As(err, &appErr) && appErr.Detail != "" {
			fmt.Fprintln(cmd.ErrOrStderr(), appErr.Detail)
		}
		return fmt.Errorf("%s: %w", apperror.Kind(err), err)
	}

	fmt.Fprintf(out, "run %s: %s (%s)\n", run.ID, run.Status, run.Duration)
	if run.Output != "" {
		fmt.Fprintln(out, run.Output)
	}
	if run.FilePath != "" {
		fmt.Fprintf(out, "file: %s\n", filepath.Join(a.runs.OutputRoot(), filepath.FromSlash(run.FilePath)))
	}
	return nil
}
