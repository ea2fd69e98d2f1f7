package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sakif/csv-extractor/internal/apperror"
)

var checkCmd = &cobra.Command{
	Use:   "check <file|->",
	Short: "Validate a script without running it",
	Long: `Parse a script and check it against the import and call policy.
Exits non-zero and names the offending module or function on a violation.

Examples:
  extractor check extract.py
  cat extract.py | extractor check -`,
	Args: cobra.ExactArgs(1),
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig(cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	code, err := readSource(args[0], cmd.InOrStdin())
	if err != nil {
		return err
	}

	v, err := newValidator(cfg)
	if err != nil {
		return err
	}

	if err := v.Validate(cmd.Context(), code); err != nil {
		var appErr *apperror.AppError
		if errors.As(err, &appErr) && appErr.Detail != "" {
			return fmt.Errorf("%s: %s: %s", apperror.Kind(err), appErr.Message, appErr.Detail)
		}
		return fmt.Errorf("%s: %w", apperror.Kind(err), err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), "ok")
	return nil
}
