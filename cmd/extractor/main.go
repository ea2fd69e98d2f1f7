// Command extractor serves and runs the CSV extraction API: submitted Python
// is vetted against an import/call policy, executed in isolation and the file
// it writes is handed back for download.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configFlag string

var rootCmd = &cobra.Command{
	Use:   "extractor",
	Short: "Validate and run pandas extraction scripts",
	Long: `extractor runs user-supplied pandas/numpy scripts against a source CSV.

Every script is parsed and checked against the import and call policy before
it runs. Scripts run one process (or container) each, in a private output
directory, and the file they write can be downloaded once.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "config file (default ./extractor.yaml or $HOME/.extractor/extractor.yaml)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
