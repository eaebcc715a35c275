// Command grizzly-ls is the process entry point for the grizzly Gherkin
// language server. It owns process lifecycle only
// — flag parsing, logger construction, signal handling — and hands a
// transport to the Server Core's request loop.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var (
	flagStdio     bool
	flagSocket    string
	flagHost      string
	flagPort      int
	flagVerbose   bool
	flagEmbedded  bool
	flagWorkspace string
)

var rootCmd = &cobra.Command{
	Use:   "grizzly-ls",
	Short: "Language server for grizzly Gherkin feature files",
	Long: `grizzly-ls provides completion, hover, go-to-definition, and
diagnostics for grizzly feature files, backed by a live catalogue of step
definitions harvested from the project's external Python step library.

By default it speaks LSP over stdio, the convention editors expect when
they launch a language server as a child process.`,
	PersistentPreRunE: bootstrapLogger,
	RunE:              runServe,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&flagVerbose, "verbose", false, "enable debug-level logging")
	rootCmd.PersistentFlags().BoolVar(&flagEmbedded, "embedded", false, "running inside an editor's debug console; prefer human-readable logs")
	rootCmd.PersistentFlags().StringVarP(&flagWorkspace, "workspace", "w", "", "workspace root (default: current directory)")

	rootCmd.Flags().BoolVar(&flagStdio, "stdio", true, "serve over stdin/stdout (default transport)")
	rootCmd.Flags().StringVar(&flagSocket, "socket", "", "serve over a Unix domain socket at this path instead of stdio")
	rootCmd.Flags().StringVar(&flagHost, "host", "", "serve over TCP at this host instead of stdio (requires --port)")
	rootCmd.Flags().IntVar(&flagPort, "port", 0, "TCP port to serve on, paired with --host")
}
