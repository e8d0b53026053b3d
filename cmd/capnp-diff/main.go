package main

import (
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"capnpdiff/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "capnp-diff",
	Short: "Semantic diff for Cap'n Proto schemas",
	Long: `capnp-diff compares two versions of a Cap'n Proto schema and classifies
every change by the breakage it causes: none, source-level, or wire-level.
Exit codes make it suitable as a CI gate against incompatible evolution.`,
}

func main() {
	// Версия для автоматического флага --version
	rootCmd.Version = version.Version

	rootCmd.AddCommand(diffCmd)
	rootCmd.AddCommand(versionCmd)

	// Глобальные флаги
	rootCmd.PersistentFlags().String("color", "auto", "colorize output (auto|on|off)")
	rootCmd.PersistentFlags().Bool("quiet", false, "suppress non-essential output")
	rootCmd.PersistentFlags().Bool("timings", false, "show timing information")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(3)
	}
}

// isTerminal проверяет, является ли файл терминалом
func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// resolveColor maps the --color mode onto a boolean for the renderers.
func resolveColor(mode string) bool {
	switch mode {
	case "on":
		return true
	case "off":
		return false
	default:
		return isTerminal(os.Stdout)
	}
}
