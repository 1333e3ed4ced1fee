package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "cecat",
		Short: "EtherCAT master session tool",
		Long: `cecat is a command-line EtherCAT master for commissioning and testing
field-bus segments: bus scanning, state machine control, cyclic process
data exchange and direct register access.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringP("interface", "i", "", "network interface to use")
	rootCmd.PersistentFlags().StringP("config", "c", "", "path to YAML config file")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().Bool("sim", false, "run against a simulated segment instead of hardware")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newScanCmd())
	rootCmd.AddCommand(newReplCmd())
	rootCmd.AddCommand(newLoopCmd())
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(os.Stdout, "cecat version %s\n", version)
			fmt.Fprintf(os.Stdout, "commit: %s\n", commit)
			fmt.Fprintf(os.Stdout, "date: %s\n", date)
		},
	}
}
