package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := buildRoot().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// GlobalFlags holds the persistent flags shared by all subcommands.
type GlobalFlags struct {
	ConfigPath string
}

func buildRoot() *cobra.Command {
	gf := &GlobalFlags{}
	root := &cobra.Command{
		Use:           "astra",
		Short:         "Rover node agent: component supervision and dashboard relay",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&gf.ConfigPath, "config", "c", "", "path to rover config (TOML)")

	root.AddCommand(newUpCmd(gf))
	root.AddCommand(newRelayCmd(gf))
	root.AddCommand(newStatusCmd(gf))
	root.AddCommand(newStopCmd(gf))
	root.AddCommand(newEventsCmd(gf))
	root.AddCommand(newCaptureCmd(gf))
	root.AddCommand(newCheckCmd(gf))
	return root
}
