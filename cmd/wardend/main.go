package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	masterAddr string
)

func main() {
	root := &cobra.Command{
		Use:   "wardend",
		Short: "periodic security scan and regression engine",
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default ~/.warden/engine.toml)")

	triggerCmd.Flags().StringVar(&masterAddr, "master", "", "master address (default 127.0.0.1:<listen_port>)")
	listCmd.Flags().StringVar(&masterAddr, "master", "", "master address (default 127.0.0.1:<listen_port>)")

	root.AddCommand(masterCmd, workerCmd, validateCmd, triggerCmd, listCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
