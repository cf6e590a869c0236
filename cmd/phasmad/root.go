package main

import (
	"github.com/spf13/cobra"

	"github.com/phasmapay/phasma/phasmaClient/constant"
)

var homeDir string

func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "phasmad",
		Short:         "PhasmaPay tap-to-pay client daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&homeDir, "home", constant.DefaultNodeHome, "Node home directory")

	InitRootCmd(rootCmd)

	return rootCmd
}
