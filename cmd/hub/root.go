package main

import (
	"github.com/spf13/cobra"

	"github.com/farcasterxyz/hubcore/config"
)

var cliConfig = config.NewDefaultConfig()

// RootCmd is the root command for the hub binary.
var RootCmd = &cobra.Command{
	Use:              "hub",
	Short:            "farcaster hub core engine",
	TraverseChildren: true,
}
