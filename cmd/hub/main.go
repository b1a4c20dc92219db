// Command hub runs a Farcaster Hub core engine node.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/farcasterxyz/hubcore/version"
)

func init() {
	RootCmd.AddCommand(NewRunCmd())
	RootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "print the version and exit",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version.Version)
		},
	})
}

func main() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
