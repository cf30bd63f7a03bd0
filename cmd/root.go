package cmd

import (
	"fmt"
	"os"

	"github.com/OmegaNetwork-source/omega-bridge/cmd/debug"
	"github.com/OmegaNetwork-source/omega-bridge/cmd/relayer"
	"github.com/OmegaNetwork-source/omega-bridge/pkg/version"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "relayer",
	Short: "Omega <-> Solana bridge relayer",
}

// Top-level version subcommand
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Display binary version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.Version())
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	// Configuration files are per subcommand, see the node command's --configFile.
	rootCmd.AddCommand(relayer.NodeCmd)
	rootCmd.AddCommand(debug.DebugCmd)
	rootCmd.AddCommand(versionCmd)
}
