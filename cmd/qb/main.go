package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/fivetwenty-io/qbclient/cmd/qb/commands"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := commands.NewRootCommand(version, commit, date)

	cobra.OnInitialize(initConfig)

	for _, name := range []string{commands.FlagConfig, commands.FlagEnvFile, commands.FlagOutput, commands.FlagVerbose} {
		_ = viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// initConfig lets QB_OUTPUT and QB_VERBOSE override the flag defaults.
func initConfig() {
	viper.SetEnvPrefix("QB")
	_ = viper.BindEnv(commands.FlagOutput)
	_ = viper.BindEnv(commands.FlagVerbose)
}
