package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stelo/blockproof/config"
	"github.com/stelo/blockproof/global"
)

var (
	// Used for flags.
	rootCmd = &cobra.Command{
		Use: "blockproof",
	}
)

// Execute executes the root command.
func Execute() error {
	defer global.Cleanup()
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().AddFlagSet(config.GlobalFlagSet)
	err := viper.BindPFlags(config.GlobalFlagSet)
	if err != nil {
		panic(fmt.Errorf("failed to bind global flags: %w", err))
	}

	rootCmd.AddCommand(verifyCmd)
}

func initConfig() {
}
