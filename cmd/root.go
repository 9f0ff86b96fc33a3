package cmd

import (
	"log"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:     "reelforge",
	Short:   "Short-video generation backend",
	Long:    "Task orchestration backend for AI-generated reels: content, narration, rendering and publishing",
	Version: "1.0.0",
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

// initConfig reads the config file and matching environment variables.
func initConfig() {
	// Config file search paths
	viper.AddConfigPath("./data") // data folder relative to the working directory
	viper.AddConfigPath(".")      // current directory
	viper.SetConfigType("yaml")
	viper.SetConfigName("config")

	viper.AutomaticEnv() // read matching environment variables

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Println("failed to read config file:", err)
			os.Exit(1)
		}
	}
}
