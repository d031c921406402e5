// Package cmd wires the command line interface.
package cmd

import (
	"fmt"

	"github.com/TanmayBansa1/CNN-Audio-Classifier/cmd/file"
	"github.com/TanmayBansa1/CNN-Audio-Classifier/cmd/serve"
	"github.com/TanmayBansa1/CNN-Audio-Classifier/cmd/train"
	"github.com/TanmayBansa1/CNN-Audio-Classifier/internal/conf"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// RootCommand creates and returns the root command with all
// subcommands attached.
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "audioclassifier",
		Short: "Environmental sound classifier",
		Long:  "A convolutional sound classifier over mel spectrograms, with a training harness and an HTTP inference service.",
	}

	rootCmd.AddCommand(
		serve.Command(settings),
		train.Command(settings),
		file.Command(settings),
	)

	setupFlags(rootCmd, settings)

	// Sync the settings struct with viper after flag parsing so that
	// command line arguments take precedence over file and env values.
	// Every flag is bound to its viper key, so the unmarshal sees set
	// flags first and falls back to file/env/default otherwise.
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return conf.SyncViper(settings)
	}

	return rootCmd
}

// setupFlags defines global flags shared by every subcommand.
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) {
	rootCmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", settings.Debug, "Enable debug output")
	rootCmd.PersistentFlags().StringVarP(&settings.Model.CheckpointPath, "model", "m", settings.Model.CheckpointPath, "Path to the model checkpoint")

	if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		panic(fmt.Errorf("error binding debug flag: %w", err))
	}
	if err := viper.BindPFlag("model.checkpointpath", rootCmd.PersistentFlags().Lookup("model")); err != nil {
		panic(fmt.Errorf("error binding model flag: %w", err))
	}
}
