// Package train implements the training command.
package train

import (
	"fmt"

	"github.com/TanmayBansa1/CNN-Audio-Classifier/internal/conf"
	"github.com/TanmayBansa1/CNN-Audio-Classifier/internal/training"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Command creates the train command.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train the classifier on an ESC-50 style dataset",
		RunE: func(cmd *cobra.Command, args []string) error {
			return training.Run(settings)
		},
	}

	cmd.Flags().StringVar(&settings.Training.DatasetDir, "dataset", settings.Training.DatasetDir, "Dataset root directory")
	cmd.Flags().StringVar(&settings.Training.OutputDir, "output", settings.Training.OutputDir, "Checkpoint output directory")
	cmd.Flags().IntVar(&settings.Training.Epochs, "epochs", settings.Training.Epochs, "Number of training epochs")
	cmd.Flags().IntVar(&settings.Training.BatchSize, "batch-size", settings.Training.BatchSize, "Minibatch size")
	cmd.Flags().Float64Var(&settings.Training.LearningRate, "learning-rate", settings.Training.LearningRate, "Adam learning rate")
	cmd.Flags().IntVar(&settings.Training.HoldoutFold, "holdout-fold", settings.Training.HoldoutFold, "Dataset fold reserved for validation")

	for key, name := range map[string]string{
		"training.datasetdir":   "dataset",
		"training.outputdir":    "output",
		"training.epochs":       "epochs",
		"training.batchsize":    "batch-size",
		"training.learningrate": "learning-rate",
		"training.holdoutfold":  "holdout-fold",
	} {
		if err := viper.BindPFlag(key, cmd.Flags().Lookup(name)); err != nil {
			panic(fmt.Errorf("error binding %s flag: %w", name, err))
		}
	}

	return cmd
}
