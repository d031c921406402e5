// Package serve implements the HTTP inference service command.
package serve

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/TanmayBansa1/CNN-Audio-Classifier/internal/api"
	"github.com/TanmayBansa1/CNN-Audio-Classifier/internal/audionet"
	"github.com/TanmayBansa1/CNN-Audio-Classifier/internal/conf"
	"github.com/TanmayBansa1/CNN-Audio-Classifier/internal/spectrogram"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Command creates the serve command.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP inference service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(settings)
		},
	}

	cmd.Flags().IntVarP(&settings.Server.Port, "port", "p", settings.Server.Port, "Port to listen on")
	cmd.Flags().StringVar(&settings.Server.Host, "host", settings.Server.Host, "Address to listen on")

	for key, name := range map[string]string{
		"server.port": "port",
		"server.host": "host",
	} {
		if err := viper.BindPFlag(key, cmd.Flags().Lookup(name)); err != nil {
			panic(fmt.Errorf("error binding %s flag: %w", name, err))
		}
	}

	return cmd
}

func run(settings *conf.Settings) error {
	classifier, err := audionet.NewClassifier(settings)
	if err != nil {
		return err
	}

	controller := api.New(settings, classifier, spectrogram.NewGenerator())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return controller.Start(ctx)
}
