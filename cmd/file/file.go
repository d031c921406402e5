// Package file implements one-shot classification of audio files
// from the command line.
package file

import (
	"fmt"
	"os"

	"github.com/TanmayBansa1/CNN-Audio-Classifier/internal/audionet"
	"github.com/TanmayBansa1/CNN-Audio-Classifier/internal/conf"
	"github.com/TanmayBansa1/CNN-Audio-Classifier/internal/myaudio"
	"github.com/TanmayBansa1/CNN-Audio-Classifier/internal/spectrogram"
	"github.com/spf13/cobra"
)

// Command creates the file command.
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "file [path...]",
		Short: "Classify audio files and print the top predictions",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(settings, args)
		},
	}
}

func run(settings *conf.Settings, paths []string) error {
	classifier, err := audionet.NewClassifier(settings)
	if err != nil {
		return err
	}
	gen := spectrogram.NewGenerator()

	for _, path := range paths {
		predictions, err := classifyFile(classifier, gen, path)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}

		fmt.Printf("%s\n", path)
		for i, p := range predictions {
			fmt.Printf("  %d. %-24s %.1f%%\n", i+1, p.Class, p.Confidence*100)
		}
	}
	return nil
}

func classifyFile(classifier *audionet.Classifier, gen *spectrogram.Generator, path string) ([]audionet.Prediction, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	audio, err := myaudio.DecodeBytes(data)
	if err != nil {
		return nil, err
	}
	mono := myaudio.ToMono(audio.Samples, audio.NumChannels)
	mono, err = myaudio.ResampleAudio(mono, audio.SampleRate, conf.SampleRate)
	if err != nil {
		return nil, err
	}

	spec, err := gen.Compute(mono)
	if err != nil {
		return nil, err
	}
	return classifier.Predict(spec)
}
