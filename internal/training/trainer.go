package training

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/TanmayBansa1/CNN-Audio-Classifier/internal/audionet"
	"github.com/TanmayBansa1/CNN-Audio-Classifier/internal/conf"
	"github.com/TanmayBansa1/CNN-Audio-Classifier/internal/errors"
	"github.com/TanmayBansa1/CNN-Audio-Classifier/internal/logging"
	"github.com/TanmayBansa1/CNN-Audio-Classifier/internal/myaudio"
	"github.com/TanmayBansa1/CNN-Audio-Classifier/internal/spectrogram"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// clipSeconds is the canonical clip length. ESC-50 clips are 5 seconds;
// shorter audio is zero-padded and longer audio truncated so every
// spectrogram in a batch has the same frame count.
const clipSeconds = 5

// Run trains the network on the configured dataset and keeps the best
// checkpoint by holdout accuracy.
func Run(settings *conf.Settings) error {
	log := logging.ForService("training")
	cfg := settings.Training

	dataset, err := LoadESC50(cfg.DatasetDir)
	if err != nil {
		return err
	}
	trainSet, holdout := dataset.Split(cfg.HoldoutFold)
	if len(trainSet) == 0 || len(holdout) == 0 {
		return errors.Newf("fold split produced empty sets: %d train, %d holdout", len(trainSet), len(holdout)).
			Component("training").
			Category(errors.CategoryValidation).
			Context("holdout_fold", cfg.HoldoutFold).
			Build()
	}

	gen := spectrogram.NewGenerator()
	clipSamples := clipSeconds * conf.SampleRate
	frames := gen.NumFrames(clipSamples)

	net := audionet.New(len(dataset.Classes))
	log.Info("training started",
		"classes", len(dataset.Classes),
		"train_samples", len(trainSet),
		"holdout_samples", len(holdout),
		"parameters", net.ParameterCount(),
		"epochs", cfg.Epochs,
		"batch_size", cfg.BatchSize)

	tg, err := net.BuildTrainingGraph(cfg.BatchSize, conf.NumMels, frames)
	if err != nil {
		return errors.New(err).
			Component("training").
			Category(errors.CategoryTraining).
			Build()
	}

	vm := tg.NewVM()
	defer vm.Close()

	solver := G.NewAdamSolver(
		G.WithLearnRate(cfg.LearningRate),
		G.WithBatchSize(float64(cfg.BatchSize)),
	)

	loader := &clipLoader{gen: gen, clipSamples: clipSamples}
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	bestAccuracy := -1.0
	bestPath := filepath.Join(cfg.OutputDir, "best_model.ckpt.gz")

	for epoch := 1; epoch <= cfg.Epochs; epoch++ {
		epochStart := time.Now()
		shuffle(rng, trainSet)

		var totalLoss float64
		var steps int
		for start := 0; start+cfg.BatchSize <= len(trainSet); start += cfg.BatchSize {
			batch := trainSet[start : start+cfg.BatchSize]
			x, y, err := loader.makeBatch(batch, len(dataset.Classes), frames)
			if err != nil {
				return err
			}

			if err := tg.SetBatch(x, y); err != nil {
				return err
			}
			if err := vm.RunAll(); err != nil {
				return errors.New(fmt.Errorf("training step failed: %w", err)).
					Component("training").
					Category(errors.CategoryTraining).
					Context("epoch", epoch).
					Context("step", steps).
					Build()
			}
			if err := solver.Step(G.NodesToValueGrads(tg.Trainable)); err != nil {
				return fmt.Errorf("solver step: %w", err)
			}
			if err := tg.UpdateRunningStats(); err != nil {
				return err
			}
			totalLoss += tg.CostValue()
			steps++
			vm.Reset()
		}

		if err := tg.SyncParams(); err != nil {
			return err
		}

		accuracy, err := evaluate(net, dataset.Classes, holdout, loader, frames)
		if err != nil {
			return err
		}

		avgLoss := 0.0
		if steps > 0 {
			avgLoss = totalLoss / float64(steps)
		}
		log.Info("epoch finished",
			"epoch", epoch,
			"loss", avgLoss,
			"holdout_accuracy", accuracy,
			"duration_s", time.Since(epochStart).Seconds())

		if accuracy > bestAccuracy {
			bestAccuracy = accuracy
			state := audionet.TrainingState{
				Epoch:        epoch,
				BestLoss:     avgLoss,
				BestAccuracy: accuracy,
			}
			if err := audionet.NewCheckpoint(net, dataset.Classes, state).Save(bestPath); err != nil {
				return errors.New(err).
					Component("training").
					Category(errors.CategoryCheckpoint).
					Context("path", bestPath).
					Build()
			}
			log.Info("checkpoint saved", "path", bestPath, "accuracy", accuracy)
		}
	}

	log.Info("training finished", "best_accuracy", bestAccuracy, "checkpoint", bestPath)
	return nil
}

// evaluate computes top-1 accuracy over the holdout samples.
func evaluate(net *audionet.Network, classes []string, holdout []Sample, loader *clipLoader, frames int) (float64, error) {
	classifier, err := audionet.NewClassifierFromNetwork(net, classes, 1)
	if err != nil {
		return 0, err
	}

	var correct int
	for i := range holdout {
		spec, err := loader.loadSpectrogram(holdout[i].Path)
		if err != nil {
			return 0, err
		}
		predictions, err := classifier.Predict(spec)
		if err != nil {
			return 0, err
		}
		if len(predictions) > 0 && predictions[0].Class == holdout[i].Category {
			correct++
		}
	}
	return float64(correct) / float64(len(holdout)), nil
}

// clipLoader decodes audio files into fixed-shape spectrogram tensors.
type clipLoader struct {
	gen         *spectrogram.Generator
	clipSamples int
}

// loadSpectrogram decodes one file and returns its (1,1,mels,frames)
// spectrogram at the canonical clip length.
func (l *clipLoader) loadSpectrogram(path string) (*tensor.Dense, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New(fmt.Errorf("failed to read audio file: %w", err)).
			Component("training").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
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

	// Fixed clip length keeps batch shapes uniform.
	fixed := make([]float32, l.clipSamples)
	copy(fixed, mono)

	return l.gen.Compute(fixed)
}

// makeBatch stacks the spectrograms and one-hot targets of a minibatch.
func (l *clipLoader) makeBatch(samples []Sample, numClasses, frames int) (x, y *tensor.Dense, err error) {
	specSize := conf.NumMels * frames
	xBacking := make([]float32, len(samples)*specSize)
	yBacking := make([]float32, len(samples)*numClasses)

	for i := range samples {
		spec, err := l.loadSpectrogram(samples[i].Path)
		if err != nil {
			return nil, nil, err
		}
		data, ok := spec.Data().([]float32)
		if !ok || len(data) != specSize {
			return nil, nil, fmt.Errorf("unexpected spectrogram size for %s", samples[i].Path)
		}
		copy(xBacking[i*specSize:], data)
		yBacking[i*numClasses+samples[i].Target] = 1
	}

	x = tensor.New(
		tensor.Of(tensor.Float32),
		tensor.WithShape(len(samples), 1, conf.NumMels, frames),
		tensor.WithBacking(xBacking),
	)
	y = tensor.New(
		tensor.Of(tensor.Float32),
		tensor.WithShape(len(samples), numClasses),
		tensor.WithBacking(yBacking),
	)
	return x, y, nil
}
