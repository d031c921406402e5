// Package training fits the classifier on an ESC-50 style labeled audio
// dataset and writes checkpoints.
package training

import (
	"encoding/csv"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"

	"github.com/TanmayBansa1/CNN-Audio-Classifier/internal/errors"
)

// Sample is one labeled clip in the dataset.
type Sample struct {
	Path     string
	Fold     int
	Target   int
	Category string
}

// Dataset is an indexed ESC-50 style dataset: a meta CSV naming clips,
// folds and integer targets, plus the audio files themselves.
type Dataset struct {
	Samples []Sample
	Classes []string // ordered by target index
}

// LoadESC50 reads meta/esc50.csv under root and builds the sample index
// and the ordered class label list.
func LoadESC50(root string) (*Dataset, error) {
	metaPath := filepath.Join(root, "meta", "esc50.csv")
	f, err := os.Open(metaPath)
	if err != nil {
		return nil, errors.New(fmt.Errorf("failed to open dataset metadata: %w", err)).
			Component("training").
			Category(errors.CategoryFileIO).
			Context("path", metaPath).
			Build()
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("reading dataset header: %w", err)
	}

	col := make(map[string]int, len(header))
	for i, name := range header {
		col[name] = i
	}
	for _, required := range []string{"filename", "fold", "target", "category"} {
		if _, ok := col[required]; !ok {
			return nil, errors.Newf("dataset metadata missing column %q", required).
				Component("training").
				Category(errors.CategoryValidation).
				Context("path", metaPath).
				Build()
		}
	}

	var samples []Sample
	labelByTarget := make(map[int]string)
	maxTarget := -1

	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading dataset metadata: %w", err)
		}

		fold, err := strconv.Atoi(record[col["fold"]])
		if err != nil {
			return nil, fmt.Errorf("invalid fold %q: %w", record[col["fold"]], err)
		}
		target, err := strconv.Atoi(record[col["target"]])
		if err != nil {
			return nil, fmt.Errorf("invalid target %q: %w", record[col["target"]], err)
		}

		category := record[col["category"]]
		if existing, ok := labelByTarget[target]; ok && existing != category {
			return nil, errors.Newf("target %d maps to both %q and %q", target, existing, category).
				Component("training").
				Category(errors.CategoryValidation).
				Build()
		}
		labelByTarget[target] = category
		if target > maxTarget {
			maxTarget = target
		}

		samples = append(samples, Sample{
			Path:     filepath.Join(root, "audio", record[col["filename"]]),
			Fold:     fold,
			Target:   target,
			Category: category,
		})
	}

	if len(samples) == 0 {
		return nil, errors.Newf("dataset metadata contains no samples").
			Component("training").
			Category(errors.CategoryValidation).
			Context("path", metaPath).
			Build()
	}

	classes := make([]string, maxTarget+1)
	for target, label := range labelByTarget {
		classes[target] = label
	}
	for target, label := range classes {
		if label == "" {
			return nil, errors.Newf("target index %d has no category label", target).
				Component("training").
				Category(errors.CategoryValidation).
				Build()
		}
	}

	return &Dataset{Samples: samples, Classes: classes}, nil
}

// Split partitions samples into a training set and the holdout fold.
func (d *Dataset) Split(holdoutFold int) (train, holdout []Sample) {
	for _, s := range d.Samples {
		if s.Fold == holdoutFold {
			holdout = append(holdout, s)
		} else {
			train = append(train, s)
		}
	}
	return train, holdout
}

// shuffle permutes samples in place.
func shuffle(rng *rand.Rand, samples []Sample) {
	rng.Shuffle(len(samples), func(i, j int) {
		samples[i], samples[j] = samples[j], samples[i]
	})
}
