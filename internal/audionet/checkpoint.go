package audionet

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorgonia.org/tensor"
)

// checkpointVersion identifies the serialization layout.
const checkpointVersion = 1

// WeightTensor is one named parameter with its shape and flattened data.
type WeightTensor struct {
	Name  string    `json:"name"`
	Shape []int     `json:"shape"`
	Data  []float32 `json:"data"`
}

// TrainingState captures training progress at checkpoint time.
type TrainingState struct {
	Epoch        int     `json:"epoch"`
	BestLoss     float64 `json:"best_loss"`
	BestAccuracy float64 `json:"best_accuracy"`
}

// CheckpointMetadata describes the run that produced the checkpoint.
type CheckpointMetadata struct {
	RunID     string    `json:"run_id"`
	CreatedAt time.Time `json:"created_at"`
	Framework string    `json:"framework"`
}

// Checkpoint is the persisted model state: weights plus the ordered
// class label list used at training time.
type Checkpoint struct {
	Version  int                `json:"version"`
	Classes  []string           `json:"classes"`
	Weights  []WeightTensor     `json:"weights"`
	Training TrainingState      `json:"training"`
	Metadata CheckpointMetadata `json:"metadata"`
}

// LoadReport summarizes how well a checkpoint matched the constructed
// network's parameter set.
type LoadReport struct {
	Matched       int
	ShapeMismatch int
	MissingKeys   []string // in the network but not the checkpoint
	ExtraKeys     []string // in the checkpoint but not the network
}

// Exact reports whether the checkpoint matched the network perfectly.
func (r *LoadReport) Exact() bool {
	return r.ShapeMismatch == 0 && len(r.MissingKeys) == 0 && len(r.ExtraKeys) == 0
}

// NewCheckpoint snapshots the network weights and class list.
func NewCheckpoint(n *Network, classes []string, state TrainingState) *Checkpoint {
	weights := make([]WeightTensor, 0, n.Params.Len())
	for _, name := range n.Params.Names() {
		t, _ := n.Params.Get(name)
		data, _ := t.Data().([]float32)
		weights = append(weights, WeightTensor{
			Name:  name,
			Shape: append([]int(nil), t.Shape()...),
			Data:  append([]float32(nil), data...),
		})
	}
	return &Checkpoint{
		Version:  checkpointVersion,
		Classes:  append([]string(nil), classes...),
		Weights:  weights,
		Training: state,
		Metadata: CheckpointMetadata{
			RunID:     uuid.New().String(),
			CreatedAt: time.Now().UTC(),
			Framework: "gorgonia",
		},
	}
}

// Save writes the checkpoint as JSON, gzip-compressed when the path
// ends in .gz.
func (c *Checkpoint) Save(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating checkpoint directory: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating checkpoint file: %w", err)
	}
	defer f.Close()

	var w io.Writer = f
	var gz *gzip.Writer
	if strings.HasSuffix(path, ".gz") {
		gz = gzip.NewWriter(f)
		w = gz
	}

	if err := json.NewEncoder(w).Encode(c); err != nil {
		return fmt.Errorf("encoding checkpoint: %w", err)
	}
	if gz != nil {
		if err := gz.Close(); err != nil {
			return fmt.Errorf("finalizing checkpoint: %w", err)
		}
	}
	return f.Sync()
}

// LoadCheckpointFile reads a checkpoint from disk.
func LoadCheckpointFile(path string) (*Checkpoint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening checkpoint: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("opening compressed checkpoint: %w", err)
		}
		defer gz.Close()
		r = gz
	}

	var c Checkpoint
	if err := json.NewDecoder(r).Decode(&c); err != nil {
		return nil, fmt.Errorf("decoding checkpoint: %w", err)
	}
	return &c, nil
}

// Apply copies matching weights into the network and reports the
// key-set comparison. Shape mismatches leave the initialized weight in
// place and are counted, not fatal.
func (c *Checkpoint) Apply(n *Network) (*LoadReport, error) {
	report := &LoadReport{}
	seen := make(map[string]bool, len(c.Weights))

	for _, w := range c.Weights {
		seen[w.Name] = true
		current, ok := n.Params.Get(w.Name)
		if !ok {
			report.ExtraKeys = append(report.ExtraKeys, w.Name)
			continue
		}
		if current.Shape().TotalSize() != len(w.Data) {
			report.ShapeMismatch++
			continue
		}
		t := tensor.New(
			tensor.Of(tensor.Float32),
			tensor.WithShape(w.Shape...),
			tensor.WithBacking(append([]float32(nil), w.Data...)),
		)
		if err := n.Params.Set(w.Name, t); err != nil {
			report.ShapeMismatch++
			continue
		}
		report.Matched++
	}

	for _, name := range n.Params.Names() {
		if !seen[name] {
			report.MissingKeys = append(report.MissingKeys, name)
		}
	}

	if report.Matched == 0 {
		return report, fmt.Errorf("no usable parameters in checkpoint: %d keys, none matched", len(c.Weights))
	}
	return report, nil
}
