package audionet

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/TanmayBansa1/CNN-Audio-Classifier/internal/conf"
	"github.com/TanmayBansa1/CNN-Audio-Classifier/internal/errors"
	"github.com/TanmayBansa1/CNN-Audio-Classifier/internal/logging"
	"gorgonia.org/tensor"
)

// Prediction is one ranked classification result.
type Prediction struct {
	Class      string  `json:"class"`
	Confidence float64 `json:"confidence"`
}

// Evaluation is the result of an instrumented forward pass.
type Evaluation struct {
	Predictions    []Prediction
	ActivationMaps map[string]*tensor.Dense
}

// Classifier wraps a loaded network with its class labels. It is
// constructed once at process start and is read-only afterwards, so it
// is safe to share across concurrent requests.
type Classifier struct {
	net     *Network
	classes []string
	topK    int
	log     *slog.Logger
}

// NewClassifier loads the checkpoint named in settings and builds a
// ready classifier. Any failure here is a startup failure: the caller
// must not serve requests against a partially loaded model.
func NewClassifier(settings *conf.Settings) (*Classifier, error) {
	log := logging.ForService("audionet")

	start := time.Now()
	ckpt, err := LoadCheckpointFile(settings.Model.CheckpointPath)
	if err != nil {
		return nil, errors.New(fmt.Errorf("failed to read checkpoint: %w", err)).
			Component("audionet").
			Category(errors.CategoryModelLoad).
			ModelContext(settings.Model.CheckpointPath).
			Timing("checkpoint-load", time.Since(start)).
			Build()
	}

	if len(ckpt.Classes) == 0 {
		return nil, errors.Newf("checkpoint carries no class labels").
			Component("audionet").
			Category(errors.CategoryLabelLoad).
			ModelContext(settings.Model.CheckpointPath).
			Build()
	}

	net := New(len(ckpt.Classes))
	report, err := ckpt.Apply(net)
	if err != nil {
		return nil, errors.New(fmt.Errorf("failed to populate network: %w", err)).
			Component("audionet").
			Category(errors.CategoryModelInit).
			ModelContext(settings.Model.CheckpointPath).
			Context("checkpoint_keys", len(ckpt.Weights)).
			Build()
	}

	if report.Exact() {
		log.Info("model initialized",
			"classes", len(ckpt.Classes),
			"parameters", net.ParameterCount(),
			"load_time_ms", time.Since(start).Milliseconds())
	} else {
		// Degraded load: usable but some weights kept their random init.
		log.Warn("model initialized with partial checkpoint match",
			"classes", len(ckpt.Classes),
			"matched", report.Matched,
			"missing", len(report.MissingKeys),
			"extra", len(report.ExtraKeys),
			"shape_mismatch", report.ShapeMismatch)
	}

	return &Classifier{
		net:     net,
		classes: ckpt.Classes,
		topK:    settings.Model.TopK,
		log:     log,
	}, nil
}

// NewClassifierFromNetwork wraps an already constructed network, used by
// the training harness for validation and by tests.
func NewClassifierFromNetwork(net *Network, classes []string, topK int) (*Classifier, error) {
	if net.NumClasses != len(classes) {
		return nil, fmt.Errorf("network has %d outputs but %d class labels", net.NumClasses, len(classes))
	}
	return &Classifier{
		net:     net,
		classes: classes,
		topK:    topK,
		log:     logging.ForService("audionet"),
	}, nil
}

// Classes returns the ordered class label list.
func (c *Classifier) Classes() []string {
	return c.classes
}

// Network returns the underlying network.
func (c *Classifier) Network() *Network {
	return c.net
}

// Predict runs a plain forward pass and returns the ranked top-k
// predictions.
func (c *Classifier) Predict(spec *tensor.Dense) ([]Prediction, error) {
	logits, err := c.net.Forward(spec)
	if err != nil {
		return nil, errors.New(err).
			Component("audionet").
			Category(errors.CategoryInference).
			Build()
	}
	return c.rank(logits)
}

// Evaluate runs an instrumented forward pass, returning ranked
// predictions and the raw activation snapshots.
func (c *Classifier) Evaluate(spec *tensor.Dense) (*Evaluation, error) {
	logits, maps, err := c.net.ForwardInstrumented(spec)
	if err != nil {
		return nil, errors.New(err).
			Component("audionet").
			Category(errors.CategoryInference).
			Build()
	}

	predictions, err := c.rank(logits)
	if err != nil {
		return nil, err
	}

	return &Evaluation{
		Predictions:    predictions,
		ActivationMaps: maps,
	}, nil
}

// rank converts logits to softmax confidences and returns the top-k
// classes by descending confidence. Non-finite logits are zeroed before
// normalization so the output is always JSON-safe.
func (c *Classifier) rank(logits *tensor.Dense) ([]Prediction, error) {
	data, ok := logits.Data().([]float32)
	if !ok || len(data) < len(c.classes) {
		return nil, errors.Newf("logits have unexpected backing (%d values for %d classes)", len(data), len(c.classes)).
			Component("audionet").
			Category(errors.CategoryInference).
			Build()
	}
	row := data[:len(c.classes)]

	probs := softmax(row)

	idx := make([]int, len(probs))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return probs[idx[a]] > probs[idx[b]] })

	k := c.topK
	if k <= 0 || k > len(idx) {
		k = len(idx)
	}
	predictions := make([]Prediction, k)
	for i := 0; i < k; i++ {
		predictions[i] = Prediction{
			Class:      c.classes[idx[i]],
			Confidence: probs[idx[i]],
		}
	}
	return predictions, nil
}

// softmax computes a numerically stable softmax over the full class
// distribution, zeroing non-finite inputs first.
func softmax(logits []float32) []float64 {
	clean := make([]float64, len(logits))
	maxVal := math.Inf(-1)
	for i, v := range logits {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			f = 0
		}
		clean[i] = f
		if f > maxVal {
			maxVal = f
		}
	}

	var sum float64
	for i, v := range clean {
		e := math.Exp(v - maxVal)
		clean[i] = e
		sum += e
	}
	if sum == 0 {
		uniform := 1.0 / float64(len(clean))
		for i := range clean {
			clean[i] = uniform
		}
		return clean
	}
	for i := range clean {
		clean[i] /= sum
	}
	return clean
}
