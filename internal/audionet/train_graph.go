package audionet

import (
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// bnMomentum is the running-statistics update rate used during training.
const bnMomentum = 0.1

// TrainingGraph is a compiled training-mode forward/backward graph for a
// fixed batch shape. Rebind input and targets with SetBatch between
// steps and reuse the same VM.
type TrainingGraph struct {
	Graph     *G.ExprGraph
	Input     *G.Node
	Targets   *G.Node
	Logits    *G.Node
	Cost      *G.Node
	Trainable G.Nodes

	costValue G.Value
	stats     []*batchStat
	params    *ParamStore
}

// BuildTrainingGraph constructs the training graph for the given batch
// shape: softmax cross-entropy over the class distribution, gradients
// for every trainable tensor, dropout active, batch-statistics
// normalization.
func (n *Network) BuildTrainingGraph(batchSize, melBins, frames int) (*TrainingGraph, error) {
	g := G.NewGraph()
	input := G.NewTensor(g, tensor.Float32, 4,
		G.WithShape(batchSize, 1, melBins, frames), G.WithName("input"))
	targets := G.NewTensor(g, tensor.Float32, 2,
		G.WithShape(batchSize, n.NumClasses), G.WithName("targets"))

	b := &graphBuilder{g: g, params: n.Params, training: true}
	logits := b.build(n, input)

	probs := b.apply(G.SoftMax(logits, 1))
	logProbs := b.apply(G.Log(probs))
	ll := b.apply(G.HadamardProd(targets, logProbs))
	perSample := b.apply(G.Sum(ll, 1))
	cost := b.apply(G.Neg(b.apply(G.Mean(perSample))))
	if b.err != nil {
		return nil, fmt.Errorf("building training graph: %w", b.err)
	}

	tg := &TrainingGraph{
		Graph:     g,
		Input:     input,
		Targets:   targets,
		Logits:    logits,
		Cost:      cost,
		Trainable: b.trainable,
		stats:     b.stats,
		params:    n.Params,
	}
	G.Read(cost, &tg.costValue)

	if _, err := G.Grad(cost, tg.Trainable...); err != nil {
		return nil, fmt.Errorf("building gradients: %w", err)
	}
	return tg, nil
}

// NewVM returns a tape machine with dual values bound for the solver.
func (tg *TrainingGraph) NewVM() G.VM {
	return G.NewTapeMachine(tg.Graph, G.BindDualValues(tg.Trainable...))
}

// SetBatch binds one minibatch to the graph inputs.
func (tg *TrainingGraph) SetBatch(x, y *tensor.Dense) error {
	if err := G.Let(tg.Input, x); err != nil {
		return fmt.Errorf("binding input: %w", err)
	}
	if err := G.Let(tg.Targets, y); err != nil {
		return fmt.Errorf("binding targets: %w", err)
	}
	return nil
}

// CostValue returns the scalar loss of the last executed step.
func (tg *TrainingGraph) CostValue() float64 {
	if tg.costValue == nil {
		return 0
	}
	switch v := tg.costValue.Data().(type) {
	case float32:
		return float64(v)
	case []float32:
		if len(v) > 0 {
			return float64(v[0])
		}
	}
	return 0
}

// UpdateRunningStats folds the batch statistics of the last step into
// the stored running mean/variance with momentum. Variance uses the
// unbiased estimate, matching the convention of the checkpoint.
func (tg *TrainingGraph) UpdateRunningStats() error {
	for _, st := range tg.stats {
		if st.mean == nil || st.variance == nil {
			continue
		}
		batchMean, ok1 := st.mean.Data().([]float32)
		batchVar, ok2 := st.variance.Data().([]float32)
		if !ok1 || !ok2 {
			continue
		}

		correction := float32(1)
		if st.count > 1 {
			correction = float32(st.count) / float32(st.count-1)
		}

		for _, part := range []struct {
			suffix string
			batch  []float32
			scale  float32
		}{
			{".mean", batchMean, 1},
			{".variance", batchVar, correction},
		} {
			t, found := tg.params.Get(st.prefix + part.suffix)
			if !found {
				return fmt.Errorf("missing running statistic: %s%s", st.prefix, part.suffix)
			}
			data, ok := t.Data().([]float32)
			if !ok || len(data) != len(part.batch) {
				return fmt.Errorf("running statistic shape mismatch: %s%s", st.prefix, part.suffix)
			}
			for c := range data {
				data[c] = (1-bnMomentum)*data[c] + bnMomentum*part.batch[c]*part.scale
			}
		}
	}
	return nil
}

// SyncParams copies trainable node values back into the parameter store.
// The solver updates node values in place, so this is normally a no-op
// safety net before checkpointing.
func (tg *TrainingGraph) SyncParams() error {
	for _, node := range tg.Trainable {
		val := node.Value()
		if val == nil {
			continue
		}
		d, ok := val.(*tensor.Dense)
		if !ok {
			continue
		}
		if err := tg.params.Set(node.Name(), d); err != nil {
			return err
		}
	}
	return nil
}
