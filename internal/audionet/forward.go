package audionet

import (
	"fmt"
	"math"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// graphBuilder assembles the computation graph for one forward pass.
// All helpers short-circuit once an error is recorded so the assembly
// code reads linearly.
type graphBuilder struct {
	g          *G.ExprGraph
	params     *ParamStore
	training   bool
	instrument bool

	captures  map[string]*G.Value
	trainable G.Nodes
	stats     []*batchStat
	err       error
}

// batchStat holds one normalization layer's batch statistics, read off
// the graph during training for the running-average update.
type batchStat struct {
	prefix   string
	count    int // per-channel element count in the batch
	mean     G.Value
	variance G.Value
}

func (b *graphBuilder) apply(n *G.Node, err error) *G.Node {
	if b.err != nil {
		return nil
	}
	if err != nil {
		b.err = err
		return nil
	}
	return n
}

// param creates a graph node backed by the stored weight tensor.
func (b *graphBuilder) param(name string) *G.Node {
	if b.err != nil {
		return nil
	}
	t, ok := b.params.Get(name)
	if !ok {
		b.err = fmt.Errorf("missing parameter: %s", name)
		return nil
	}
	return G.NewTensor(b.g, tensor.Float32, t.Dims(), G.WithValue(t), G.WithName(name))
}

// trainableParam is param plus gradient tracking in training mode.
func (b *graphBuilder) trainableParam(name string) *G.Node {
	node := b.param(name)
	if node != nil && b.training {
		b.trainable = append(b.trainable, node)
	}
	return node
}

func (b *graphBuilder) conv2d(x *G.Node, name string, kernel, pad, stride int) *G.Node {
	w := b.trainableParam(name)
	if b.err != nil {
		return nil
	}
	return b.apply(G.Conv2d(x, w, tensor.Shape{kernel, kernel}, []int{pad, pad}, []int{stride, stride}, []int{1, 1}))
}

func (b *graphBuilder) rectify(x *G.Node) *G.Node {
	if b.err != nil {
		return nil
	}
	return b.apply(G.Rectify(x))
}

func (b *graphBuilder) maxPool(x *G.Node, kernel, pad, stride int) *G.Node {
	if b.err != nil {
		return nil
	}
	return b.apply(G.MaxPool2D(x, tensor.Shape{kernel, kernel}, []int{pad, pad}, []int{stride, stride}))
}

func (b *graphBuilder) reshape(x *G.Node, shape tensor.Shape) *G.Node {
	if b.err != nil {
		return nil
	}
	return b.apply(G.Reshape(x, shape))
}

// batchNorm dispatches between the inference and training formulations.
func (b *graphBuilder) batchNorm(x *G.Node, prefix string, ch int) *G.Node {
	if b.training {
		return b.batchNormTrain(x, prefix, ch)
	}
	return b.batchNormEval(x, prefix, ch)
}

// batchNormEval folds the running statistics into a per-channel affine
// transform. At inference the statistics are constants, so
// y = x*scale + shift with scale = gamma/sqrt(var+eps).
func (b *graphBuilder) batchNormEval(x *G.Node, prefix string, ch int) *G.Node {
	if b.err != nil {
		return nil
	}

	gamma, beta, mean, variance, err := b.bnTensors(prefix)
	if err != nil {
		b.err = err
		return nil
	}

	scale := make([]float32, ch)
	shift := make([]float32, ch)
	for c := 0; c < ch; c++ {
		s := gamma[c] / float32(math.Sqrt(float64(variance[c])+bnEpsilon))
		scale[c] = s
		shift[c] = beta[c] - mean[c]*s
	}

	scaleNode := G.NewTensor(b.g, tensor.Float32, 4,
		G.WithValue(tensor.New(tensor.Of(tensor.Float32), tensor.WithShape(1, ch, 1, 1), tensor.WithBacking(scale))),
		G.WithName(prefix+".scale"))
	shiftNode := G.NewTensor(b.g, tensor.Float32, 4,
		G.WithValue(tensor.New(tensor.Of(tensor.Float32), tensor.WithShape(1, ch, 1, 1), tensor.WithBacking(shift))),
		G.WithName(prefix+".shift"))

	h := b.apply(G.BroadcastHadamardProd(x, scaleNode, nil, []byte{0, 2, 3}))
	return b.apply(G.BroadcastAdd(h, shiftNode, nil, []byte{0, 2, 3}))
}

// batchNormTrain normalizes with batch statistics and records them for
// the running-average update after the step.
func (b *graphBuilder) batchNormTrain(x *G.Node, prefix string, ch int) *G.Node {
	if b.err != nil {
		return nil
	}

	gamma := b.trainableParam(prefix + ".gamma")
	beta := b.trainableParam(prefix + ".beta")
	if b.err != nil {
		return nil
	}

	shape4 := tensor.Shape{1, ch, 1, 1}

	mean := b.apply(G.Mean(x, 0, 2, 3))
	meanR := b.reshape(mean, shape4)
	centered := b.apply(G.BroadcastSub(x, meanR, nil, []byte{0, 2, 3}))
	variance := b.apply(G.Mean(b.apply(G.Square(centered)), 0, 2, 3))

	if b.err == nil {
		xs := x.Shape()
		st := &batchStat{prefix: prefix, count: xs[0] * xs[2] * xs[3]}
		G.Read(mean, &st.mean)
		G.Read(variance, &st.variance)
		b.stats = append(b.stats, st)
	}

	vEps := b.apply(G.Add(variance, G.NewConstant(float32(bnEpsilon))))
	invStd := b.apply(G.Inverse(b.apply(G.Sqrt(vEps))))
	norm := b.apply(G.BroadcastHadamardProd(centered, b.reshape(invStd, shape4), nil, []byte{0, 2, 3}))
	scaled := b.apply(G.BroadcastHadamardProd(norm, b.reshape(gamma, shape4), nil, []byte{0, 2, 3}))
	return b.apply(G.BroadcastAdd(scaled, b.reshape(beta, shape4), nil, []byte{0, 2, 3}))
}

// bnTensors returns the raw float32 slices of one normalization layer.
func (b *graphBuilder) bnTensors(prefix string) (gamma, beta, mean, variance []float32, err error) {
	for _, part := range []struct {
		suffix string
		dst    *[]float32
	}{
		{".gamma", &gamma},
		{".beta", &beta},
		{".mean", &mean},
		{".variance", &variance},
	} {
		t, ok := b.params.Get(prefix + part.suffix)
		if !ok {
			return nil, nil, nil, nil, fmt.Errorf("missing parameter: %s%s", prefix, part.suffix)
		}
		data, ok := t.Data().([]float32)
		if !ok {
			return nil, nil, nil, nil, fmt.Errorf("parameter %s%s is not float32", prefix, part.suffix)
		}
		*part.dst = data
	}
	return gamma, beta, mean, variance, nil
}

// capture records an activation snapshot under the given key.
func (b *graphBuilder) capture(name string, node *G.Node) {
	if !b.instrument || b.err != nil || node == nil {
		return
	}
	var v G.Value
	b.captures[name] = &v
	G.Read(node, &v)
}

// residualBlock builds conv-bn-relu-conv-bn plus the shortcut, with the
// pre-activation sum and post-activation output captured.
func (b *graphBuilder) residualBlock(x *G.Node, blk blockSpec) *G.Node {
	out := b.conv2d(x, blk.name+".conv1.weight", 3, 1, blk.stride)
	out = b.batchNorm(out, blk.name+".bn1", blk.outCh)
	out = b.rectify(out)
	out = b.conv2d(out, blk.name+".conv2.weight", 3, 1, 1)
	out = b.batchNorm(out, blk.name+".bn2", blk.outCh)

	shortcut := x
	if blk.project {
		shortcut = b.conv2d(x, blk.name+".shortcut.conv.weight", 1, 0, blk.stride)
		shortcut = b.batchNorm(shortcut, blk.name+".shortcut.bn", blk.outCh)
	}

	if b.err != nil {
		return nil
	}
	out = b.apply(G.Add(out, shortcut))
	b.capture(blk.name+".conv", out)
	out = b.rectify(out)
	b.capture(blk.name+".relu", out)
	return out
}

// build assembles the full network and returns the logits node.
func (b *graphBuilder) build(n *Network, x *G.Node) *G.Node {
	h := b.conv2d(x, "stem.conv.weight", 7, 3, 2)
	h = b.batchNorm(h, "stem.bn", stemChannels)
	h = b.rectify(h)
	h = b.maxPool(h, 3, 1, 2)
	b.capture("layer1", h)

	idx := 0
	for si := range stageWidths {
		for i := 0; i < stageDepths[si]; i++ {
			h = b.residualBlock(h, n.blocks[idx])
			idx++
		}
		b.capture(fmt.Sprintf("layer%d", si+2), h)
	}

	if b.err != nil {
		return nil
	}

	batch := x.Shape()[0]
	h = b.apply(G.GlobalAveragePool2D(h))
	h = b.reshape(h, tensor.Shape{batch, headWidth})
	if b.training {
		h = b.apply(G.Dropout(h, dropoutRate))
	}

	w := b.trainableParam("fc.weight")
	bias := b.trainableParam("fc.bias")
	if b.err != nil {
		return nil
	}
	h = b.apply(G.Mul(h, w))
	return b.apply(G.BroadcastAdd(h, bias, nil, []byte{0}))
}

// validateInput checks the spectrogram tensor shape.
func validateInput(x *tensor.Dense) error {
	if x == nil {
		return fmt.Errorf("nil input tensor")
	}
	shape := x.Shape()
	if len(shape) != 4 || shape[1] != 1 {
		return fmt.Errorf("input must be shaped (batch, 1, mels, frames), got %v", shape)
	}
	return nil
}

// run executes one inference forward pass.
func (n *Network) run(x *tensor.Dense, instrument bool) (*tensor.Dense, map[string]*tensor.Dense, error) {
	if err := validateInput(x); err != nil {
		return nil, nil, err
	}

	g := G.NewGraph()
	input := G.NewTensor(g, tensor.Float32, 4, G.WithValue(x), G.WithName("input"))

	b := &graphBuilder{
		g:          g,
		params:     n.Params,
		instrument: instrument,
		captures:   make(map[string]*G.Value),
	}
	logits := b.build(n, input)
	if b.err != nil {
		return nil, nil, fmt.Errorf("building forward graph: %w", b.err)
	}

	var logitsVal G.Value
	G.Read(logits, &logitsVal)

	vm := G.NewTapeMachine(g)
	defer vm.Close()
	if err := vm.RunAll(); err != nil {
		return nil, nil, fmt.Errorf("forward pass: %w", err)
	}

	out, ok := logitsVal.(*tensor.Dense)
	if !ok || out == nil {
		return nil, nil, fmt.Errorf("forward pass produced no logits")
	}

	// A capture that failed to materialize is dropped, never fatal.
	var maps map[string]*tensor.Dense
	if instrument {
		maps = make(map[string]*tensor.Dense, len(b.captures))
		for name, vp := range b.captures {
			if vp == nil || *vp == nil {
				continue
			}
			if d, ok := (*vp).(*tensor.Dense); ok {
				maps[name] = d
			}
		}
	}

	return out, maps, nil
}

// Forward maps a spectrogram tensor to class logits.
func (n *Network) Forward(x *tensor.Dense) (*tensor.Dense, error) {
	logits, _, err := n.run(x, false)
	return logits, err
}

// ForwardInstrumented maps a spectrogram tensor to class logits plus
// activation snapshots keyed by stage/block identifiers.
func (n *Network) ForwardInstrumented(x *tensor.Dense) (*tensor.Dense, map[string]*tensor.Dense, error) {
	return n.run(x, true)
}
