// Package audionet defines the convolutional residual network used for
// environmental sound classification and the service wrapper that loads
// it from a checkpoint and serves predictions.
package audionet

import (
	"fmt"
	"math/rand"
	"time"
)

// bnEpsilon stabilizes the batch normalization denominator.
const bnEpsilon = 1e-5

// dropoutRate is applied between pooling and the classifier head during
// training only.
const dropoutRate = 0.5

// stemChannels is the channel width after the stem convolution.
const stemChannels = 64

// headWidth is the feature width entering the classifier head.
const headWidth = 512

// stageWidths and stageDepths describe the four residual stages. Widths
// double while spatial resolution halves, keeping per-stage cost level.
var (
	stageWidths = [4]int{64, 128, 256, 512}
	stageDepths = [4]int{3, 4, 6, 3}
)

// blockSpec describes one residual block in construction order.
type blockSpec struct {
	name    string // e.g. "layer3.block-0"
	inCh    int
	outCh   int
	stride  int
	project bool // true when the shortcut needs a 1x1 projection
}

// Network is the fixed-topology classifier: a stem, four stages of
// residual blocks, global average pooling and a linear head. Weights
// live in a ParamStore keyed by structural names.
type Network struct {
	NumClasses int
	Params     *ParamStore

	blocks []blockSpec
}

// New constructs a Network with randomly initialized weights.
func New(numClasses int) *Network {
	return NewSeeded(numClasses, time.Now().UnixNano())
}

// NewSeeded constructs a Network with weights drawn from a seeded
// source, for reproducible initialization.
func NewSeeded(numClasses int, seed int64) *Network {
	n := &Network{
		NumClasses: numClasses,
		Params:     NewParamStore(),
		blocks:     buildBlockSpecs(),
	}
	n.initParams(rand.New(rand.NewSource(seed)))
	return n
}

// buildBlockSpecs expands the stage configuration into per-block specs.
// Stage names start at layer2: layer1 is the stem, matching the
// activation map keys the service exposes.
func buildBlockSpecs() []blockSpec {
	var blocks []blockSpec
	inCh := stemChannels
	for si := range stageWidths {
		outCh := stageWidths[si]
		for i := 0; i < stageDepths[si]; i++ {
			stride := 1
			if si > 0 && i == 0 {
				stride = 2
			}
			blockIn := outCh
			if i == 0 {
				blockIn = inCh
			}
			blocks = append(blocks, blockSpec{
				name:    fmt.Sprintf("layer%d.block-%d", si+2, i),
				inCh:    blockIn,
				outCh:   outCh,
				stride:  stride,
				project: stride != 1 || blockIn != outCh,
			})
		}
		inCh = outCh
	}
	return blocks
}

// initParams registers every weight tensor in construction order.
func (n *Network) initParams(rng *rand.Rand) {
	ps := n.Params

	ps.Register("stem.conv.weight", heNormal(rng, stemChannels, 1, 7, 7))
	registerBatchNorm(ps, "stem.bn", stemChannels)

	for _, blk := range n.blocks {
		ps.Register(blk.name+".conv1.weight", heNormal(rng, blk.outCh, blk.inCh, 3, 3))
		registerBatchNorm(ps, blk.name+".bn1", blk.outCh)
		ps.Register(blk.name+".conv2.weight", heNormal(rng, blk.outCh, blk.outCh, 3, 3))
		registerBatchNorm(ps, blk.name+".bn2", blk.outCh)
		if blk.project {
			ps.Register(blk.name+".shortcut.conv.weight", heNormal(rng, blk.outCh, blk.inCh, 1, 1))
			registerBatchNorm(ps, blk.name+".shortcut.bn", blk.outCh)
		}
	}

	ps.Register("fc.weight", glorotUniform(rng, headWidth, n.NumClasses))
	ps.Register("fc.bias", zeros2D(1, n.NumClasses))
}

// registerBatchNorm registers the four tensors of one normalization
// layer: learned gamma/beta and running mean/variance.
func registerBatchNorm(ps *ParamStore, prefix string, ch int) {
	ps.Register(prefix+".gamma", filled(ch, 1))
	ps.Register(prefix+".beta", filled(ch, 0))
	ps.Register(prefix+".mean", filled(ch, 0))
	ps.Register(prefix+".variance", filled(ch, 1))
}

// ParameterCount returns the total number of weight scalars.
func (n *Network) ParameterCount() int {
	return n.Params.ScalarCount()
}
