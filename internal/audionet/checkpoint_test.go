package audionet

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckpointRoundTrip(t *testing.T) {
	classes := []string{"dog", "rain", "sea_waves"}
	net := NewSeeded(len(classes), 42)

	state := TrainingState{Epoch: 7, BestLoss: 0.42, BestAccuracy: 0.81}
	ckpt := NewCheckpoint(net, classes, state)

	assert.Equal(t, checkpointVersion, ckpt.Version)
	assert.Equal(t, classes, ckpt.Classes)
	assert.Len(t, ckpt.Weights, net.Params.Len())
	assert.NotEmpty(t, ckpt.Metadata.RunID)
	assert.Equal(t, "gorgonia", ckpt.Metadata.Framework)

	path := filepath.Join(t.TempDir(), "model.ckpt.gz")
	require.NoError(t, ckpt.Save(path))

	loaded, err := LoadCheckpointFile(path)
	require.NoError(t, err)
	assert.Equal(t, ckpt.Classes, loaded.Classes)
	assert.Equal(t, state, loaded.Training)

	// A freshly seeded network with a different seed must converge to the
	// saved weights exactly.
	fresh := NewSeeded(len(classes), 1)
	report, err := loaded.Apply(fresh)
	require.NoError(t, err)
	assert.True(t, report.Exact(), "missing=%v extra=%v mismatch=%d",
		report.MissingKeys, report.ExtraKeys, report.ShapeMismatch)
	assert.Equal(t, net.Params.Len(), report.Matched)

	for _, name := range net.Params.Names() {
		want, _ := net.Params.Get(name)
		got, _ := fresh.Params.Get(name)
		require.Equal(t, want.Data(), got.Data(), "parameter %s", name)
	}
}

func TestCheckpointRoundTripUncompressed(t *testing.T) {
	classes := []string{"a", "b"}
	net := NewSeeded(len(classes), 3)

	path := filepath.Join(t.TempDir(), "model.ckpt")
	require.NoError(t, NewCheckpoint(net, classes, TrainingState{}).Save(path))

	loaded, err := LoadCheckpointFile(path)
	require.NoError(t, err)
	assert.Equal(t, classes, loaded.Classes)
}

func TestCheckpointApplyReportsExtraAndMissing(t *testing.T) {
	classes := []string{"a", "b"}
	net := NewSeeded(len(classes), 5)
	ckpt := NewCheckpoint(net, classes, TrainingState{})

	// Rename one weight so it shows up as extra and leaves a gap.
	ckpt.Weights[0].Name = "nonexistent.weight"

	fresh := NewSeeded(len(classes), 6)
	report, err := ckpt.Apply(fresh)
	require.NoError(t, err)
	assert.False(t, report.Exact())
	assert.Equal(t, []string{"nonexistent.weight"}, report.ExtraKeys)
	assert.Len(t, report.MissingKeys, 1)
	assert.Equal(t, net.Params.Len()-1, report.Matched)
}

func TestCheckpointApplyNoneMatched(t *testing.T) {
	net := NewSeeded(2, 9)
	ckpt := &Checkpoint{
		Version: checkpointVersion,
		Classes: []string{"a", "b"},
		Weights: []WeightTensor{{Name: "bogus", Shape: []int{1}, Data: []float32{0}}},
	}

	_, err := ckpt.Apply(net)
	assert.Error(t, err)
}

func TestCheckpointApplyShapeMismatch(t *testing.T) {
	net := NewSeeded(2, 11)
	ckpt := NewCheckpoint(net, []string{"a", "b"}, TrainingState{})

	// Corrupt one weight's data length.
	ckpt.Weights[0].Data = ckpt.Weights[0].Data[:1]
	ckpt.Weights[0].Shape = []int{1}

	fresh := NewSeeded(2, 12)
	report, err := ckpt.Apply(fresh)
	require.NoError(t, err)
	assert.Equal(t, 1, report.ShapeMismatch)
	assert.False(t, report.Exact())
}

func TestLoadCheckpointFileMissing(t *testing.T) {
	_, err := LoadCheckpointFile(filepath.Join(t.TempDir(), "absent.ckpt"))
	assert.Error(t, err)
}

func TestParamStore(t *testing.T) {
	ps := NewParamStore()
	ps.Register("w1", filled(4, 1))
	ps.Register("w2", zeros2D(2, 3))

	assert.Equal(t, []string{"w1", "w2"}, ps.Names())
	assert.Equal(t, 2, ps.Len())
	assert.Equal(t, 4+6, ps.ScalarCount())

	got, ok := ps.Get("w1")
	require.True(t, ok)
	assert.Equal(t, []int{4}, []int(got.Shape()))

	require.NoError(t, ps.Set("w1", filled(4, 2)))
	assert.Error(t, ps.Set("w1", filled(5, 2)), "wrong shape must be rejected")
	assert.Error(t, ps.Set("unknown", filled(4, 0)))

	assert.Panics(t, func() { ps.Register("w1", filled(4, 0)) })
}

func TestNetworkParameterSet(t *testing.T) {
	net := New(50)

	// The classifier head must follow the class count.
	fc, ok := net.Params.Get("fc.weight")
	require.True(t, ok)
	assert.Equal(t, []int{512, 50}, []int(fc.Shape()))

	bias, ok := net.Params.Get("fc.bias")
	require.True(t, ok)
	assert.Equal(t, 50, bias.Shape().TotalSize())

	// Every batch norm carries the full stat set.
	for _, suffix := range []string{".gamma", ".beta", ".mean", ".variance"} {
		_, ok := net.Params.Get("stem.bn" + suffix)
		assert.True(t, ok, "stem.bn%s", suffix)
	}

	assert.Positive(t, net.ParameterCount())
}

func TestSeededNetworksAreIdentical(t *testing.T) {
	a := NewSeeded(10, 77)
	b := NewSeeded(10, 77)

	for _, name := range a.Params.Names() {
		wa, _ := a.Params.Get(name)
		wb, _ := b.Params.Get(name)
		require.Equal(t, wa.Data(), wb.Data(), "parameter %s", name)
	}
}
