package spectrogram

import (
	"math"
	"testing"

	"github.com/TanmayBansa1/CNN-Audio-Classifier/internal/conf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNumFrames(t *testing.T) {
	g := NewGenerator()

	cases := []struct {
		samples int
		want    int
	}{
		{conf.HopLength, 2},
		{5 * conf.SampleRate, 431}, // canonical 5 second clip
		{conf.SampleRate, 87},
		{100, 1},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, g.NumFrames(tc.samples), "samples=%d", tc.samples)
	}
}

func TestComputeShape(t *testing.T) {
	g := NewGenerator()
	mono := make([]float32, conf.SampleRate) // 1 second

	spec, err := g.Compute(mono)
	require.NoError(t, err)

	assert.Equal(t, []int{1, 1, conf.NumMels, g.NumFrames(len(mono))}, []int(spec.Shape()))
}

func TestComputeSilenceFloor(t *testing.T) {
	g := NewGenerator()
	mono := make([]float32, conf.SampleRate/2)

	spec, err := g.Compute(mono)
	require.NoError(t, err)

	data, ok := spec.Data().([]float32)
	require.True(t, ok)
	for i, v := range data {
		if v != -100 {
			t.Fatalf("silence value %d is %f, want -100", i, v)
		}
	}
}

func TestComputeDeterministic(t *testing.T) {
	g := NewGenerator()
	mono := make([]float32, conf.SampleRate/4)
	for i := range mono {
		mono[i] = float32(math.Sin(2 * math.Pi * 440 * float64(i) / conf.SampleRate))
	}

	first, err := g.Compute(mono)
	require.NoError(t, err)
	second, err := g.Compute(mono)
	require.NoError(t, err)

	a, ok := first.Data().([]float32)
	require.True(t, ok)
	b, ok := second.Data().([]float32)
	require.True(t, ok)
	assert.Equal(t, a, b)
}

func TestComputeToneHasEnergy(t *testing.T) {
	g := NewGenerator()
	mono := make([]float32, conf.SampleRate/2)
	for i := range mono {
		mono[i] = float32(0.8 * math.Sin(2*math.Pi*1000*float64(i)/conf.SampleRate))
	}

	spec, err := g.Compute(mono)
	require.NoError(t, err)

	data, ok := spec.Data().([]float32)
	require.True(t, ok)

	var maxVal float32 = -200
	for _, v := range data {
		if v > maxVal {
			maxVal = v
		}
	}
	assert.Greater(t, maxVal, float32(-50), "a loud tone should rise well above the silence floor")
}

func TestComputeEmpty(t *testing.T) {
	g := NewGenerator()
	_, err := g.Compute(nil)
	assert.Error(t, err)
}

func TestMelScaleRoundTrip(t *testing.T) {
	for _, hz := range []float64{0, 100, 440, 1000, 8000, 22050} {
		assert.InDelta(t, hz, melToHz(hzToMel(hz)), 1e-6)
	}
}

func TestMelFilterbankShape(t *testing.T) {
	numBins := conf.FFTSize/2 + 1
	fb := melFilterbank(conf.NumMels, numBins, conf.SampleRate, conf.MelFmin, conf.MelFmax)

	require.Len(t, fb, conf.NumMels)
	for m := range fb {
		require.Len(t, fb[m], numBins)
		for _, w := range fb[m] {
			assert.GreaterOrEqual(t, w, 0.0)
			assert.LessOrEqual(t, w, 1.0)
		}
	}
}
