package myaudio

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResampleAudioSameRate(t *testing.T) {
	input := []float32{0.1, -0.2, 0.3, -0.4, 0.5}
	out, err := ResampleAudio(input, 44100, 44100)
	require.NoError(t, err)
	assert.Equal(t, input, out)
}

func TestResampleAudioLength(t *testing.T) {
	cases := []struct {
		name         string
		inputLen     int
		originalRate int
		targetRate   int
	}{
		{"upsample 22050 to 44100", 22050, 22050, 44100},
		{"downsample 48000 to 44100", 48000, 48000, 44100},
		{"upsample 8000 to 44100", 8000, 8000, 44100},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			input := make([]float32, tc.inputLen)
			for i := range input {
				input[i] = float32(math.Sin(2 * math.Pi * 440 * float64(i) / float64(tc.originalRate)))
			}

			out, err := ResampleAudio(input, tc.originalRate, tc.targetRate)
			require.NoError(t, err)

			want := int(float64(tc.inputLen) * float64(tc.targetRate) / float64(tc.originalRate))
			assert.InDelta(t, want, len(out), 1)
		})
	}
}

func TestResampleAudioPreservesSineShape(t *testing.T) {
	// A pure tone resampled up should stay within the input amplitude
	// envelope, modulo small interpolation overshoot.
	input := make([]float32, 4410)
	for i := range input {
		input[i] = float32(0.5 * math.Sin(2*math.Pi*100*float64(i)/22050))
	}

	out, err := ResampleAudio(input, 22050, 44100)
	require.NoError(t, err)

	for i, v := range out {
		if math.Abs(float64(v)) > 0.6 {
			t.Fatalf("sample %d out of envelope: %f", i, v)
		}
	}
}

func TestResampleAudioShortInput(t *testing.T) {
	out, err := ResampleAudio([]float32{0.5, -0.5}, 22050, 44100)
	require.NoError(t, err)
	assert.NotEmpty(t, out)
}

func TestResampleAudioEmpty(t *testing.T) {
	out, err := ResampleAudio(nil, 22050, 44100)
	require.NoError(t, err)
	assert.Empty(t, out)
}
