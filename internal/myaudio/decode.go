// Package myaudio decodes audio payloads and prepares waveforms for the
// spectrogram pipeline: container decode, mono downmix and resampling.
package myaudio

import (
	"bytes"
	"fmt"

	"github.com/TanmayBansa1/CNN-Audio-Classifier/internal/errors"
)

// AudioData holds decoded PCM audio as interleaved float32 samples in
// the range [-1, 1].
type AudioData struct {
	Samples     []float32 // interleaved samples
	NumChannels int
	SampleRate  int
	BitDepth    int
}

// Frames returns the number of per-channel sample frames.
func (a *AudioData) Frames() int {
	if a.NumChannels == 0 {
		return 0
	}
	return len(a.Samples) / a.NumChannels
}

// Duration returns the clip length in seconds.
func (a *AudioData) Duration() float64 {
	if a.SampleRate == 0 {
		return 0
	}
	return float64(a.Frames()) / float64(a.SampleRate)
}

// ErrUnsupportedFormat is returned when the payload is not a container
// this service can decode.
var ErrUnsupportedFormat = errors.Newf("unsupported audio container format").
	Component("myaudio").
	Category(errors.CategoryAudioDecode).
	Build()

// DecodeBytes sniffs the container format and decodes the payload into
// PCM samples. WAV and FLAC containers are supported.
func DecodeBytes(data []byte) (*AudioData, error) {
	switch {
	case isWAV(data):
		return decodeWAV(bytes.NewReader(data))
	case isFLAC(data):
		return decodeFLAC(bytes.NewReader(data))
	default:
		return nil, ErrUnsupportedFormat
	}
}

func isWAV(data []byte) bool {
	return len(data) >= 12 &&
		bytes.Equal(data[0:4], []byte("RIFF")) &&
		bytes.Equal(data[8:12], []byte("WAVE"))
}

func isFLAC(data []byte) bool {
	return len(data) >= 4 && bytes.Equal(data[0:4], []byte("fLaC"))
}

// ToMono collapses interleaved multichannel samples to mono by averaging
// across channels. Mono input is returned unchanged.
func ToMono(samples []float32, numChannels int) []float32 {
	if numChannels <= 1 {
		return samples
	}

	frames := len(samples) / numChannels
	mono := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		for ch := 0; ch < numChannels; ch++ {
			sum += samples[i*numChannels+ch]
		}
		mono[i] = sum / float32(numChannels)
	}
	return mono
}

// getAudioDivisor returns the int-to-float32 conversion divisor for the
// given bit depth.
func getAudioDivisor(bitDepth int) (float32, error) {
	switch bitDepth {
	case 16:
		return 32768.0, nil
	case 24:
		return 8388608.0, nil
	case 32:
		return 2147483648.0, nil
	default:
		return 0, fmt.Errorf("unsupported audio file bit depth: %d", bitDepth)
	}
}
