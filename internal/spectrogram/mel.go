// Package spectrogram converts mono waveforms into the log-mel
// spectrogram tensors the network consumes.
package spectrogram

import (
	"fmt"
	"math"

	"github.com/TanmayBansa1/CNN-Audio-Classifier/internal/conf"
	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
	"gorgonia.org/tensor"
)

// amin is the power floor before the decibel conversion. Digital silence
// maps to 10*log10(amin) = -100 dB.
const amin = 1e-10

// Generator computes log-mel spectrograms with fixed parameters. It is
// stateless apart from precomputed window and filterbank coefficients
// and is safe for concurrent use.
type Generator struct {
	sampleRate int
	fftSize    int
	hopLength  int
	numMels    int
	fmin, fmax float64

	win        []float64   // Hann window, fftSize long
	filterbank [][]float64 // [numMels][fftSize/2+1] triangular filters
}

// NewGenerator creates a Generator with the canonical model parameters.
func NewGenerator() *Generator {
	return NewGeneratorWith(conf.SampleRate, conf.FFTSize, conf.HopLength, conf.NumMels, conf.MelFmin, conf.MelFmax)
}

// NewGeneratorWith creates a Generator with explicit DSP parameters.
func NewGeneratorWith(sampleRate, fftSize, hopLength, numMels int, fmin, fmax float64) *Generator {
	g := &Generator{
		sampleRate: sampleRate,
		fftSize:    fftSize,
		hopLength:  hopLength,
		numMels:    numMels,
		fmin:       fmin,
		fmax:       fmax,
	}
	g.win = window.Hann(fftSize)
	g.filterbank = melFilterbank(numMels, fftSize/2+1, sampleRate, fmin, fmax)
	return g
}

// NumFrames returns the number of STFT frames produced for the given
// sample count.
func (g *Generator) NumFrames(numSamples int) int {
	return numSamples/g.hopLength + 1
}

// Compute returns the log-mel spectrogram of a mono waveform as a tensor
// shaped (1, 1, numMels, frames). The computation is deterministic.
func (g *Generator) Compute(mono []float32) (*tensor.Dense, error) {
	if len(mono) == 0 {
		return nil, fmt.Errorf("empty waveform")
	}

	power := g.powerSpectrogram(mono)
	frames := len(power[0])

	// Apply the mel filterbank, then convert power to decibels.
	backing := make([]float32, g.numMels*frames)
	numBins := g.fftSize/2 + 1
	for m := 0; m < g.numMels; m++ {
		fb := g.filterbank[m]
		for t := 0; t < frames; t++ {
			var sum float64
			for k := 0; k < numBins; k++ {
				if fb[k] != 0 {
					sum += fb[k] * power[k][t]
				}
			}
			backing[m*frames+t] = float32(powerToDB(sum))
		}
	}

	return tensor.New(
		tensor.Of(tensor.Float32),
		tensor.WithShape(1, 1, g.numMels, frames),
		tensor.WithBacking(backing),
	), nil
}

// powerSpectrogram computes the centered Hann STFT power spectrum,
// indexed [bin][frame].
func (g *Generator) powerSpectrogram(mono []float32) [][]float64 {
	padded := centerPad(mono, g.fftSize/2)
	frames := g.NumFrames(len(mono))
	numBins := g.fftSize/2 + 1

	power := make([][]float64, numBins)
	for k := range power {
		power[k] = make([]float64, frames)
	}

	frame := make([]float64, g.fftSize)
	for t := 0; t < frames; t++ {
		start := t * g.hopLength
		for j := 0; j < g.fftSize; j++ {
			if start+j < len(padded) {
				frame[j] = padded[start+j] * g.win[j]
			} else {
				frame[j] = 0
			}
		}
		spectrum := fft.FFTReal(frame)
		for k := 0; k < numBins; k++ {
			re, im := real(spectrum[k]), imag(spectrum[k])
			power[k][t] = re*re + im*im
		}
	}

	return power
}

// centerPad pads the signal by pad samples on both sides with reflection,
// falling back to zero padding for clips shorter than the pad length.
func centerPad(mono []float32, pad int) []float64 {
	n := len(mono)
	padded := make([]float64, n+2*pad)
	for i, v := range mono {
		padded[pad+i] = float64(v)
	}
	if n > pad {
		for j := 0; j < pad; j++ {
			padded[j] = float64(mono[pad-j])
			padded[pad+n+j] = float64(mono[n-2-j])
		}
	}
	return padded
}

// powerToDB converts a power value to decibels relative to 1.0.
func powerToDB(v float64) float64 {
	return 10.0 * math.Log10(math.Max(v, amin))
}

// hzToMel converts Hz to mels on the HTK scale.
func hzToMel(hz float64) float64 {
	return 2595.0 * math.Log10(1.0+hz/700.0)
}

// melToHz converts mels back to Hz on the HTK scale.
func melToHz(mel float64) float64 {
	return 700.0 * (math.Pow(10.0, mel/2595.0) - 1.0)
}

// melFilterbank builds numMels triangular filters over numBins linear
// frequency bins, indexed [mel][bin].
func melFilterbank(numMels, numBins, sampleRate int, fmin, fmax float64) [][]float64 {
	// Bin center frequencies of the one-sided spectrum.
	binFreqs := make([]float64, numBins)
	nyquist := float64(sampleRate) / 2.0
	for k := range binFreqs {
		binFreqs[k] = nyquist * float64(k) / float64(numBins-1)
	}

	// numMels+2 equally spaced points on the mel scale.
	melMin := hzToMel(fmin)
	melMax := hzToMel(fmax)
	points := make([]float64, numMels+2)
	for i := range points {
		points[i] = melToHz(melMin + (melMax-melMin)*float64(i)/float64(numMels+1))
	}

	fb := make([][]float64, numMels)
	for m := 0; m < numMels; m++ {
		fb[m] = make([]float64, numBins)
		lower, center, upper := points[m], points[m+1], points[m+2]
		for k, f := range binFreqs {
			var w float64
			switch {
			case f > lower && f < center:
				w = (f - lower) / (center - lower)
			case f == center:
				w = 1.0
			case f > center && f < upper:
				w = (upper - f) / (upper - center)
			}
			fb[m][k] = w
		}
	}
	return fb
}
