package api

import (
	"math"

	"github.com/TanmayBansa1/CNN-Audio-Classifier/internal/conf"
	"gorgonia.org/tensor"
)

// EvaluateRequest carries one base64-encoded audio payload.
type EvaluateRequest struct {
	AudioData string `json:"audio_data"`
}

// ArrayPayload is a 2D float array with its shape, used for the input
// spectrogram and the per-layer activation maps.
type ArrayPayload struct {
	Shape  []int       `json:"shape"`
	Values [][]float32 `json:"values"`
}

// WaveformPayload is a downsampled preview of the analyzed mono signal.
type WaveformPayload struct {
	Values     []float32 `json:"values"`
	SampleRate int       `json:"sample_rate"`
	Duration   float64   `json:"duration"`
}

// EvaluateResponse is the full classification result. InputSpectogram
// keeps its historical wire spelling.
type EvaluateResponse struct {
	Predictions     []PredictionPayload     `json:"predictions"`
	Visualization   map[string]ArrayPayload `json:"visualization"`
	InputSpectogram ArrayPayload            `json:"input_spectogram"`
	Waveform        WaveformPayload         `json:"waveform"`
}

// PredictionPayload is one ranked class with its confidence.
type PredictionPayload struct {
	Class      string  `json:"class"`
	Confidence float64 `json:"confidence"`
}

// ErrorResponse is the JSON body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

// sanitize replaces NaN and infinities with zero so the value survives
// JSON encoding.
func sanitize(v float32) float32 {
	f := float64(v)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return v
}

// spectrogramPayload flattens a (1,1,mels,frames) tensor into a 2D
// payload.
func spectrogramPayload(spec *tensor.Dense) (ArrayPayload, bool) {
	shape := spec.Shape()
	if len(shape) != 4 || shape[0] != 1 || shape[1] != 1 {
		return ArrayPayload{}, false
	}
	data, ok := spec.Data().([]float32)
	if !ok || len(data) != shape[2]*shape[3] {
		return ArrayPayload{}, false
	}

	rows, cols := shape[2], shape[3]
	values := make([][]float32, rows)
	for r := 0; r < rows; r++ {
		row := make([]float32, cols)
		for c := 0; c < cols; c++ {
			row[c] = sanitize(data[r*cols+c])
		}
		values[r] = row
	}
	return ArrayPayload{Shape: []int{rows, cols}, Values: values}, true
}

// activationPayload reduces a (1,channels,h,w) activation tensor to a
// single 2D map by averaging over channels.
func activationPayload(act *tensor.Dense) (ArrayPayload, bool) {
	shape := act.Shape()
	if len(shape) != 4 || shape[0] != 1 {
		return ArrayPayload{}, false
	}
	channels, h, w := shape[1], shape[2], shape[3]
	if channels == 0 || h == 0 || w == 0 {
		return ArrayPayload{}, false
	}
	data, ok := act.Data().([]float32)
	if !ok || len(data) != channels*h*w {
		return ArrayPayload{}, false
	}

	plane := h * w
	values := make([][]float32, h)
	for r := 0; r < h; r++ {
		values[r] = make([]float32, w)
	}
	inv := 1.0 / float32(channels)
	for ch := 0; ch < channels; ch++ {
		base := ch * plane
		for r := 0; r < h; r++ {
			rowBase := base + r*w
			for c := 0; c < w; c++ {
				values[r][c] += data[rowBase+c]
			}
		}
	}
	for r := 0; r < h; r++ {
		for c := 0; c < w; c++ {
			values[r][c] = sanitize(values[r][c] * inv)
		}
	}
	return ArrayPayload{Shape: []int{h, w}, Values: values}, true
}

// visualizationPayloads converts the captured activation tensors,
// silently dropping any map that cannot be reduced to 2D.
func visualizationPayloads(maps map[string]*tensor.Dense) map[string]ArrayPayload {
	out := make(map[string]ArrayPayload, len(maps))
	for name, act := range maps {
		if payload, ok := activationPayload(act); ok {
			out[name] = payload
		}
	}
	return out
}

// waveformPayload downsamples the mono signal to at most
// conf.MaxWaveformSamples values. Signals at or under the cap are returned
// verbatim.
func waveformPayload(mono []float32, sampleRate int) WaveformPayload {
	duration := float64(len(mono)) / float64(sampleRate)

	var values []float32
	if len(mono) <= conf.MaxWaveformSamples {
		values = make([]float32, len(mono))
		for i, v := range mono {
			values[i] = sanitize(v)
		}
	} else {
		step := len(mono) / conf.MaxWaveformSamples
		values = make([]float32, conf.MaxWaveformSamples)
		for i := 0; i < conf.MaxWaveformSamples; i++ {
			values[i] = sanitize(mono[i*step])
		}
	}

	return WaveformPayload{
		Values:     values,
		SampleRate: sampleRate,
		Duration:   duration,
	}
}
