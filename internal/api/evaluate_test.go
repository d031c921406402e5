package api

import (
	"encoding/base64"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/TanmayBansa1/CNN-Audio-Classifier/internal/audionet"
	"github.com/TanmayBansa1/CNN-Audio-Classifier/internal/conf"
	"github.com/TanmayBansa1/CNN-Audio-Classifier/internal/spectrogram"
	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSettings() *conf.Settings {
	var s conf.Settings
	s.Model.TopK = 3
	s.Model.InferenceTimeout = time.Minute
	s.Server.Host = "127.0.0.1"
	s.Server.Port = 0
	s.Server.BodyLimit = "32M"
	s.Server.CacheTTL = time.Minute
	return &s
}

func testController(t *testing.T, withModel bool) *Controller {
	t.Helper()

	var classifier *audionet.Classifier
	if withModel {
		net := audionet.NewSeeded(3, 1)
		var err error
		classifier, err = audionet.NewClassifierFromNetwork(net, []string{"dog", "rain", "wind"}, 3)
		require.NoError(t, err)
	}
	return New(testSettings(), classifier, spectrogram.NewGenerator())
}

func postEvaluate(c *Controller, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/evaluate", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	c.Echo.ServeHTTP(rec, req)
	return rec
}

// sineWAV encodes a short mono 16-bit sine tone and returns the file
// bytes, for driving the endpoint end to end.
func sineWAV(t *testing.T, sampleRate int, seconds float64, freq float64) []byte {
	t.Helper()

	numSamples := int(seconds * float64(sampleRate))
	samples := make([]int, numSamples)
	for i := range samples {
		samples[i] = int(16000 * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate)))
	}

	path := filepath.Join(t.TempDir(), "tone.wav")
	f, err := os.Create(path)
	require.NoError(t, err)

	enc := wav.NewEncoder(f, sampleRate, 16, 1, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           samples,
		SourceBitDepth: 16,
	}
	require.NoError(t, enc.Write(buf))
	require.NoError(t, enc.Close())
	require.NoError(t, f.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}

func TestEvaluateSuccess(t *testing.T) {
	c := testController(t, true)

	// 0.1 s at the canonical rate: 4410 samples, 9 STFT frames.
	wavBytes := sineWAV(t, conf.SampleRate, 0.1, 440)
	payload := base64.StdEncoding.EncodeToString(wavBytes)

	rec := postEvaluate(c, `{"audio_data":"`+payload+`"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp EvaluateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	// Exactly top-k predictions, sorted by descending confidence, summing
	// to at most one over the full distribution.
	require.Len(t, resp.Predictions, 3)
	var sum float64
	for i, p := range resp.Predictions {
		assert.NotEmpty(t, p.Class)
		assert.GreaterOrEqual(t, p.Confidence, 0.0)
		assert.LessOrEqual(t, p.Confidence, 1.0)
		if i > 0 {
			assert.GreaterOrEqual(t, resp.Predictions[i-1].Confidence, p.Confidence)
		}
		sum += p.Confidence
	}
	assert.LessOrEqual(t, sum, 1.0+1e-9)

	// One visualization entry per capture point: the stem, two per block,
	// one per stage.
	assert.Len(t, resp.Visualization, 37)
	for _, name := range []string{"layer1", "layer2.block-0.conv", "layer3.block-2.relu", "layer5"} {
		assert.Contains(t, resp.Visualization, name)
	}
	for name, m := range resp.Visualization {
		require.Len(t, m.Shape, 2, "map %s", name)
		require.Len(t, m.Values, m.Shape[0], "map %s rows", name)
		for _, row := range m.Values {
			require.Len(t, row, m.Shape[1], "map %s cols", name)
			for _, v := range row {
				f := float64(v)
				require.False(t, math.IsNaN(f) || math.IsInf(f, 0), "map %s has non-finite value", name)
			}
		}
	}

	// The spectrogram echoes the model input shape.
	assert.Equal(t, []int{conf.NumMels, 9}, resp.InputSpectogram.Shape)
	require.Len(t, resp.InputSpectogram.Values, conf.NumMels)

	// Short clips come back verbatim.
	assert.Len(t, resp.Waveform.Values, 4410)
	assert.Equal(t, conf.SampleRate, resp.Waveform.SampleRate)
	assert.InDelta(t, 0.1, resp.Waveform.Duration, 1e-6)
	for _, v := range resp.Waveform.Values {
		f := float64(v)
		require.False(t, math.IsNaN(f) || math.IsInf(f, 0))
	}
}

func TestEvaluateCachedResponse(t *testing.T) {
	c := testController(t, true)

	payload := base64.StdEncoding.EncodeToString(sineWAV(t, conf.SampleRate, 0.05, 880))
	body := `{"audio_data":"` + payload + `"}`

	first := postEvaluate(c, body)
	require.Equal(t, http.StatusOK, first.Code)

	// The repeated payload is served from the response cache with the
	// same body.
	second := postEvaluate(c, body)
	require.Equal(t, http.StatusOK, second.Code)

	var a, b EvaluateResponse
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &a))
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &b))
	assert.Equal(t, a.Predictions, b.Predictions)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	c.Echo.ServeHTTP(rec, req)
	assert.Contains(t, rec.Body.String(), "audioclassifier_cache_hits_total 1")
}

func TestEvaluateModelNotLoaded(t *testing.T) {
	c := testController(t, false)

	rec := postEvaluate(c, `{"audio_data":"aGVsbG8="}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestEvaluateInvalidJSON(t *testing.T) {
	c := testController(t, true)

	rec := postEvaluate(c, `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Error)
}

func TestEvaluateMissingAudioData(t *testing.T) {
	c := testController(t, true)

	rec := postEvaluate(c, `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEvaluateInvalidBase64(t *testing.T) {
	c := testController(t, true)

	rec := postEvaluate(c, `{"audio_data":"!!!not-base64!!!"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEvaluateUnsupportedAudio(t *testing.T) {
	c := testController(t, true)

	payload := base64.StdEncoding.EncodeToString([]byte("this is not an audio container"))
	rec := postEvaluate(c, `{"audio_data":"`+payload+`"}`)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp.Error, "audio")
}

func TestHealthz(t *testing.T) {
	t.Run("ready", func(t *testing.T) {
		c := testController(t, true)
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		rec := httptest.NewRecorder()
		c.Echo.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)

		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "ok", body["status"])
		assert.Equal(t, true, body["model_ready"])
	})

	t.Run("no model", func(t *testing.T) {
		c := testController(t, false)
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		rec := httptest.NewRecorder()
		c.Echo.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestMetricsEndpoint(t *testing.T) {
	c := testController(t, false)

	// Generate one counted request first.
	postEvaluate(c, `{"audio_data":"aGVsbG8="}`)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	c.Echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "audioclassifier_requests_total")
}
