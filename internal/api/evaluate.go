package api

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"net/http"
	"strconv"
	"time"

	"github.com/TanmayBansa1/CNN-Audio-Classifier/internal/audionet"
	"github.com/TanmayBansa1/CNN-Audio-Classifier/internal/conf"
	"github.com/TanmayBansa1/CNN-Audio-Classifier/internal/errors"
	"github.com/TanmayBansa1/CNN-Audio-Classifier/internal/myaudio"
	"github.com/labstack/echo/v4"
	"gorgonia.org/tensor"
)

// handleEvaluate decodes the posted audio, runs an instrumented forward
// pass and returns predictions plus visualization data.
func (c *Controller) handleEvaluate(ctx echo.Context) error {
	start := time.Now()

	if c.Classifier == nil {
		return c.fail(ctx, http.StatusServiceUnavailable, "model not loaded")
	}

	var req EvaluateRequest
	if err := ctx.Bind(&req); err != nil {
		return c.fail(ctx, http.StatusBadRequest, "invalid request body")
	}
	if req.AudioData == "" {
		return c.fail(ctx, http.StatusBadRequest, "audio_data is required")
	}

	raw, err := base64.StdEncoding.DecodeString(req.AudioData)
	if err != nil {
		return c.fail(ctx, http.StatusBadRequest, "audio_data is not valid base64")
	}

	cacheKey := ""
	if c.responseCache != nil {
		sum := sha256.Sum256(raw)
		cacheKey = hex.EncodeToString(sum[:])
		if cached, found := c.responseCache.Get(cacheKey); found {
			c.metrics.CacheHits.Inc()
			c.observe(http.StatusOK, start)
			return ctx.JSON(http.StatusOK, cached)
		}
	}

	audio, err := myaudio.DecodeBytes(raw)
	if err != nil {
		c.metrics.DecodeErrors.Inc()
		c.logger.Warn("audio decode failed", "error", err, "bytes", len(raw))
		return c.fail(ctx, http.StatusUnsupportedMediaType, "unsupported or corrupt audio payload")
	}

	mono := myaudio.ToMono(audio.Samples, audio.NumChannels)
	mono, err = myaudio.ResampleAudio(mono, audio.SampleRate, conf.SampleRate)
	if err != nil {
		c.metrics.DecodeErrors.Inc()
		return c.fail(ctx, http.StatusUnsupportedMediaType, "audio could not be resampled")
	}
	if len(mono) == 0 {
		return c.fail(ctx, http.StatusUnsupportedMediaType, "audio payload contains no samples")
	}

	spec, err := c.Generator.Compute(mono)
	if err != nil {
		c.logger.Error("spectrogram computation failed", "error", err)
		return c.fail(ctx, http.StatusInternalServerError, "failed to compute spectrogram")
	}

	evaluation, err := c.evaluateWithTimeout(spec)
	if err != nil {
		if errors.HasCategory(err, errors.CategoryTimeout) {
			c.logger.Warn("inference timed out",
				"timeout", c.Settings.Model.InferenceTimeout,
				"samples", len(mono))
			return c.fail(ctx, http.StatusGatewayTimeout, "inference timed out")
		}
		c.logger.Error("inference failed", "error", err)
		return c.fail(ctx, http.StatusInternalServerError, "inference failed")
	}

	specPayload, ok := spectrogramPayload(spec)
	if !ok {
		return c.fail(ctx, http.StatusInternalServerError, "unexpected spectrogram shape")
	}

	predictions := make([]PredictionPayload, len(evaluation.Predictions))
	for i, p := range evaluation.Predictions {
		predictions[i] = PredictionPayload{Class: p.Class, Confidence: p.Confidence}
	}

	resp := &EvaluateResponse{
		Predictions:     predictions,
		Visualization:   visualizationPayloads(evaluation.ActivationMaps),
		InputSpectogram: specPayload,
		Waveform:        waveformPayload(mono, conf.SampleRate),
	}

	if c.responseCache != nil {
		c.responseCache.SetDefault(cacheKey, resp)
	}

	c.observe(http.StatusOK, start)
	return ctx.JSON(http.StatusOK, resp)
}

type evaluationResult struct {
	evaluation *audionet.Evaluation
	err        error
}

// evaluateWithTimeout runs the instrumented forward pass in a worker
// goroutine. The forward pass itself cannot be canceled, so on timeout
// the worker is abandoned and its result discarded.
func (c *Controller) evaluateWithTimeout(spec *tensor.Dense) (*audionet.Evaluation, error) {
	timeout := c.Settings.Model.InferenceTimeout
	if timeout <= 0 {
		timeout = time.Minute
	}

	resultChan := make(chan evaluationResult, 1)
	go func() {
		start := time.Now()
		evaluation, err := c.Classifier.Evaluate(spec)
		c.metrics.InferenceDuration.Observe(time.Since(start).Seconds())
		resultChan <- evaluationResult{evaluation: evaluation, err: err}
	}()

	select {
	case result := <-resultChan:
		return result.evaluation, result.err
	case <-time.After(timeout):
		return nil, errors.Newf("inference exceeded %s", timeout).
			Component("api").
			Category(errors.CategoryTimeout).
			Build()
	}
}

// fail records metrics for an error response and writes the JSON error
// body.
func (c *Controller) fail(ctx echo.Context, status int, message string) error {
	c.observe(status, time.Time{})
	return ctx.JSON(status, ErrorResponse{Error: message})
}

// observe records the request counter and, when start is set, the
// request duration.
func (c *Controller) observe(status int, start time.Time) {
	c.metrics.RequestsTotal.WithLabelValues(strconv.Itoa(status)).Inc()
	if !start.IsZero() {
		c.metrics.RequestDuration.Observe(time.Since(start).Seconds())
	}
}
