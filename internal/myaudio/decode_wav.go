package myaudio

import (
	"fmt"
	"io"

	"github.com/TanmayBansa1/CNN-Audio-Classifier/internal/errors"
	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// wavReadBufferSize is the PCM read chunk size in samples. Large enough
// to keep decode loop overhead low for multi-second clips.
const wavReadBufferSize = 262144

// decodeWAV decodes a WAV stream into interleaved float32 samples.
func decodeWAV(r io.ReadSeeker) (*AudioData, error) {
	decoder := wav.NewDecoder(r)
	decoder.ReadInfo()

	if !decoder.IsValidFile() {
		return nil, errors.Newf("input is not a valid WAV audio file").
			Component("myaudio").
			Category(errors.CategoryAudioDecode).
			Build()
	}

	if decoder.NumChans != 1 && decoder.NumChans != 2 {
		return nil, errors.Newf("unsupported number of channels: %d", decoder.NumChans).
			Component("myaudio").
			Category(errors.CategoryAudioDecode).
			Context("channels", decoder.NumChans).
			Build()
	}

	divisor, err := getAudioDivisor(int(decoder.BitDepth))
	if err != nil {
		return nil, errors.New(err).
			Component("myaudio").
			Category(errors.CategoryAudioDecode).
			Build()
	}

	buf := &audio.IntBuffer{
		Data: make([]int, wavReadBufferSize),
		Format: &audio.Format{
			SampleRate:  int(decoder.SampleRate),
			NumChannels: int(decoder.NumChans),
		},
	}

	var samples []float32
	for {
		n, err := decoder.PCMBuffer(buf)
		if err != nil {
			return nil, errors.New(fmt.Errorf("error reading WAV data: %w", err)).
				Component("myaudio").
				Category(errors.CategoryAudioDecode).
				Build()
		}
		if n == 0 {
			break
		}
		for _, sample := range buf.Data[:n] {
			samples = append(samples, float32(sample)/divisor)
		}
	}

	return &AudioData{
		Samples:     samples,
		NumChannels: int(decoder.NumChans),
		SampleRate:  int(decoder.SampleRate),
		BitDepth:    int(decoder.BitDepth),
	}, nil
}
