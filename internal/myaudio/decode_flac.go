package myaudio

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/TanmayBansa1/CNN-Audio-Classifier/internal/errors"
	"github.com/tphakala/flac"
)

// decodeFLAC decodes a FLAC stream into interleaved float32 samples.
func decodeFLAC(r io.Reader) (*AudioData, error) {
	decoder, err := flac.NewDecoder(r)
	if err != nil {
		return nil, errors.New(fmt.Errorf("error opening FLAC stream: %w", err)).
			Component("myaudio").
			Category(errors.CategoryAudioDecode).
			Build()
	}

	if decoder.NChannels != 1 && decoder.NChannels != 2 {
		return nil, errors.Newf("unsupported number of channels: %d", decoder.NChannels).
			Component("myaudio").
			Category(errors.CategoryAudioDecode).
			Context("channels", decoder.NChannels).
			Build()
	}

	divisor, err := getAudioDivisor(decoder.BitsPerSample)
	if err != nil {
		return nil, errors.New(err).
			Component("myaudio").
			Category(errors.CategoryAudioDecode).
			Build()
	}

	bytesPerSample := decoder.BitsPerSample / 8

	var samples []float32
	for {
		frame, err := decoder.Next()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, errors.New(fmt.Errorf("error reading FLAC frame: %w", err)).
				Component("myaudio").
				Category(errors.CategoryAudioDecode).
				Build()
		}

		for i := 0; i+bytesPerSample <= len(frame); i += bytesPerSample {
			var sample int32
			switch decoder.BitsPerSample {
			case 16:
				sample = int32(int16(binary.LittleEndian.Uint16(frame[i:])))
			case 24:
				sample = int32(frame[i]) | int32(frame[i+1])<<8 | int32(frame[i+2])<<16
				// sign extend
				if sample&0x800000 != 0 {
					sample |= ^int32(0xffffff)
				}
			case 32:
				sample = int32(binary.LittleEndian.Uint32(frame[i:]))
			}
			samples = append(samples, float32(sample)/divisor)
		}
	}

	return &AudioData{
		Samples:     samples,
		NumChannels: decoder.NChannels,
		SampleRate:  decoder.SampleRate,
		BitDepth:    decoder.BitsPerSample,
	}, nil
}
