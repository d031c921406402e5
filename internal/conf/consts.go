package conf

// Canonical audio and spectrogram parameters. The network is trained on
// spectrograms computed with exactly these values, so they are constants
// rather than configuration.
const (
	// SampleRate is the canonical sample rate for all model input audio.
	SampleRate = 44100

	// NumChannels is the channel count after downmixing.
	NumChannels = 1

	// FFTSize is the STFT window length in samples.
	FFTSize = 2048

	// HopLength is the STFT hop in samples.
	HopLength = 512

	// NumMels is the number of mel bands in the model input.
	NumMels = 128

	// MelFmin and MelFmax bound the mel filterbank in Hz.
	MelFmin = 0.0
	MelFmax = 22050.0

	// MaxWaveformSamples caps the waveform preview returned to clients.
	MaxWaveformSamples = 8000

	// NumClasses is the number of sound classes the model discriminates.
	NumClasses = 50
)
