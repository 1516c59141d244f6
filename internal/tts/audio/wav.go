// Package audio inspects and writes the WAV files exchanged with the synthesis
// service.
package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Limits for a usable speech clip.
const (
	MaxSampleRate = 192000
	MaxChannels   = 8
	BitDepth16    = 16
	pcmFormat     = 1
	bitsPerByte   = 8
)

const (
	errFmtSampleRateRange = "%w: sample rate must be between 1 and %d Hz, got %d"
	errFmtChannelsRange   = "%w: channels must be between 1 and %d, got %d"
	errFmtBitDepthValues  = "%w: bit depth must be 8, 16, 24 or 32, got %d"
)

var (
	// ErrInvalidWAV is returned when the data is not a RIFF/WAVE stream.
	ErrInvalidWAV = errors.New("not a valid WAV file")
	// ErrInvalidFormat is returned when the header carries unusable parameters.
	ErrInvalidFormat = errors.New("invalid audio format")
	// ErrNoAudio is returned for a WAV file without samples.
	ErrNoAudio = errors.New("WAV file contains no audio")
)

// Info describes a WAV stream.
type Info struct {
	SampleRate int
	Channels   int
	BitDepth   int
	Duration   time.Duration
	Size       int64
}

// Validate checks that the header parameters are within the limits.
func (i Info) Validate() error {
	if i.SampleRate < 1 || i.SampleRate > MaxSampleRate {
		return fmt.Errorf(errFmtSampleRateRange, ErrInvalidFormat, MaxSampleRate, i.SampleRate)
	}

	if i.Channels < 1 || i.Channels > MaxChannels {
		return fmt.Errorf(errFmtChannelsRange, ErrInvalidFormat, MaxChannels, i.Channels)
	}

	switch i.BitDepth {
	case 8, BitDepth16, 24, 32:
	default:
		return fmt.Errorf(errFmtBitDepthValues, ErrInvalidFormat, i.BitDepth)
	}

	if i.Duration <= 0 {
		return ErrNoAudio
	}

	return nil
}

// Inspect decodes the WAV header of r and validates it.
func Inspect(r io.ReadSeeker, size int64) (Info, error) {
	decoder := wav.NewDecoder(r)
	if !decoder.IsValidFile() {
		return Info{}, ErrInvalidWAV
	}

	err := decoder.FwdToPCM()
	if err != nil {
		return Info{}, fmt.Errorf("%w: %w", ErrInvalidWAV, err)
	}

	info := Info{
		SampleRate: int(decoder.SampleRate),
		Channels:   int(decoder.NumChans),
		BitDepth:   int(decoder.BitDepth),
		Size:       size,
	}
	info.Duration = pcmDuration(int64(decoder.PCMSize), info)

	err = info.Validate()
	if err != nil {
		return info, err
	}

	return info, nil
}

// pcmDuration is the play time of pcmBytes of sample data. Header and
// metadata chunks are not counted.
func pcmDuration(pcmBytes int64, info Info) time.Duration {
	bytesPerSecond := int64(info.SampleRate) * int64(info.Channels) * int64(info.BitDepth) / bitsPerByte
	if bytesPerSecond <= 0 {
		return 0
	}

	return time.Duration(pcmBytes * int64(time.Second) / bytesPerSecond)
}

// InspectBytes inspects an in-memory WAV file.
func InspectBytes(data []byte) (Info, error) {
	return Inspect(bytes.NewReader(data), int64(len(data)))
}

// InspectFile inspects the WAV file at path.
func InspectFile(path string) (Info, error) {
	file, err := os.Open(path)
	if err != nil {
		return Info{}, fmt.Errorf("failed to open audio file %s: %w", path, err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return Info{}, fmt.Errorf("failed to stat audio file %s: %w", path, err)
	}

	info, err := Inspect(file, stat.Size())
	if err != nil {
		return info, fmt.Errorf("%s: %w", path, err)
	}

	return info, nil
}

// WriteFile encodes 16-bit PCM samples, interleaved by channel, to a WAV file.
func WriteFile(path string, samples []int, sampleRate, channels int) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create audio file %s: %w", path, err)
	}

	encoder := wav.NewEncoder(file, sampleRate, BitDepth16, channels, pcmFormat)
	buffer := &goaudio.IntBuffer{
		Format:         &goaudio.Format{SampleRate: sampleRate, NumChannels: channels},
		Data:           samples,
		SourceBitDepth: BitDepth16,
	}

	err = encoder.Write(buffer)
	if err != nil {
		_ = file.Close()

		return fmt.Errorf("failed to encode audio: %w", err)
	}

	err = encoder.Close()
	if err != nil {
		_ = file.Close()

		return fmt.Errorf("failed to finalize audio: %w", err)
	}

	return file.Close()
}

// Silence returns n zero samples per channel.
func Silence(n, channels int) []int {
	return make([]int, n*channels)
}
