package client

import (
	"bytes"
	"fmt"
	"io"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/makeasinger/samplepack/internal/model"
)

// wavFormatPCM is the WAVE_FORMAT_PCM audio format tag.
const wavFormatPCM = 1

// StagedBitDepth is the bit depth of every WAV file written by EncodeWAV.
const StagedBitDepth = 16

// DecodeWAV reads a complete WAV file into a waveform.
func DecodeWAV(data []byte) (*model.Waveform, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("invalid WAV data")
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to decode WAV: %w", err)
	}
	if len(buf.Data) == 0 {
		return nil, fmt.Errorf("WAV contains no samples")
	}

	return &model.Waveform{
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
		BitDepth:   int(dec.BitDepth),
		Data:       buf.Data,
	}, nil
}

// EncodeWAV writes wave as 16-bit PCM, rescaling other bit depths.
func EncodeWAV(w io.WriteSeeker, wave *model.Waveform) error {
	if wave == nil || len(wave.Data) == 0 {
		return fmt.Errorf("waveform is empty")
	}
	if wave.SampleRate <= 0 || wave.Channels <= 0 {
		return fmt.Errorf("invalid waveform format: %d Hz, %d channels", wave.SampleRate, wave.Channels)
	}

	enc := wav.NewEncoder(w, wave.SampleRate, StagedBitDepth, wave.Channels, wavFormatPCM)
	buf := &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: wave.Channels,
			SampleRate:  wave.SampleRate,
		},
		Data:           to16Bit(wave.Data, wave.BitDepth),
		SourceBitDepth: StagedBitDepth,
	}

	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("failed to write WAV data: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to finalize WAV: %w", err)
	}
	return nil
}

func to16Bit(data []int, bitDepth int) []int {
	switch {
	case bitDepth == 0 || bitDepth == StagedBitDepth:
		return data
	case bitDepth == 8:
		// 8-bit PCM is unsigned
		out := make([]int, len(data))
		for i, v := range data {
			out[i] = (v - 128) << 8
		}
		return out
	case bitDepth > StagedBitDepth:
		shift := uint(bitDepth - StagedBitDepth)
		out := make([]int, len(data))
		for i, v := range data {
			out[i] = v >> shift
		}
		return out
	default:
		shift := uint(StagedBitDepth - bitDepth)
		out := make([]int, len(data))
		for i, v := range data {
			out[i] = v << shift
		}
		return out
	}
}
