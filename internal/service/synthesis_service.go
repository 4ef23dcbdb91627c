package service

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math"

	"github.com/makeasinger/samplepack/internal/client"
	"github.com/makeasinger/samplepack/internal/config"
	"github.com/makeasinger/samplepack/internal/model"
)

// Synthesizer turns one text description into one waveform.
type Synthesizer interface {
	Synthesize(ctx context.Context, description string) (*model.Waveform, error)
}

// mockToneSeconds is the length of the placeholder tone rendered without a
// synthesis service.
const mockToneSeconds = 1

// SynthesisService generates samples with the text-to-audio microservice
type SynthesisService struct {
	synthClient client.AudioSynthesizer
	steps       int
	duration    int
	sampleRate  int
}

// NewSynthesisService creates a new synthesis service. A nil client renders
// placeholder tones instead.
func NewSynthesisService(synthClient client.AudioSynthesizer, cfg *config.SynthConfig) *SynthesisService {
	return &SynthesisService{
		synthClient: synthClient,
		steps:       cfg.Steps,
		duration:    cfg.Duration,
		sampleRate:  cfg.SampleRate,
	}
}

// Synthesize generates a single sample for description
func (s *SynthesisService) Synthesize(ctx context.Context, description string) (*model.Waveform, error) {
	if description == "" {
		return nil, errors.New("description is empty")
	}

	// Use mock response if client is not configured
	if s.synthClient == nil {
		return s.synthesizeMock(ctx, description)
	}

	wave, err := s.synthClient.Generate(ctx, &client.GenerateAudioRequest{
		Prompt:     description,
		Steps:      s.steps,
		Duration:   s.duration,
		SampleRate: s.sampleRate,
	})
	if err != nil {
		return nil, fmt.Errorf("audio generation failed: %w", err)
	}

	return wave, nil
}

// synthesizeMock renders a mono 16-bit sine tone whose pitch is derived from
// the description, so equal descriptions always give equal audio.
func (s *SynthesisService) synthesizeMock(ctx context.Context, description string) (*model.Waveform, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rate := s.sampleRate
	if rate <= 0 {
		rate = 44100
	}

	h := fnv.New32a()
	h.Write([]byte(description))
	freq := 110 + float64(h.Sum32()%770)

	frames := rate * mockToneSeconds
	fade := rate / 50
	amplitude := 0.3 * math.MaxInt16

	data := make([]int, frames)
	for i := range data {
		gain := 1.0
		if i < fade {
			gain = float64(i) / float64(fade)
		} else if i >= frames-fade {
			gain = float64(frames-1-i) / float64(fade)
		}
		data[i] = int(amplitude * gain * math.Sin(2*math.Pi*freq*float64(i)/float64(rate)))
	}

	return &model.Waveform{
		SampleRate: rate,
		Channels:   1,
		BitDepth:   16,
		Data:       data,
	}, nil
}
