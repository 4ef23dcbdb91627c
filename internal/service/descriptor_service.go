package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/makeasinger/samplepack/internal/client"
)

// Descriptor turns an image into an ordered list of sound descriptions.
// Implementations may return any number of items; callers normalize the length.
type Descriptor interface {
	Describe(ctx context.Context, image []byte, count int) ([]string, error)
}

// DescriptorService describes images with a vision model, then asks a text
// model to turn the analysis into sample prompts
type DescriptorService struct {
	chatClient *client.ChatClient
}

// NewDescriptorService creates a new descriptor service
func NewDescriptorService(chatClient *client.ChatClient) *DescriptorService {
	return &DescriptorService{
		chatClient: chatClient,
	}
}

const visionPrompt = `Act as an expert Sound Designer and Music Producer. Analyze this image and translate its visual aesthetic into a sonic concept (synesthesia). Do not just describe the visual objects; focus on the mood, lighting, textures, and emotions.

Based on this analysis, write a highly detailed prompt for an AI music generator. Include:
Genre & Style (e.g. Lofi, Cyberpunk, Cinematic, Dark Trap)
Key Instruments (e.g. analog synths, distorted 808s, sweeping strings)
Sound Textures (e.g. granular, dusty, metallic, reverb-heavy)
BPM & Rhythm (e.g. slow, erratic, driving 140 BPM)
Mood Keywords (e.g. melancholic, ethereal, aggressive)
Materials and spatial character of the scene (glass, concrete, water, metal; large reverb, muffled, claustrophobic)

Provide ONLY the final prompt in English.`

const descriptionsSystemPrompt = `You are a sound designer building sample packs for music producers.
Always output your response as valid JSON in the exact format requested.
Do not include any text outside the JSON structure.`

// Describe analyzes the image and returns the generated descriptions
func (s *DescriptorService) Describe(ctx context.Context, image []byte, count int) ([]string, error) {
	// Use mock response if client is not configured
	if s.chatClient == nil || !s.chatClient.IsConfigured() {
		return s.describeMock(), nil
	}

	if len(image) == 0 {
		return nil, errors.New("image is empty")
	}

	analysis, err := s.chatClient.DescribeImage(ctx, visionPrompt, imageDataURL(image))
	if err != nil {
		return nil, fmt.Errorf("image analysis failed: %w", err)
	}

	response, err := s.chatClient.CompleteJSON(ctx, descriptionsSystemPrompt, s.buildDescriptionsPrompt(analysis, count))
	if err != nil {
		return nil, fmt.Errorf("description generation failed: %w", err)
	}

	return parseDescriptions(response)
}

func (s *DescriptorService) buildDescriptionsPrompt(analysis string, count int) string {
	return fmt.Sprintf(`Based on this image analysis:

%s

Generate exactly %d highly distinct sound design samples. All samples MUST be coherent with the visual mood, colors, atmosphere, and emotional tone of the image.

Use these categories as structural templates, adapted to the image mood:
- Loops: drones (sustained harmonic clusters, single-note drones), a melodic piano phrase, textures (granular field recordings, organic noises, spatial ambiance, microtextures), low-end rumbles, textured pads
- Rhythmic loops: soft percussive clicks and glitch ticks, low-frequency pulses, slow modular shakers
- One-shots: soft impacts, abstract percussive strikes, atmospheric plucks without sharp transients

RULES:
1. Descriptions must be evocative rather than technical: include colors, mood and ambiance.
2. Be specific, realistic, and musically usable.
3. Every sample must belong to a different sub-type.
4. All notes must be in the same scale (e.g. C minor, G major).
5. Each item is a single sentence.

Output as JSON: {"descriptions": ["Sample 1 description", "Sample 2 description"]} with exactly %d items.`,
		analysis, count, count)
}

// parseDescriptions accepts {"descriptions": [...]} or a bare array, with
// any text around the JSON value ignored.
func parseDescriptions(response string) ([]string, error) {
	raw := extractJSON(response)

	var value interface{}
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return nil, &DescriptorParseError{Raw: response, Err: fmt.Errorf("invalid JSON response: %w", err)}
	}

	var items []interface{}
	switch v := value.(type) {
	case map[string]interface{}:
		list, ok := v["descriptions"]
		if !ok {
			return nil, &DescriptorParseError{Raw: response, Err: errors.New(`response has no "descriptions" key`)}
		}
		items, ok = list.([]interface{})
		if !ok {
			return nil, &DescriptorParseError{Raw: response, Err: errors.New("descriptions is not an array")}
		}
	case []interface{}:
		items = v
	default:
		return nil, &DescriptorParseError{Raw: response, Err: errors.New("response is neither an object nor an array")}
	}

	descriptions := make([]string, 0, len(items))
	for i, item := range items {
		text, ok := item.(string)
		if !ok {
			return nil, &DescriptorParseError{Raw: response, Err: fmt.Errorf("description %d is not a string", i+1)}
		}
		descriptions = append(descriptions, strings.TrimSpace(text))
	}

	return descriptions, nil
}

// extractJSON trims a response down to its outermost JSON object or array
func extractJSON(s string) string {
	start := strings.IndexAny(s, "{[")
	if start == -1 {
		return s
	}

	closing := "}"
	if s[start] == '[' {
		closing = "]"
	}
	end := strings.LastIndex(s, closing)

	if end > start {
		return s[start : end+1]
	}
	return s
}

func imageDataURL(image []byte) string {
	mime := mimetype.Detect(image)
	return "data:" + mime.String() + ";base64," + base64.StdEncoding.EncodeToString(image)
}

// Mock implementation for development/testing
func (s *DescriptorService) describeMock() []string {
	return []string{
		"Warm sustained string cluster in C minor glowing like amber dusk light",
		"Single low C drone humming beneath a foggy violet horizon",
		"Slow melancholic piano phrase in C minor drifting through an empty room",
		"Granular rain texture crackling on cold city glass",
		"Soft wind brushing through dry reeds with distant metallic resonance",
		"Deep sub-bass rumble rolling like thunder far beyond the hills",
		"Dusty analog pad swelling with pale blue shimmer",
		"Gentle glitch ticks scattering like sparks in the dark",
		"Felt kick pulse beating slowly like a sleeping heart",
		"Airy atmospheric pluck in C minor fading into soft reverb",
	}
}
