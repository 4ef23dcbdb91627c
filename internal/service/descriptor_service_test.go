package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/makeasinger/samplepack/internal/client"
	"github.com/makeasinger/samplepack/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pngHeader is enough for content sniffing.
var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func TestParseDescriptions(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     []string
	}{
		{"object", `{"descriptions": ["a", "b"]}`, []string{"a", "b"}},
		{"bare array", `["a", "b", "c"]`, []string{"a", "b", "c"}},
		{"surrounding text", "Here you go:\n```json\n{\"descriptions\": [\" a \"]}\n```", []string{"a"}},
		{"empty list", `{"descriptions": []}`, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseDescriptions(tt.response)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseDescriptions_Errors(t *testing.T) {
	for _, response := range []string{
		"no json here",
		`{"samples": ["a"]}`,
		`{"descriptions": "a"}`,
		`["a", 2]`,
		`{"descriptions": [`,
		`"just a string"`,
	} {
		_, err := parseDescriptions(response)
		var parseErr *DescriptorParseError
		require.ErrorAs(t, err, &parseErr, response)
		assert.Equal(t, response, parseErr.Raw)
	}
}

func TestDescriptorService_Mock(t *testing.T) {
	svc := NewDescriptorService(nil)
	got, err := svc.Describe(context.Background(), []byte("img"), 10)
	require.NoError(t, err)
	assert.Len(t, got, 10)
}

func TestDescriptorService_VisionThenText(t *testing.T) {
	var models []string
	var imageURL string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Content json.RawMessage `json:"content"`
			} `json:"messages"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		models = append(models, req.Model)

		content := "A dusky violet cityscape, slow and melancholic."
		if req.Model == "vis" {
			var parts []client.ContentPart
			assert.NoError(t, json.Unmarshal(req.Messages[0].Content, &parts))
			for _, p := range parts {
				if p.ImageURL != nil {
					imageURL = p.ImageURL.URL
				}
			}
		} else {
			content = `{"descriptions": ["first", "second", "third"]}`
		}

		resp := map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"role": "assistant", "content": content}},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		assert.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer server.Close()

	chat := client.NewChatClient(&config.VisionConfig{BaseURL: server.URL, VisionModel: "vis", TextModel: "txt", Timeout: 5})
	svc := NewDescriptorService(chat)

	got, err := svc.Describe(context.Background(), pngHeader, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second", "third"}, got)
	assert.Equal(t, []string{"vis", "txt"}, models)
	assert.True(t, strings.HasPrefix(imageURL, "data:image/png;base64,"), imageURL)
}

func TestDescriptorService_UpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	chat := client.NewChatClient(&config.VisionConfig{BaseURL: server.URL, VisionModel: "vis", TextModel: "txt", Timeout: 5})
	_, err := NewDescriptorService(chat).Describe(context.Background(), pngHeader, 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "image analysis failed")
}
