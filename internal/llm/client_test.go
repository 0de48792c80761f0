package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(Config{
		APIKey:  "test-key",
		BaseURL: server.URL + "/v1",
		Timeout: time.Second,
	}, nil)
	require.NoError(t, err)
	return client
}

func TestGenerateText(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var body struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, DefaultChatModel, body.Model)
		require.Len(t, body.Messages, 1)
		assert.Equal(t, "user", body.Messages[0].Role)
		assert.Equal(t, "hello", body.Messages[0].Content)

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"c1","object":"chat.completion","created":1,"model":"gemini","choices":[{"index":0,"message":{"role":"assistant","content":"English"},"finish_reason":"stop"}],"usage":{"prompt_tokens":1,"completion_tokens":1,"total_tokens":2}}`)
	})

	text, err := client.GenerateText(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "English", text)
}

func TestGenerateTextEmptyChoices(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"c1","object":"chat.completion","created":1,"model":"gemini","choices":[]}`)
	})

	_, err := client.GenerateText(context.Background(), "hello")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEmptyResponse))
}

func TestGenerateTextAPIError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"message":"bad","type":"invalid_request_error"}}`)
	})

	_, err := client.GenerateText(context.Background(), "hello")
	require.Error(t, err)
}

func TestDescribeImageSendsDataURL(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Model    string `json:"model"`
			Messages []struct {
				Content []struct {
					Type     string `json:"type"`
					Text     string `json:"text"`
					ImageURL struct {
						URL string `json:"url"`
					} `json:"image_url"`
				} `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, DefaultVisionModel, body.Model)
		require.Len(t, body.Messages, 1)
		require.Len(t, body.Messages[0].Content, 2)
		assert.Equal(t, "text", body.Messages[0].Content[0].Type)
		assert.True(t, strings.HasPrefix(body.Messages[0].Content[1].ImageURL.URL, "data:image/png;base64,"))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"c1","object":"chat.completion","created":1,"model":"gemini","choices":[{"index":0,"message":{"role":"assistant","content":"Looks like eczema."},"finish_reason":"stop"}]}`)
	})

	text, err := client.DescribeImage(context.Background(), "describe", []byte{0x89, 'P', 'N', 'G'}, "image/png")
	require.NoError(t, err)
	assert.Equal(t, "Looks like eczema.", text)
}

func TestDescribeImageRejectsEmptyData(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})

	_, err := client.DescribeImage(context.Background(), "describe", nil, "image/png")
	require.Error(t, err)
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	_, err := NewClient(Config{}, nil)
	require.Error(t, err)
}

func TestGenerateTextTimeout(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	client.timeout = 50 * time.Millisecond

	start := time.Now()
	_, err := client.GenerateText(context.Background(), "hello")
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestGenerateTextTimeoutWithLongerCallerDeadline(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	client.timeout = 50 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), time.Hour)
	defer cancel()

	start := time.Now()
	_, err := client.GenerateText(ctx, "hello")
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestStripCodeFence(t *testing.T) {
	cases := map[string]string{
		"```json\n{\"a\":1}\n```": `{"a":1}`,
		"```\n[1]\n```":           "[1]",
		"  plain  ":               "plain",
	}
	for in, want := range cases {
		assert.Equal(t, want, StripCodeFence(in), in)
	}
}
