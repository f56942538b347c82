package openai

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/crisis-sim/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type chatRequest struct {
	Model       string  `json:"model"`
	Temperature float32 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
	TopP        float32 `json:"top_p"`
	Messages    []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func completion(content string) map[string]any {
	return map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"model":   "mixtral-8x7b-32768",
		"choices": []map[string]any{{"index": 0, "finish_reason": "stop", "message": map[string]any{"role": "assistant", "content": content}}},
		"usage":   map[string]any{"prompt_tokens": 120, "completion_tokens": 300, "total_tokens": 420},
	}
}

func newTestClient(srv *httptest.Server, timeout time.Duration) *Client {
	return NewClient(Config{
		APIKey:      "test-key",
		BaseURL:     srv.URL + "/",
		Model:       "mixtral-8x7b-32768",
		Temperature: 0.7,
		MaxTokens:   1000,
		Timeout:     timeout,

		TranscriptionModel: "whisper-large-v3",
	}, discardLogger())
}

func TestGenerate_Success(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(completion(`[{"type":"Sandstorm"}]`))
	}))
	defer srv.Close()

	raw, err := newTestClient(srv, 5*time.Second).Generate(context.Background(), domain.GenerationRequest{
		Dataset:    domain.DatasetAlerts,
		SystemRole: "schema",
		UserPrompt: "sandstorm over Doha",
		BatchSize:  10,
	})
	require.NoError(t, err)

	assert.Equal(t, `[{"type":"Sandstorm"}]`, raw)
	assert.Equal(t, "mixtral-8x7b-32768", got.Model)
	assert.Equal(t, 1000, got.MaxTokens)
	assert.InDelta(t, 0.7, got.Temperature, 1e-6)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "schema", got.Messages[0].Content)
	assert.Equal(t, "user", got.Messages[1].Role)
}

func TestGenerate_NoSystemRole(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode(completion("Stay indoors."))
	}))
	defer srv.Close()

	raw, err := newTestClient(srv, time.Second).Generate(context.Background(), domain.GenerationRequest{UserPrompt: "what now?"})
	require.NoError(t, err)
	assert.Equal(t, "Stay indoors.", raw)
	assert.Len(t, got.Messages, 1)
}

func TestGenerate_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limit reached","type":"requests"}}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv, time.Second).Generate(context.Background(), domain.GenerationRequest{UserPrompt: "x"})
	require.ErrorIs(t, err, domain.ErrGenerationUnavailable)
	assert.Contains(t, err.Error(), "429")
}

func TestGenerate_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"id":"x","choices":[]}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv, time.Second).Generate(context.Background(), domain.GenerationRequest{UserPrompt: "x"})
	assert.ErrorIs(t, err, domain.ErrGenerationUnavailable)
}

func TestGenerate_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	_, err := newTestClient(srv, 50*time.Millisecond).Generate(context.Background(), domain.GenerationRequest{UserPrompt: "x"})
	assert.ErrorIs(t, err, domain.ErrGenerationUnavailable)
}

func TestGenerate_RequestOverridesTokenBudget(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode(completion("ok"))
	}))
	defer srv.Close()

	_, err := newTestClient(srv, time.Second).Generate(context.Background(), domain.GenerationRequest{
		UserPrompt: "x",
		MaxTokens:  500,
		TopP:       0.9,
	})
	require.NoError(t, err)
	assert.Equal(t, 500, got.MaxTokens)
	assert.InDelta(t, 0.9, got.TopP, 1e-6)
}

func TestGenerate_DeadlineKeepsCause(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := newTestClient(srv, 0).Generate(ctx, domain.GenerationRequest{UserPrompt: "x"})
	require.ErrorIs(t, err, domain.ErrGenerationUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGenerate_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	_, err := newTestClient(srv, time.Second).Generate(context.Background(), domain.GenerationRequest{UserPrompt: "x"})
	assert.ErrorIs(t, err, domain.ErrGenerationUnavailable)
}

func TestTranscribe_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/audio/transcriptions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "whisper-large-v3", r.FormValue("model"))
		assert.Equal(t, "json", r.FormValue("response_format"))

		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		body, _ := io.ReadAll(f)
		assert.Equal(t, "question.wav", hdr.Filename)
		assert.Equal(t, "RIFF-audio", string(body))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":" Where is the nearest shelter? "}`))
	}))
	defer srv.Close()

	text, err := newTestClient(srv, time.Second).Transcribe(context.Background(), strings.NewReader("RIFF-audio"), "question.wav")
	require.NoError(t, err)
	assert.Equal(t, "Where is the nearest shelter?", text)
}

func TestTranscribe_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"could not decode audio","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv, time.Second).Transcribe(context.Background(), strings.NewReader("noise"), "question.wav")
	require.ErrorIs(t, err, domain.ErrTranscriptionUnavailable)
	assert.Contains(t, err.Error(), "400")
}
