package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/the-spice-must-ingest/internal/common"
)

func TestNewAnthropicClient(t *testing.T) {
	tests := []struct {
		name      string
		config    Config
		wantModel string
		wantErr   bool
	}{
		{
			name:      "valid config uses defaults",
			config:    Config{APIKey: "test-key"},
			wantModel: defaultAnthropicModel,
		},
		{
			name:    "missing API key",
			config:  Config{},
			wantErr: true,
		},
		{
			name:      "custom model",
			config:    Config{APIKey: "test-key", Model: "claude-3-5-sonnet-latest", MaxTokens: 200},
			wantModel: "claude-3-5-sonnet-latest",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := newAnthropicClient(tt.config)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, common.ErrMissingConfig)
				return
			}
			require.NoError(t, err)
			ac, ok := client.(*anthropicClient)
			require.True(t, ok)
			assert.Equal(t, tt.wantModel, ac.model)
			assert.Equal(t, anthropicBaseURL, ac.baseURL)
		})
	}
}

func TestAnthropicClient_Complete(t *testing.T) {
	tests := []struct {
		name          string
		reply         string
		statusCode    int
		wantText      string
		wantErr       bool
		wantRetryable bool
	}{
		{
			name:       "successful completion",
			reply:      `{"content":[{"type":"text","text":"{\"type\":\"purchase\"}"}]}`,
			statusCode: http.StatusOK,
			wantText:   `{"type":"purchase"}`,
		},
		{
			name:       "no content in response",
			reply:      `{"content":[]}`,
			statusCode: http.StatusOK,
			wantErr:    true,
		},
		{
			name:          "server error is retryable",
			reply:         `{"error":"overloaded"}`,
			statusCode:    http.StatusInternalServerError,
			wantErr:       true,
			wantRetryable: true,
		},
		{
			name:          "rate limited is retryable",
			reply:         `{"error":"slow down"}`,
			statusCode:    http.StatusTooManyRequests,
			wantErr:       true,
			wantRetryable: true,
		},
		{
			name:       "bad request is permanent",
			reply:      `{"error":"bad"}`,
			statusCode: http.StatusBadRequest,
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "/v1/messages", r.URL.Path)
				assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
				assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))

				var body map[string]any
				assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
				assert.Equal(t, defaultAnthropicModel, body["model"])
				assert.EqualValues(t, defaultMaxTokens, body["max_tokens"])
				assert.Equal(t, "be brief", body["system"])

				w.WriteHeader(tt.statusCode)
				_, _ = w.Write([]byte(tt.reply))
			}))
			defer server.Close()

			client, err := newAnthropicClient(Config{APIKey: "test-key", BaseURL: server.URL})
			require.NoError(t, err)

			text, err := client.Complete(context.Background(), CompletionRequest{System: "be brief", Prompt: "hello"})
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, tt.wantRetryable, common.IsRetryable(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantText, text)
		})
	}
}

func TestNewClientProviders(t *testing.T) {
	c, err := NewClient(Config{APIKey: "k"})
	require.NoError(t, err)
	assert.IsType(t, &anthropicClient{}, c)

	c, err = NewClient(Config{Provider: "OpenAI", APIKey: "k"})
	require.NoError(t, err)
	assert.IsType(t, &openAIClient{}, c)

	_, err = NewClient(Config{Provider: "mystery", APIKey: "k"})
	assert.Error(t, err)
}
