package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Ollama defaults.
const (
	DefaultOllamaURL  = "http://localhost:11434"
	DefaultChatModel  = "llama3.1:8b-instruct-q8_0"
	DefaultEmbedModel = "nomic-embed-text"
)

type OllamaConfig struct {
	BaseURL     string
	Model       string
	EmbedModel  string
	Temperature float64
	Seed        int
	MaxTokens   int
	HTTPClient  *http.Client
}

func (c *OllamaConfig) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultOllamaURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.Model == "" {
		c.Model = DefaultChatModel
	}
	if c.EmbedModel == "" {
		c.EmbedModel = DefaultEmbedModel
	}
	if c.Temperature <= 0 {
		c.Temperature = 0.8
	}
	if c.Seed == 0 {
		c.Seed = 1
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 256
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
}

// Ollama is a chat oracle and memory embedder backed by an Ollama server.
type Ollama struct {
	cfg OllamaConfig
}

func NewOllama(cfg OllamaConfig) *Ollama {
	cfg.applyDefaults()
	return &Ollama{cfg: cfg}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatOptions struct {
	Temperature float64 `json:"temperature"`
	Seed        int     `json:"seed"`
	NumCtx      int     `json:"num_ctx"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	Stream    bool          `json:"stream"`
	Format    string        `json:"format,omitempty"`
	Options   chatOptions   `json:"options"`
	KeepAlive string        `json:"keep_alive,omitempty"`
}

type chatResponse struct {
	Message chatMessage `json:"message"`
	Error   string      `json:"error,omitempty"`
}

type embedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embedResponse struct {
	Embedding []float64 `json:"embedding"`
}

func (o *Ollama) Decide(ctx context.Context, req Request) (string, error) {
	msgs := []chatMessage{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: UserPrompt(req.Context)},
	}
	if req.Repair != nil {
		msgs = append(msgs,
			chatMessage{Role: "assistant", Content: req.Repair.Previous},
			chatMessage{Role: "user", Content: RepairPrompt(*req.Repair)},
		)
	}
	body := chatRequest{
		Model:    o.cfg.Model,
		Messages: msgs,
		Format:   "json",
		Options: chatOptions{
			Temperature: o.cfg.Temperature,
			Seed:        o.cfg.Seed,
			NumCtx:      8192,
			NumPredict:  o.cfg.MaxTokens,
		},
		KeepAlive: "30m",
	}
	var resp chatResponse
	if err := o.post(ctx, "/api/chat", body, &resp); err != nil {
		return "", err
	}
	if resp.Error != "" {
		return "", fmt.Errorf("ollama chat: %s", resp.Error)
	}
	return strings.TrimSpace(resp.Message.Content), nil
}

// Embed implements memory.Embedder.
func (o *Ollama) Embed(ctx context.Context, text string) ([]float64, error) {
	var resp embedResponse
	if err := o.post(ctx, "/api/embeddings", embedRequest{Model: o.cfg.EmbedModel, Prompt: text}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Embedding) == 0 {
		return nil, fmt.Errorf("ollama embeddings: empty vector")
	}
	return resp.Embedding, nil
}

func (o *Ollama) post(ctx context.Context, path string, in, out any) error {
	b, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("ollama %s: marshal: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.cfg.BaseURL+path, bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("ollama %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := o.cfg.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("ollama %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("ollama %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("ollama %s: decode: %w", path, err)
	}
	return nil
}
