package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/failsafe-go/failsafe-go"

	"frameworks/crowsnest/pkg/clients"
)

const geminiDefaultURL = "https://generativelanguage.googleapis.com/v1beta"

// GeminiProvider streams from the Gemini generateContent API.
type GeminiProvider struct {
	client   *http.Client
	executor failsafe.Executor[*http.Response]
	apiKey   string
	apiURL   string
	model    string
}

func NewGeminiProvider(cfg Config) *GeminiProvider {
	cfg = cfg.withDefaults()
	apiURL := strings.TrimRight(cfg.APIURL, "/")
	if apiURL == "" {
		apiURL = geminiDefaultURL
	}
	if i := strings.Index(apiURL, "/models/"); i >= 0 {
		apiURL = apiURL[:i]
	}
	return &GeminiProvider{
		client:   &http.Client{Timeout: cfg.Timeout},
		executor: clients.NewHTTPExecutor(cfg.retryConfig()),
		apiKey:   cfg.APIKey,
		apiURL:   apiURL,
		model:    strings.TrimPrefix(cfg.Model, "models/"),
	}
}

func (p *GeminiProvider) Complete(ctx context.Context, messages []Message) (Stream, error) {
	if p.model == "" {
		return nil, errors.New("gemini model is required")
	}
	if p.apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	reqBody := geminiRequest{}
	for _, msg := range messages {
		part := geminiPart{Text: msg.Content}
		switch msg.Role {
		case "system":
			if reqBody.SystemInstruction == nil {
				reqBody.SystemInstruction = &geminiContent{}
			}
			reqBody.SystemInstruction.Parts = append(reqBody.SystemInstruction.Parts, part)
		case "assistant":
			reqBody.Contents = append(reqBody.Contents, geminiContent{Role: "model", Parts: []geminiPart{part}})
		default:
			reqBody.Contents = append(reqBody.Contents, geminiContent{Role: "user", Parts: []geminiPart{part}})
		}
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("gemini: marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse", p.apiURL, url.PathEscape(p.model))
	resp, err := clients.ExecuteHTTP(ctx, p.executor, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-goog-api-key", p.apiKey)
		return p.client.Do(req)
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: request failed: %w", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, statusError("gemini", resp)
	}
	return newSSEStream(resp, decodeGeminiChunk), nil
}

type geminiRequest struct {
	Contents          []geminiContent `json:"contents"`
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiStreamResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

func decodeGeminiChunk(data []byte) (Chunk, error) {
	var payload geminiStreamResponse
	if err := json.Unmarshal(data, &payload); err != nil {
		return Chunk{}, fmt.Errorf("gemini: decode chunk: %w", err)
	}
	if len(payload.Candidates) == 0 {
		return Chunk{}, nil
	}
	var text strings.Builder
	for _, part := range payload.Candidates[0].Content.Parts {
		text.WriteString(part.Text)
	}
	return Chunk{Content: text.String()}, nil
}
