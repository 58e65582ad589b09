// Package gemini implements the generative analysis collaborator on the
// Gemini API.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"text/template"
	"time"

	"google.golang.org/genai"

	"github.com/AdityaDeshmukh2023/supplier-compliance/internal/domain"
	"github.com/AdityaDeshmukh2023/supplier-compliance/internal/ports"
)

const (
	DefaultModel = "gemini-1.5-flash"
	temperature  = 0.2
)

type Config struct {
	APIKey string
	Model  string
	// BaseURL overrides the Gemini API endpoint; empty uses the SDK default.
	BaseURL    string
	HTTPClient *http.Client
}

type Client struct {
	models *genai.Models
	model  string
}

var _ ports.Analyzer = (*Client)(nil)

func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini: api key is required")
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      cfg.APIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  cfg.HTTPClient,
		HTTPOptions: genai.HTTPOptions{BaseURL: strings.TrimRight(cfg.BaseURL, "/")},
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: new client: %w", err)
	}
	return &Client{models: client.Models, model: cfg.Model}, nil
}

// Analyze sends the aggregates and returns the model's JSON answer as is.
// The answer is untrusted; validation is the caller's job.
func (c *Client) Analyze(ctx context.Context, agg domain.Aggregates) (json.RawMessage, error) {
	prompt, err := Prompt(agg)
	if err != nil {
		return nil, err
	}
	resp, err := c.models.GenerateContent(ctx, c.model, genai.Text(prompt), &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr[float32](temperature),
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}
	if len(resp.Candidates) == 0 {
		return nil, errors.New("gemini: empty candidates in response")
	}
	raw := stripFence(resp.Text())
	if !json.Valid([]byte(raw)) {
		return nil, errors.New("gemini: answer is not JSON")
	}
	return json.RawMessage(raw), nil
}

// stripFence removes a markdown code fence around the answer, which models
// add even when asked for bare JSON.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

var promptTemplate = template.Must(template.New("prompt").Parse(`You are reviewing supplier compliance for a procurement team.
The figures below were computed from stored compliance records ({{.Scope}} scope, last {{.WindowDays}} days).
They are final; do not recompute them.

{{.Figures}}

Answer with a single JSON object and nothing else:
{
  "recommendations": [strings, concrete actions to improve compliance],
  "key_issues": [strings, the main problems visible in the figures],
  "risk_assessment": "low" | "medium" | "high",
  "compliance_score_suggestion": integer 0-100,
  "contract_adjustments": [{"term": string, "suggested_change": string, "rationale": string}],
  "summary": string
}

Focus on recurring non-compliance by metric, suppliers at risk, contract terms worth
tightening or relaxing, and penalties for repeated violations.`))

// Prompt renders the aggregates into the instruction sent to the model.
func Prompt(agg domain.Aggregates) (string, error) {
	figures, err := json.MarshalIndent(agg, "", "  ")
	if err != nil {
		return "", fmt.Errorf("gemini: marshal aggregates: %w", err)
	}
	var b strings.Builder
	err = promptTemplate.Execute(&b, struct {
		Scope      string
		WindowDays int
		Figures    string
	}{agg.Scope, agg.WindowDays, string(figures)})
	if err != nil {
		return "", fmt.Errorf("gemini: render prompt: %w", err)
	}
	return b.String(), nil
}
