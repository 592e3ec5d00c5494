package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"dailyalchemy/internal/apperr"
	"dailyalchemy/internal/models"
)

const systemPrompt = `You are the alchemist behind a daily element-combination puzzle.
Players start from earth, water, fire and wind and combine two elements at a time.
Answer with a single, concrete, family-friendly element and one emoji.
Never answer with earth, water, fire or wind. Prefer results consistent with the known combinations.`

const bridgePrompt = `You design solution paths for an element-combination puzzle.
Given the elements a player already has and a target, propose the shortest list of steps
(a + b = result) that reaches the target. Every step may only use elements that are available
or produced by an earlier step. The last step must produce the target exactly.`

var resultSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"resultName":  map[string]any{"type": "string", "maxLength": 100},
		"resultEmoji": map[string]any{"type": "string"},
		"rationale":   map[string]any{"type": "string"},
	},
	"required":             []string{"resultName", "resultEmoji", "rationale"},
	"additionalProperties": false,
}

var bridgeSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"steps": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"a":           map[string]any{"type": "string"},
					"b":           map[string]any{"type": "string"},
					"resultName":  map[string]any{"type": "string"},
					"resultEmoji": map[string]any{"type": "string"},
				},
				"required":             []string{"a", "b", "resultName", "resultEmoji"},
				"additionalProperties": false,
			},
		},
	},
	"required":             []string{"steps"},
	"additionalProperties": false,
}

// OpenAIProvider calls the OpenAI Responses API with structured output.
type OpenAIProvider struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewOpenAIProvider builds a provider authenticating with a static bearer
// token. It performs no retries of its own.
func NewOpenAIProvider(baseURL, apiKey, model string) (*OpenAIProvider, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("missing oracle api key")
	}
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: apiKey, TokenType: "Bearer"})
	return &OpenAIProvider{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: oauth2.NewClient(context.Background(), src),
	}, nil
}

type providerHTTPError struct {
	StatusCode int
	Body       string
	retryAfter time.Duration
}

func (e *providerHTTPError) Error() string {
	return fmt.Sprintf("oracle http %d: %s", e.StatusCode, e.Body)
}

func (e *providerHTTPError) HTTPStatusCode() int { return e.StatusCode }

func (e *providerHTTPError) RetryAfter() time.Duration { return e.retryAfter }

type responsesRequest struct {
	Model string         `json:"model"`
	Input []inputMessage `json:"input"`
	Text  struct {
		Format map[string]any `json:"format,omitempty"`
	} `json:"text"`
	Temperature float64 `json:"temperature,omitempty"`
}

type inputMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responsesResponse struct {
	Output []struct {
		Type    string `json:"type"`
		Role    string `json:"role,omitempty"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text,omitempty"`
		} `json:"content,omitempty"`
	} `json:"output"`
	Refusal string `json:"refusal,omitempty"`
}

func (r responsesResponse) outputText() string {
	var out strings.Builder
	for _, item := range r.Output {
		if item.Type == "message" && item.Role == "assistant" {
			for _, c := range item.Content {
				if c.Type == "output_text" {
					out.WriteString(c.Text)
				}
			}
		}
	}
	return out.String()
}

func (p *OpenAIProvider) Generate(ctx context.Context, req Request) (Result, error) {
	var user strings.Builder
	if len(req.Context) > 0 {
		user.WriteString("Known combinations:\n")
		for _, rec := range req.Context {
			fmt.Fprintf(&user, "%s + %s = %s %s\n", rec.ElementA, rec.ElementB, rec.ResultName, rec.ResultEmoji)
		}
		user.WriteString("\n")
	}
	fmt.Fprintf(&user, "Combine: %s %s + %s %s", req.A.Emoji, req.A.Name, req.B.Emoji, req.B.Name)

	var out Result
	if err := p.generateJSON(ctx, systemPrompt, user.String(), "combination_result", resultSchema, &out); err != nil {
		return Result{}, err
	}
	return out, nil
}

func (p *OpenAIProvider) ProposeBridge(ctx context.Context, req BridgeRequest) ([]models.Step, error) {
	user := fmt.Sprintf("Available: %s\nTarget: %s %s\nUse at most %d steps.",
		strings.Join(req.Available, ", "), req.Target.Emoji, req.Target.Name, req.MaxSteps)

	var out struct {
		Steps []models.Step `json:"steps"`
	}
	if err := p.generateJSON(ctx, bridgePrompt, user, "bridge_steps", bridgeSchema, &out); err != nil {
		return nil, err
	}
	return out.Steps, nil
}

func (p *OpenAIProvider) generateJSON(ctx context.Context, system, user, schemaName string, schema map[string]any, out any) error {
	req := responsesRequest{
		Model:       p.model,
		Input:       []inputMessage{{Role: "system", Content: system}, {Role: "user", Content: user}},
		Temperature: 0.2,
	}
	req.Text.Format = map[string]any{
		"type":   "json_schema",
		"name":   schemaName,
		"schema": schema,
		"strict": true,
	}

	var resp responsesResponse
	if err := p.post(ctx, "/v1/responses", req, &resp); err != nil {
		return err
	}
	if resp.Refusal != "" {
		return apperr.New(apperr.KindInvalidOracleResponse, "model refused: %s", resp.Refusal)
	}
	text := strings.TrimSpace(resp.outputText())
	if text == "" {
		return apperr.New(apperr.KindInvalidOracleResponse, "no output_text in response")
	}
	if err := json.Unmarshal([]byte(text), out); err != nil {
		return apperr.New(apperr.KindInvalidOracleResponse, "malformed model JSON: %v", err)
	}
	return nil
}

func (p *OpenAIProvider) post(ctx context.Context, path string, body, out any) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &providerHTTPError{
			StatusCode: resp.StatusCode,
			Body:       string(raw),
			retryAfter: parseRetryAfter(resp.Header),
		}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return apperr.New(apperr.KindInvalidOracleResponse, "decode response: %v", err)
	}
	return nil
}
