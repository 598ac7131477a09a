package intent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/procurehub/procurement-orchestrator/internal/models"
)

const systemPrompt = `You are a procurement request interpreter. Extract structured ` +
	`constraints from the user's request and the clarification history. ` +
	`Return ONLY a JSON object with no extra text, in this exact shape: ` +
	`{"category": string, "quantity": int, "budget_ceiling": number, ` +
	`"currency": string, "required_specs": [string], ` +
	`"needs_clarification": bool, "clarifying_question": string}. ` +
	`Category is the product noun (e.g. "keyboards", "chairs"). ` +
	`budget_ceiling is the per-unit limit; 0 if not stated. ` +
	`If a mandatory field (category or quantity) is missing or ambiguous, ` +
	`set needs_clarification to true and ask exactly ONE question.`

var jsonPattern = regexp.MustCompile(`(?s)\{.*\}`)

// LLMAgent implements Agent against an OpenAI-compatible chat-completions
// endpoint. Unreachable service or unparsable output is surfaced as an
// InterpretationError; the orchestrator retries it a bounded number of
// times.
type LLMAgent struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	tracer     trace.Tracer
	breaker    *gobreaker.CircuitBreaker
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// parsedIntent mirrors the JSON contract in the system prompt.
type parsedIntent struct {
	Category           string   `json:"category"`
	Quantity           int      `json:"quantity"`
	BudgetCeiling      float64  `json:"budget_ceiling"`
	Currency           string   `json:"currency"`
	RequiredSpecs      []string `json:"required_specs"`
	NeedsClarification bool     `json:"needs_clarification"`
	ClarifyingQuestion string   `json:"clarifying_question"`
}

// NewLLMAgent creates an intent agent from environment configuration.
func NewLLMAgent() *LLMAgent {
	baseURL := os.Getenv("LLM_API_URL")
	if baseURL == "" {
		baseURL = "https://api.groq.com/openai/v1"
		log.Printf("WARN: LLM_API_URL not set, defaulting to %s", baseURL)
	}
	model := os.Getenv("LLM_MODEL")
	if model == "" {
		model = "llama-3.3-70b-versatile"
	}

	settings := gobreaker.Settings{
		Name:        "intent-llm",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Printf("Circuit breaker %s changed from %s to %s", name, from, to)
		},
	}

	return &LLMAgent{
		baseURL: baseURL,
		apiKey:  os.Getenv("LLM_API_KEY"),
		model:   model,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		tracer:  otel.Tracer("intent-agent"),
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

// SetBaseURL sets the base URL for testing purposes
func (a *LLMAgent) SetBaseURL(baseURL string) {
	a.baseURL = baseURL
}

// Interpret runs one interpretation round over the raw text and history.
func (a *LLMAgent) Interpret(ctx context.Context, rawText string, history []models.ClarificationTurn) (*Result, error) {
	ctx, span := a.tracer.Start(ctx, "intent.interpret")
	defer span.End()

	span.SetAttributes(
		attribute.Int("history.rounds", len(history)),
		attribute.String("llm.model", a.model),
	)

	result, err := a.breaker.Execute(func() (interface{}, error) {
		return a.complete(ctx, rawText, history)
	})
	if err != nil {
		span.RecordError(err)
		return nil, &models.InterpretationError{Err: err}
	}

	parsed, err := parseIntent(result.(string))
	if err != nil {
		span.RecordError(err)
		return nil, &models.InterpretationError{Err: err}
	}

	res := &Result{
		Constraints: models.Constraints{
			Category:      strings.ToLower(strings.TrimSpace(parsed.Category)),
			Quantity:      parsed.Quantity,
			BudgetCeiling: parsed.BudgetCeiling,
			Currency:      parsed.Currency,
			RequiredSpecs: parsed.RequiredSpecs,
		},
		NeedsClarification: parsed.NeedsClarification,
		ClarifyingQuestion: strings.TrimSpace(parsed.ClarifyingQuestion),
	}
	if res.Constraints.Currency == "" {
		res.Constraints.Currency = "USD"
	}

	// A model claiming completeness with a mandatory field still missing
	// gets turned into a concrete clarification round.
	if !res.NeedsClarification {
		if res.Constraints.Category == "" {
			res.NeedsClarification = true
			res.ClarifyingQuestion = "What kind of item do you need to purchase?"
		} else if res.Constraints.Quantity <= 0 {
			res.NeedsClarification = true
			res.ClarifyingQuestion = "How many units do you need?"
		}
	}
	if res.NeedsClarification && res.ClarifyingQuestion == "" {
		return nil, &models.InterpretationError{
			Err: fmt.Errorf("clarification requested without a question"),
		}
	}

	span.SetAttributes(attribute.Bool("intent.needs_clarification", res.NeedsClarification))
	return res, nil
}

// complete performs the actual chat-completions request.
func (a *LLMAgent) complete(ctx context.Context, rawText string, history []models.ClarificationTurn) (string, error) {
	var sb strings.Builder
	sb.WriteString("Request: ")
	sb.WriteString(rawText)
	for _, turn := range history {
		sb.WriteString("\nQ: ")
		sb.WriteString(turn.Question)
		sb.WriteString("\nA: ")
		sb.WriteString(turn.Answer)
	}

	reqBody := chatRequest{
		Model: a.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: sb.String()},
		},
		Temperature: 0.1,
		MaxTokens:   512,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/chat/completions", a.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if a.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+a.apiKey)
	}

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, err := io.ReadAll(resp.Body)
		if err != nil {
			return "", fmt.Errorf("llm returned status %d (failed to read body: %w)", resp.StatusCode, err)
		}
		return "", fmt.Errorf("llm returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("llm returned no choices")
	}

	return chatResp.Choices[0].Message.Content, nil
}

// parseIntent extracts the JSON object from the model output. Models
// occasionally wrap the JSON in prose; take the outermost braces.
func parseIntent(content string) (*parsedIntent, error) {
	match := jsonPattern.FindString(content)
	if match == "" {
		return nil, fmt.Errorf("no JSON object in llm output")
	}
	var parsed parsedIntent
	if err := json.Unmarshal([]byte(match), &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse llm output: %w", err)
	}
	return &parsed, nil
}
