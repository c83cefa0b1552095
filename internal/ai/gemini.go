package ai

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"

	genai "github.com/google/generative-ai-go/genai"
)

// Client wraps the Gemini API client with a circuit breaker and a rate
// limiter shared by the embedders and the answer generator.
type Client struct {
	genai   *genai.Client
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

// RateLimits describes per-tier Gemini API request budgets.
type RateLimits struct {
	RPM int // Requests per minute
	RPD int // Requests per day
}

func getRateLimits(tier string) RateLimits {
	switch tier {
	case "tier1":
		return RateLimits{RPM: 1000, RPD: 10000}
	case "tier2":
		return RateLimits{RPM: 2000, RPD: 50000}
	default: // free
		return RateLimits{RPM: 10, RPD: 250}
	}
}

// NewClient creates the shared Gemini client.
func NewClient(ctx context.Context, apiKey, tier string) (*Client, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	limits := getRateLimits(tier)

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "GeminiAPI",
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			slog.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})

	// RPM limit with some buffer
	limiter := rate.NewLimiter(rate.Limit(float64(limits.RPM)*0.9/60.0), max(limits.RPM/10, 1))

	return &Client{
		genai:   client,
		breaker: breaker,
		limiter: limiter,
	}, nil
}

// Close releases the underlying API client.
func (c *Client) Close() error {
	return c.genai.Close()
}

// execute runs one API call through the rate limiter and circuit breaker.
func (c *Client) execute(ctx context.Context, op string, fn func() (any, error)) (any, error) {
	tracer := otel.Tracer("gemini-client")
	ctx, span := tracer.Start(ctx, op)
	defer span.End()

	if err := c.limiter.Wait(ctx); err != nil {
		span.SetAttributes(attribute.Bool("gemini.rate_limited", true))
		return nil, fmt.Errorf("rate limiter wait failed: %w", err)
	}

	result, err := c.breaker.Execute(fn)
	if err != nil {
		span.SetAttributes(attribute.String("gemini.error", err.Error()))
		return nil, err
	}
	return result, nil
}

// batchEmbed sends one batch of contents to an embedding model and returns
// the raw vectors in input order.
func (c *Client) batchEmbed(ctx context.Context, modelName string, contents [][]genai.Part) ([][]float32, error) {
	em := c.genai.EmbeddingModel(modelName)
	batch := em.NewBatch()
	for _, parts := range contents {
		batch.AddContent(parts...)
	}

	result, err := c.execute(ctx, "gemini.batch_embed", func() (any, error) {
		return em.BatchEmbedContents(ctx, batch)
	})
	if err != nil {
		return nil, err
	}

	resp := result.(*genai.BatchEmbedContentsResponse)
	if len(resp.Embeddings) != len(contents) {
		return nil, fmt.Errorf("embedding count mismatch: sent %d, got %d", len(contents), len(resp.Embeddings))
	}

	vectors := make([][]float32, len(resp.Embeddings))
	for i, emb := range resp.Embeddings {
		if emb == nil || len(emb.Values) == 0 {
			return nil, fmt.Errorf("empty embedding at index %d", i)
		}
		vectors[i] = emb.Values
	}
	return vectors, nil
}

// GenerateAnswer asks the answer model one question with a pre-formatted
// context block. Bounded by a fixed wall-clock timeout.
func (c *Client) GenerateAnswer(ctx context.Context, modelName, system, contextBlock, query string, maxTokens int32, temperature float32) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	model := c.genai.GenerativeModel(modelName)
	model.SetTemperature(temperature)
	model.SetMaxOutputTokens(maxTokens)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(system)},
	}

	result, err := c.execute(ctx, "gemini.generate_answer", func() (any, error) {
		return model.GenerateContent(ctx,
			genai.Text("Use this context from textbooks to help answer: "+contextBlock),
			genai.Text(query),
		)
	})
	if err != nil {
		return "", fmt.Errorf("answer generation failed: %w", err)
	}

	resp := result.(*genai.GenerateContentResponse)
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("no answer returned by model")
	}

	var out string
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			out += string(text)
		}
	}
	return out, nil
}
