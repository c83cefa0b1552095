package rag

import (
	"context"
	"fmt"
	"strings"

	"textbook-rag-platform/internal/logger"
	"textbook-rag-platform/models"
)

// InsufficientContextAnswer is returned whenever retrieval produces nothing
// usable. A missing answer is a normal outcome, not an error.
const InsufficientContextAnswer = "I don't have enough information to answer this question. " +
	"Please try rephrasing or ask about a different topic."

const answerSystemPrompt = "You are a helpful teaching assistant. Answer the question using only " +
	"the provided textbook excerpts. Cite the book and page when relevant. " +
	"If the excerpts do not contain the answer, say so plainly."

// AnswerGenerator is the LLM call the composer forwards to.
type AnswerGenerator interface {
	GenerateAnswer(ctx context.Context, modelName, system, contextBlock, query string, maxTokens int32, temperature float32) (string, error)
}

// Source identifies where an answer's context came from.
type Source struct {
	BookTitle string `json:"book_title"`
	Page      int    `json:"page"`
	Modality  string `json:"modality"`
	ImagePath string `json:"image_path,omitempty"`
}

// Answer is the composed response plus its provenance.
type Answer struct {
	Answer     string   `json:"answer"`
	Sources    []Source `json:"sources"`
	ChunksUsed int      `json:"chunks_used"`
}

// Composer turns retrieved hits into a grounded answer.
type Composer struct {
	retriever   *Retriever
	generator   AnswerGenerator
	model       string
	maxTokens   int32
	temperature float32
}

// NewComposer wires the answer composer.
func NewComposer(retriever *Retriever, generator AnswerGenerator, model string, maxTokens int, temperature float64) *Composer {
	return &Composer{
		retriever:   retriever,
		generator:   generator,
		model:       model,
		maxTokens:   int32(maxTokens),
		temperature: float32(temperature),
	}
}

// Ask retrieves text and image context under the given scope and composes an
// answer. No retrievable context yields the canned insufficient-information
// answer, never an error.
func (c *Composer) Ask(ctx context.Context, query string, opts Options) (*Answer, error) {
	textOpts := opts
	textOpts.Modality = models.ModalityText
	imageOpts := opts
	imageOpts.Modality = models.ModalityImage

	hits := append(
		c.retriever.Retrieve(ctx, query, textOpts),
		c.retriever.Retrieve(ctx, query, imageOpts)...,
	)
	return c.compose(ctx, query, hits)
}

// AskUniversal answers from the whole corpus, ignoring subject and semester
// scoping.
func (c *Composer) AskUniversal(ctx context.Context, query string, topK int) (*Answer, error) {
	hits := c.retriever.RetrieveUniversal(ctx, query, topK)
	return c.compose(ctx, query, hits)
}

func (c *Composer) compose(ctx context.Context, query string, hits []Hit) (*Answer, error) {
	hits = dedupeSources(hits)
	if len(hits) == 0 {
		return &Answer{Answer: InsufficientContextAnswer}, nil
	}

	contextBlock, sources := formatContext(hits)

	text, err := c.generator.GenerateAnswer(ctx, c.model, answerSystemPrompt, contextBlock, query, c.maxTokens, c.temperature)
	if err != nil {
		logger.Error("answer generation failed", "error", err)
		return &Answer{Answer: InsufficientContextAnswer, Sources: sources, ChunksUsed: len(hits)}, nil
	}

	return &Answer{Answer: text, Sources: sources, ChunksUsed: len(hits)}, nil
}

// dedupeSources keeps the best-ranked hit per (book_title, page, modality)
// tuple, preserving rank order.
func dedupeSources(hits []Hit) []Hit {
	seen := make(map[string]bool)
	var out []Hit
	for _, h := range hits {
		key := fmt.Sprintf("%v|%v|%v", h.Metadata["book_title"], h.Metadata["page"], h.Metadata["modality"])
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, h)
	}
	return out
}

// formatContext labels each excerpt with its provenance. Image hits carry no
// text; they contribute a placeholder line so the model knows a figure exists
// at that location.
func formatContext(hits []Hit) (string, []Source) {
	var b strings.Builder
	sources := make([]Source, 0, len(hits))

	for i, h := range hits {
		book := metaString(h.Metadata, "book_title")
		page := metaInt(h.Metadata, "page")
		modality := metaString(h.Metadata, "modality")

		content := h.Content
		if content == "" {
			content = "[image]"
		}
		fmt.Fprintf(&b, "[%d] %s, page %d (%s):\n%s\n\n", i+1, book, page+1, modality, content)

		sources = append(sources, Source{
			BookTitle: book,
			Page:      page,
			Modality:  modality,
			ImagePath: metaString(h.Metadata, "image_path"),
		})
	}
	return b.String(), sources
}

func metaString(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

// metaInt tolerates the numeric types the BSON decoder may hand back.
func metaInt(m map[string]any, key string) int {
	switch v := m[key].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}
