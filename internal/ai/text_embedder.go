package ai

import (
	"context"

	genai "github.com/google/generative-ai-go/genai"
)

// TextEmbedder embeds text chunks and text queries with the configured text
// embedding model. Output vectors are unit-normalized and positionally
// aligned with the input.
type TextEmbedder struct {
	client *Client
	model  string
}

// NewTextEmbedder creates a text embedding adapter.
func NewTextEmbedder(client *Client, model string) *TextEmbedder {
	return &TextEmbedder{client: client, model: model}
}

// Embed returns one unit-normalized vector per input, in input order.
func (e *TextEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	contents := make([][]genai.Part, len(texts))
	for i, t := range texts {
		contents[i] = []genai.Part{genai.Text(t)}
	}

	vectors, err := e.client.batchEmbed(ctx, e.model, contents)
	if err != nil {
		return nil, err
	}
	return normalizeAll(vectors), nil
}
