package ai

import (
	"context"
	"log/slog"

	genai "github.com/google/generative-ai-go/genai"

	"textbook-rag-platform/utils"
)

// ImageEmbedder embeds raw image bytes with a multimodal embedding model.
// The same model embeds query text, so a text query can retrieve image
// records from the shared vector space.
type ImageEmbedder struct {
	client *Client
	model  string
	minDim int
}

// NewImageEmbedder creates an image embedding adapter. Images with either
// dimension below minDim are skipped.
func NewImageEmbedder(client *Client, model string, minDim int) *ImageEmbedder {
	return &ImageEmbedder{client: client, model: model, minDim: minDim}
}

// prepareImages decodes and normalizes each input, dropping inputs that fail
// to decode or fall below the minimum dimensions. The second return value
// holds the original index of every surviving image; callers must re-index
// any parallel metadata slices with it.
func prepareImages(images [][]byte, minDim int) ([][]byte, []int) {
	var valid [][]byte
	var indices []int
	for i, data := range images {
		normalized, err := utils.NormalizeImage(data, minDim)
		if err != nil {
			slog.Warn("skipping image", "index", i, "error", err)
			continue
		}
		valid = append(valid, normalized)
		indices = append(indices, i)
	}
	return valid, indices
}

// EmbedImages returns unit-normalized vectors for the decodable inputs plus
// the original indices of those inputs. A whole-batch model failure is
// returned as an error with no vectors; the orchestrator decides whether to
// skip or abort.
func (e *ImageEmbedder) EmbedImages(ctx context.Context, images [][]byte) ([][]float32, []int, error) {
	if len(images) == 0 {
		return nil, nil, nil
	}

	valid, indices := prepareImages(images, e.minDim)
	if len(valid) == 0 {
		return nil, nil, nil
	}

	contents := make([][]genai.Part, len(valid))
	for i, data := range valid {
		contents[i] = []genai.Part{genai.ImageData("jpeg", data)}
	}

	vectors, err := e.client.batchEmbed(ctx, e.model, contents)
	if err != nil {
		return nil, nil, err
	}
	return normalizeAll(vectors), indices, nil
}

// EmbedText embeds query text in the image model's vector space.
func (e *ImageEmbedder) EmbedText(ctx context.Context, texts []string) ([][]float32, error) {
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
