package rag

import (
	"context"
	"sort"

	"textbook-rag-platform/internal/logger"
	"textbook-rag-platform/internal/store"
	"textbook-rag-platform/models"
)

// Hit is one retrieved record with its cosine distance. Content is empty for
// image hits; their provenance lives in the metadata.
type Hit struct {
	Content  string
	Metadata map[string]any
	Distance float64
}

// Options scope a retrieval. Zero values mean unconstrained; Modality
// defaults to text.
type Options struct {
	TopK      int
	Subject   string
	Semester  string
	BookTitle string
	Modality  string
}

// TextQueryEmbedder embeds query text in the text-chunk vector space.
type TextQueryEmbedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// ImageQueryEmbedder embeds query text in the image vector space, so a text
// query can rank image records.
type ImageQueryEmbedder interface {
	EmbedText(ctx context.Context, texts []string) ([][]float32, error)
}

// SearchStore is the slice of the vector store retrieval depends on.
type SearchStore interface {
	QueryText(ctx context.Context, embedding []float32, filter map[string]any, topK int) ([]store.QueryHit, error)
	QueryImages(ctx context.Context, embedding []float32, filter map[string]any, topK int) ([]store.QueryHit, error)
}

// Retriever answers filtered nearest neighbor queries. It never returns an
// error: any failure degrades to an empty result so the composer can fall
// back to its canned answer instead of surfacing an exception to a user.
type Retriever struct {
	store      SearchStore
	textEmb    TextQueryEmbedder
	imgEmb     ImageQueryEmbedder
	aliases    AliasTable
	cache      *QueryCache
	textModel  string
	imageModel string
	defaultK   int
}

// NewRetriever wires a retriever. cache may be nil.
func NewRetriever(st SearchStore, te TextQueryEmbedder, ie ImageQueryEmbedder, aliases AliasTable, cache *QueryCache, textModel, imageModel string, defaultTopK int) *Retriever {
	return &Retriever{
		store:      st,
		textEmb:    te,
		imgEmb:     ie,
		aliases:    aliases,
		cache:      cache,
		textModel:  textModel,
		imageModel: imageModel,
		defaultK:   defaultTopK,
	}
}

// Retrieve returns up to TopK hits ordered by ascending distance.
func (r *Retriever) Retrieve(ctx context.Context, query string, opts Options) []Hit {
	modality := opts.Modality
	if modality == "" {
		modality = models.ModalityText
	}
	topK := opts.TopK
	if topK <= 0 {
		topK = r.defaultK
	}

	embedding := r.embedQuery(ctx, query, modality)
	if embedding == nil {
		return nil
	}

	filter := r.buildFilter(opts, modality)

	var hits []store.QueryHit
	var err error
	if modality == models.ModalityImage {
		hits, err = r.store.QueryImages(ctx, embedding, filter, topK)
	} else {
		hits, err = r.store.QueryText(ctx, embedding, filter, topK)
	}
	if err != nil {
		logger.Error("retrieval query failed", "modality", modality, "error", err)
		return nil
	}

	return toHits(hits)
}

// RetrieveUniversal searches the whole corpus with no subject or semester
// scoping, splitting the budget evenly between text and image records and
// re-sorting the merged results by distance.
func (r *Retriever) RetrieveUniversal(ctx context.Context, query string, topK int) []Hit {
	if topK <= 0 {
		topK = r.defaultK
	}
	imageK := topK / 2
	textK := topK - imageK

	// A zero budget skips the modality entirely; Retrieve would read
	// TopK=0 as "use the default".
	var merged []Hit
	if textK > 0 {
		merged = append(merged, r.Retrieve(ctx, query, Options{TopK: textK, Modality: models.ModalityText})...)
	}
	if imageK > 0 {
		merged = append(merged, r.Retrieve(ctx, query, Options{TopK: imageK, Modality: models.ModalityImage})...)
	}

	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Distance < merged[j].Distance })
	if len(merged) > topK {
		merged = merged[:topK]
	}
	return merged
}

// embedQuery returns a query embedding in the space matching the modality,
// consulting the cache first.
func (r *Retriever) embedQuery(ctx context.Context, query, modality string) []float32 {
	model := r.textModel
	if modality == models.ModalityImage {
		model = r.imageModel
	}

	if cached := r.cache.Get(ctx, model, query); cached != nil {
		return cached
	}

	var vectors [][]float32
	var err error
	if modality == models.ModalityImage {
		vectors, err = r.imgEmb.EmbedText(ctx, []string{query})
	} else {
		vectors, err = r.textEmb.Embed(ctx, []string{query})
	}
	if err != nil || len(vectors) == 0 {
		logger.Error("query embedding failed", "modality", modality, "error", err)
		return nil
	}

	r.cache.Set(ctx, model, query, vectors[0])
	return vectors[0]
}

// buildFilter assembles the metadata filter. Subjects expand through the
// alias table into an $or; semester and book title are exact matches. The
// store wraps multi-condition maps in $and itself.
func (r *Retriever) buildFilter(opts Options, modality string) map[string]any {
	filter := map[string]any{"modality": modality}

	if opts.Subject != "" {
		variants := r.aliases.Expand(opts.Subject)
		if len(variants) == 1 {
			filter["subject"] = variants[0]
		} else {
			clauses := make([]map[string]any, len(variants))
			for i, v := range variants {
				clauses[i] = map[string]any{"subject": v}
			}
			filter["$or"] = clauses
		}
	}
	if opts.Semester != "" {
		filter["semester"] = opts.Semester
	}
	if opts.BookTitle != "" {
		filter["book_title"] = opts.BookTitle
	}
	return filter
}

func toHits(raw []store.QueryHit) []Hit {
	hits := make([]Hit, 0, len(raw))
	for _, h := range raw {
		hits = append(hits, Hit{Content: h.Document, Metadata: h.Metadata, Distance: h.Distance})
	}
	return hits
}
