package rag

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"textbook-rag-platform/internal/store"
)

type fakeEmbedder struct {
	vec []float32
	err error
}

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vec
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedText(ctx context.Context, texts []string) ([][]float32, error) {
	return f.Embed(ctx, texts)
}

type fakeSearchStore struct {
	textHits   []store.QueryHit
	imageHits  []store.QueryHit
	textFilter map[string]any
	imgFilter  map[string]any
	err        error
}

func (f *fakeSearchStore) QueryText(ctx context.Context, emb []float32, filter map[string]any, topK int) ([]store.QueryHit, error) {
	f.textFilter = filter
	if f.err != nil {
		return nil, f.err
	}
	if len(f.textHits) > topK {
		return f.textHits[:topK], nil
	}
	return f.textHits, nil
}

func (f *fakeSearchStore) QueryImages(ctx context.Context, emb []float32, filter map[string]any, topK int) ([]store.QueryHit, error) {
	f.imgFilter = filter
	if f.err != nil {
		return nil, f.err
	}
	if len(f.imageHits) > topK {
		return f.imageHits[:topK], nil
	}
	return f.imageHits, nil
}

func newTestRetriever(st *fakeSearchStore) *Retriever {
	emb := &fakeEmbedder{vec: []float32{1, 0}}
	return NewRetriever(st, emb, emb, DefaultAliases(), nil, "text-model", "image-model", 5)
}

func textHit(id string, distance float64) store.QueryHit {
	return store.QueryHit{
		ID:       id,
		Document: "content " + id,
		Metadata: map[string]any{"modality": "text", "book_title": "b", "page": 0},
		Distance: distance,
	}
}

func TestRetrieveBasic(t *testing.T) {
	st := &fakeSearchStore{textHits: []store.QueryHit{textHit("a", 0.1), textHit("b", 0.2)}}
	r := newTestRetriever(st)

	hits := r.Retrieve(context.Background(), "what is gradient descent", Options{TopK: 2})
	if len(hits) != 2 {
		t.Fatalf("got %d hits, want 2", len(hits))
	}
	if hits[0].Content != "content a" || hits[0].Distance != 0.1 {
		t.Errorf("first hit = %+v", hits[0])
	}
}

func TestRetrieveFilterConstruction(t *testing.T) {
	st := &fakeSearchStore{}
	r := newTestRetriever(st)

	r.Retrieve(context.Background(), "q", Options{Subject: "operating systems", Semester: "5", BookTitle: "OSTEP"})

	if st.textFilter["modality"] != "text" {
		t.Errorf("modality missing from filter: %v", st.textFilter)
	}
	if st.textFilter["semester"] != "5" || st.textFilter["book_title"] != "OSTEP" {
		t.Errorf("exact-match conditions missing: %v", st.textFilter)
	}
	clauses, ok := st.textFilter["$or"].([]map[string]any)
	if !ok {
		t.Fatalf("subject must expand into $or: %v", st.textFilter)
	}
	if len(clauses) != 3 {
		t.Errorf("got %d subject variants, want 3: %v", len(clauses), clauses)
	}
}

func TestRetrieveAliasEquivalence(t *testing.T) {
	st := &fakeSearchStore{}
	r := newTestRetriever(st)

	r.Retrieve(context.Background(), "q", Options{Subject: "ML"})
	first := fmt.Sprintf("%v", st.textFilter["$or"])

	r.Retrieve(context.Background(), "q", Options{Subject: "machine learning"})
	second := fmt.Sprintf("%v", st.textFilter["$or"])

	if first != second {
		t.Errorf("equivalent subject spellings built different filters:\n%s\n%s", first, second)
	}
}

func TestRetrieveImageModality(t *testing.T) {
	st := &fakeSearchStore{imageHits: []store.QueryHit{{ID: "i", Metadata: map[string]any{"modality": "image"}, Distance: 0.3}}}
	r := newTestRetriever(st)

	hits := r.Retrieve(context.Background(), "q", Options{Modality: "image"})
	if len(hits) != 1 {
		t.Fatalf("got %d hits, want 1", len(hits))
	}
	if st.imgFilter["modality"] != "image" {
		t.Errorf("image filter = %v", st.imgFilter)
	}
	if st.textFilter != nil {
		t.Error("text collection must not be queried for image modality")
	}
}

func TestRetrieveDegradesToEmpty(t *testing.T) {
	t.Run("store error", func(t *testing.T) {
		st := &fakeSearchStore{err: errors.New("connection refused")}
		if hits := newTestRetriever(st).Retrieve(context.Background(), "q", Options{}); hits != nil {
			t.Errorf("got %v, want nil", hits)
		}
	})

	t.Run("embedding error", func(t *testing.T) {
		st := &fakeSearchStore{textHits: []store.QueryHit{textHit("a", 0.1)}}
		emb := &fakeEmbedder{err: errors.New("quota exceeded")}
		r := NewRetriever(st, emb, emb, DefaultAliases(), nil, "t", "i", 5)
		if hits := r.Retrieve(context.Background(), "q", Options{}); hits != nil {
			t.Errorf("got %v, want nil", hits)
		}
	})
}

func TestRetrieveUniversalMergesAndSorts(t *testing.T) {
	st := &fakeSearchStore{
		textHits: []store.QueryHit{textHit("t1", 0.4), textHit("t2", 0.6)},
		imageHits: []store.QueryHit{
			{ID: "i1", Metadata: map[string]any{"modality": "image"}, Distance: 0.2},
		},
	}
	r := newTestRetriever(st)

	hits := r.RetrieveUniversal(context.Background(), "q", 4)
	if len(hits) != 3 {
		t.Fatalf("got %d hits, want 3", len(hits))
	}
	for i := 1; i < len(hits); i++ {
		if hits[i].Distance < hits[i-1].Distance {
			t.Errorf("merged hits not sorted by distance: %v then %v", hits[i-1].Distance, hits[i].Distance)
		}
	}
	if hits[0].Metadata["modality"] != "image" {
		t.Error("closest hit should rank first regardless of modality")
	}

	// Universal mode carries no subject/semester scoping.
	if _, ok := st.textFilter["$or"]; ok {
		t.Errorf("universal filter must not scope by subject: %v", st.textFilter)
	}
	if _, ok := st.textFilter["semester"]; ok {
		t.Errorf("universal filter must not scope by semester: %v", st.textFilter)
	}
}

func TestRetrieveUniversalZeroImageBudgetSkipsImages(t *testing.T) {
	st := &fakeSearchStore{
		textHits:  []store.QueryHit{textHit("t1", 0.4)},
		imageHits: []store.QueryHit{{ID: "i1", Metadata: map[string]any{"modality": "image"}, Distance: 0.1}},
	}
	r := newTestRetriever(st)

	hits := r.RetrieveUniversal(context.Background(), "q", 1)
	if len(hits) != 1 {
		t.Fatalf("got %d hits, want 1", len(hits))
	}
	if hits[0].Metadata["modality"] != "text" {
		t.Errorf("hit = %+v, want the text hit only", hits[0])
	}
	if st.imgFilter != nil {
		t.Error("image collection must not be queried with a zero budget")
	}
}

func TestRetrieveDefaultTopK(t *testing.T) {
	hits := make([]store.QueryHit, 10)
	for i := range hits {
		hits[i] = textHit(fmt.Sprintf("h%d", i), float64(i)/10)
	}
	st := &fakeSearchStore{textHits: hits}
	r := newTestRetriever(st)

	got := r.Retrieve(context.Background(), "q", Options{})
	if len(got) != 5 {
		t.Errorf("got %d hits, want the default 5", len(got))
	}
}
