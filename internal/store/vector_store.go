// Package store persists embedded chunks in MongoDB and answers nearest
// neighbor queries over them.
//
// Two collections hold the data: text_chunks carries the chunk text alongside
// its vector, image_chunks carries vectors with metadata only. When Atlas
// vector search is enabled queries run as $vectorSearch aggregations;
// otherwise the store falls back to an exact in-process cosine scan, which is
// fine for collections up to the configured scan limit.
package store

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"textbook-rag-platform/internal/config"
)

const (
	TextCollection  = "text_chunks"
	ImageCollection = "image_chunks"
)

// Record is one chunk ready for persistence. Document is empty for image
// records. Metadata must be a flat map of scalar values.
type Record struct {
	ID        string
	Embedding []float32
	Document  string
	Metadata  map[string]any
}

// QueryHit is one nearest neighbor result. Distance is cosine distance, so
// lower is closer; results are returned in ascending distance order.
type QueryHit struct {
	ID       string
	Document string
	Metadata map[string]any
	Distance float64
}

type storedRecord struct {
	ID        string         `bson:"_id"`
	Embedding []float32      `bson:"embedding"`
	Document  string         `bson:"document,omitempty"`
	Metadata  map[string]any `bson:"metadata"`
}

// VectorStore is the MongoDB adapter for both chunk collections.
type VectorStore struct {
	text       *mongo.Collection
	images     *mongo.Collection
	useVector  bool
	textIndex  string
	imageIndex string
	scanLimit  int
}

// New wires the store against an open database handle.
func New(db *mongo.Database, cfg *config.Config) *VectorStore {
	return &VectorStore{
		text:       db.Collection(TextCollection),
		images:     db.Collection(ImageCollection),
		useVector:  cfg.VectorSearchEnabled,
		textIndex:  cfg.TextVectorIndex,
		imageIndex: cfg.ImageVectorIndex,
		scanLimit:  cfg.ScanLimit,
	}
}

// UpsertText writes text records keyed by their chunk ID. Re-ingesting the
// same source overwrites in place instead of duplicating.
func (s *VectorStore) UpsertText(ctx context.Context, records []Record) error {
	return s.upsert(ctx, s.text, records, true)
}

// UpsertImages writes image records keyed by their chunk ID.
func (s *VectorStore) UpsertImages(ctx context.Context, records []Record) error {
	return s.upsert(ctx, s.images, records, false)
}

func (s *VectorStore) upsert(ctx context.Context, coll *mongo.Collection, records []Record, withDocument bool) error {
	if len(records) == 0 {
		return nil
	}

	operations := make([]mongo.WriteModel, 0, len(records))
	for _, r := range records {
		if r.ID == "" {
			return fmt.Errorf("record with empty ID in %s batch", coll.Name())
		}
		doc := bson.M{
			"embedding": r.Embedding,
			"metadata":  r.Metadata,
		}
		if withDocument {
			doc["document"] = r.Document
		}
		operations = append(operations, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"_id": r.ID}).
			SetUpdate(bson.M{"$set": doc}).
			SetUpsert(true))
	}

	if _, err := coll.BulkWrite(ctx, operations); err != nil {
		return fmt.Errorf("bulk upsert into %s failed: %w", coll.Name(), err)
	}
	return nil
}

// QueryText returns the topK nearest text chunks matching the filter.
func (s *VectorStore) QueryText(ctx context.Context, embedding []float32, filter map[string]any, topK int) ([]QueryHit, error) {
	return s.query(ctx, s.text, s.textIndex, embedding, filter, topK)
}

// QueryImages returns the topK nearest image records matching the filter.
func (s *VectorStore) QueryImages(ctx context.Context, embedding []float32, filter map[string]any, topK int) ([]QueryHit, error) {
	return s.query(ctx, s.images, s.imageIndex, embedding, filter, topK)
}

func (s *VectorStore) query(ctx context.Context, coll *mongo.Collection, index string, embedding []float32, filter map[string]any, topK int) ([]QueryHit, error) {
	if topK <= 0 {
		return nil, nil
	}
	mongoFilter := NormalizeFilter(filter)

	if s.useVector {
		return s.vectorSearch(ctx, coll, index, embedding, mongoFilter, topK)
	}
	return s.scanSearch(ctx, coll, embedding, mongoFilter, topK)
}

func (s *VectorStore) vectorSearch(ctx context.Context, coll *mongo.Collection, index string, embedding []float32, filter bson.M, topK int) ([]QueryHit, error) {
	search := bson.M{
		"index":         index,
		"path":          "embedding",
		"queryVector":   embedding,
		"numCandidates": topK * 10,
		"limit":         topK,
	}
	if len(filter) > 0 {
		search["filter"] = filter
	}

	pipeline := mongo.Pipeline{
		{{Key: "$vectorSearch", Value: search}},
		{{Key: "$project", Value: bson.M{
			"document": 1,
			"metadata": 1,
			"score":    bson.M{"$meta": "vectorSearchScore"},
		}}},
	}

	cursor, err := coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("vector search on %s failed: %w", coll.Name(), err)
	}
	defer cursor.Close(ctx)

	var hits []QueryHit
	for cursor.Next(ctx) {
		var doc struct {
			ID       string         `bson:"_id"`
			Document string         `bson:"document,omitempty"`
			Metadata map[string]any `bson:"metadata"`
			Score    float64        `bson:"score"`
		}
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode search result: %w", err)
		}
		hits = append(hits, QueryHit{
			ID:       doc.ID,
			Document: doc.Document,
			Metadata: doc.Metadata,
			Distance: atlasCosineDistance(doc.Score),
		})
	}
	return hits, cursor.Err()
}

func (s *VectorStore) scanSearch(ctx context.Context, coll *mongo.Collection, embedding []float32, filter bson.M, topK int) ([]QueryHit, error) {
	opts := options.Find().SetLimit(int64(s.scanLimit))
	cursor, err := coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("scan query on %s failed: %w", coll.Name(), err)
	}
	defer cursor.Close(ctx)

	var hits []QueryHit
	for cursor.Next(ctx) {
		var rec storedRecord
		if err := cursor.Decode(&rec); err != nil {
			return nil, fmt.Errorf("failed to decode record: %w", err)
		}
		hits = append(hits, QueryHit{
			ID:       rec.ID,
			Document: rec.Document,
			Metadata: rec.Metadata,
			Distance: CosineDistance(embedding, rec.Embedding),
		})
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

// DeleteText removes text records matching the filter and reports the count.
func (s *VectorStore) DeleteText(ctx context.Context, filter map[string]any) (int64, error) {
	return s.delete(ctx, s.text, filter)
}

// DeleteImages removes image records matching the filter and reports the count.
func (s *VectorStore) DeleteImages(ctx context.Context, filter map[string]any) (int64, error) {
	return s.delete(ctx, s.images, filter)
}

func (s *VectorStore) delete(ctx context.Context, coll *mongo.Collection, filter map[string]any) (int64, error) {
	mongoFilter := NormalizeFilter(filter)
	if len(mongoFilter) == 0 {
		return 0, fmt.Errorf("refusing to delete %s without a filter", coll.Name())
	}
	result, err := coll.DeleteMany(ctx, mongoFilter)
	if err != nil {
		return 0, fmt.Errorf("delete from %s failed: %w", coll.Name(), err)
	}
	return result.DeletedCount, nil
}

// ListText returns stored text records matching the filter, without scoring.
func (s *VectorStore) ListText(ctx context.Context, filter map[string]any, limit int) ([]QueryHit, error) {
	return s.list(ctx, s.text, filter, limit)
}

// ListImages returns stored image records matching the filter, without scoring.
func (s *VectorStore) ListImages(ctx context.Context, filter map[string]any, limit int) ([]QueryHit, error) {
	return s.list(ctx, s.images, filter, limit)
}

func (s *VectorStore) list(ctx context.Context, coll *mongo.Collection, filter map[string]any, limit int) ([]QueryHit, error) {
	opts := options.Find().SetProjection(bson.M{"embedding": 0})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := coll.Find(ctx, NormalizeFilter(filter), opts)
	if err != nil {
		return nil, fmt.Errorf("list from %s failed: %w", coll.Name(), err)
	}
	defer cursor.Close(ctx)

	var hits []QueryHit
	for cursor.Next(ctx) {
		var rec storedRecord
		if err := cursor.Decode(&rec); err != nil {
			return nil, fmt.Errorf("failed to decode record: %w", err)
		}
		hits = append(hits, QueryHit{ID: rec.ID, Document: rec.Document, Metadata: rec.Metadata})
	}
	return hits, cursor.Err()
}

// Semesters returns the distinct semesters present in the text collection.
func (s *VectorStore) Semesters(ctx context.Context) ([]string, error) {
	return s.distinct(ctx, "metadata.semester", bson.M{})
}

// Subjects returns the distinct subjects stored for a semester, or across all
// semesters when semester is empty.
func (s *VectorStore) Subjects(ctx context.Context, semester string) ([]string, error) {
	filter := bson.M{}
	if semester != "" {
		filter["metadata.semester"] = semester
	}
	return s.distinct(ctx, "metadata.subject", filter)
}

func (s *VectorStore) distinct(ctx context.Context, field string, filter bson.M) ([]string, error) {
	values, err := s.text.Distinct(ctx, field, filter)
	if err != nil {
		return nil, fmt.Errorf("distinct %s failed: %w", field, err)
	}

	out := make([]string, 0, len(values))
	for _, v := range values {
		if str, ok := v.(string); ok {
			out = append(out, str)
		}
	}
	sort.Strings(out)
	return out, nil
}

// NormalizeFilter converts a caller-facing filter into the stored document
// shape. Bare metadata keys get the "metadata." prefix; filters already rooted
// at an operator pass through with only key qualification; plain maps with
// more than one condition are wrapped in $and so each condition applies
// independently.
func NormalizeFilter(filter map[string]any) bson.M {
	if len(filter) == 0 {
		return bson.M{}
	}

	qualified := qualifyKeys(filter)

	if hasOperatorRoot(qualified) {
		return qualified
	}
	if len(qualified) == 1 {
		return qualified
	}

	conditions := make([]bson.M, 0, len(qualified))
	for _, key := range sortedKeys(qualified) {
		conditions = append(conditions, bson.M{key: qualified[key]})
	}
	return bson.M{"$and": conditions}
}

func qualifyKeys(filter map[string]any) bson.M {
	out := bson.M{}
	for key, value := range filter {
		out[qualifyKey(key)] = qualifyValue(value)
	}
	return out
}

func qualifyKey(key string) string {
	if strings.HasPrefix(key, "$") || key == "_id" || strings.HasPrefix(key, "metadata.") {
		return key
	}
	return "metadata." + key
}

func qualifyValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		return qualifyKeys(v)
	case bson.M:
		return qualifyKeys(v)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = qualifyValue(item)
		}
		return out
	case []map[string]any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = qualifyKeys(item)
		}
		return out
	case []bson.M:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = qualifyKeys(item)
		}
		return out
	default:
		return value
	}
}

func hasOperatorRoot(filter bson.M) bool {
	for key := range filter {
		if strings.HasPrefix(key, "$") {
			return true
		}
	}
	return false
}

func sortedKeys(m bson.M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// atlasCosineDistance converts an Atlas vector search score back to cosine
// distance. Atlas normalizes cosine similarity to (1+cos)/2, so the raw
// 1-score is half the true distance; converting keeps Distance on the same
// scale as the scan fallback.
func atlasCosineDistance(score float64) float64 {
	return 2 * (1 - score)
}

// CosineDistance is 1 minus the cosine similarity of a and b. Mismatched
// lengths or zero vectors yield the maximum distance of 1.
func CosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 1
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(normA)*math.Sqrt(normB))
}
