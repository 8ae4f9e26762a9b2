// Package vectorstore implements the C2 vector index: qdrant-backed
// insert/search/delete with payload filters, MMR diversity search and
// per-video guaranteed coverage (spec §4.2).
package vectorstore

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/qdrant/go-client/qdrant"
)

// Payload is the required point payload (spec §4.2).
type Payload struct {
	UserID     string
	VideoID    string
	ChunkIndex int
	Text       string
	StartTS    float64
	EndTS      float64
	Title        string
	ChapterTitle string
	Summary      string
	Keywords     []string
	Speakers     []string
}

// Point is one vector + its payload, keyed by a deterministic id so
// re-indexing is idempotent (spec §4.2, §8 property 3).
type Point struct {
	ID      uint64
	Vector  []float32
	Payload Payload
}

// Result is one scored search hit.
type Result struct {
	ID      uint64
	Score   float32
	Payload Payload
}

// Filter narrows a search/delete to a user and, optionally, a set of
// videos.
type Filter struct {
	UserID   string
	VideoIDs []string
}

// PointID returns the deterministic point id for (videoID, chunkIndex)
// so repeated indexing of the same chunk upserts in place rather than
// duplicating (spec §4.2, §8 property 3).
func PointID(videoID string, chunkIndex int) uint64 {
	h := sha256.New()
	h.Write([]byte(videoID))
	var idxBuf [8]byte
	binary.BigEndian.PutUint64(idxBuf[:], uint64(chunkIndex))
	h.Write(idxBuf[:])
	sum := h.Sum(nil)
	return binary.BigEndian.Uint64(sum[:8])
}

// Index is the C2 vector index, backed by a single qdrant collection
// per embedding dimension/model generation. Reindexing onto a new
// embedding model creates a new collection name rather than mutating
// the old one in place (spec §9 "reindex requires creating a new
// collection and re-embedding all chunks").
type Index struct {
	client     *qdrant.Client
	collection string
}

// New constructs an Index bound to the given qdrant client and
// collection name.
func New(client *qdrant.Client, collection string) *Index {
	return &Index{client: client, collection: collection}
}

// EnsureCollection is idempotent; cosine distance, per spec §4.2.
func (idx *Index) EnsureCollection(ctx context.Context, dim int) error {
	exists, err := idx.client.CollectionExists(ctx, idx.collection)
	if err != nil {
		return fmt.Errorf("check collection: %w", err)
	}
	if exists {
		return nil
	}
	return idx.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: idx.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dim),
			Distance: qdrant.Distance_Cosine,
		}),
	})
}

func payloadToValue(p Payload) map[string]*qdrant.Value {
	m := map[string]*qdrant.Value{
		"user_id":     qdrant.NewValueString(p.UserID),
		"video_id":    qdrant.NewValueString(p.VideoID),
		"chunk_index": qdrant.NewValueInt(int64(p.ChunkIndex)),
		"text":        qdrant.NewValueString(p.Text),
		"start_ts":    qdrant.NewValueDouble(p.StartTS),
		"end_ts":      qdrant.NewValueDouble(p.EndTS),
		"title":         qdrant.NewValueString(p.Title),
		"chapter_title": qdrant.NewValueString(p.ChapterTitle),
		"summary":       qdrant.NewValueString(p.Summary),
	}
	kw := make([]*qdrant.Value, 0, len(p.Keywords))
	for _, k := range p.Keywords {
		kw = append(kw, qdrant.NewValueString(k))
	}
	m["keywords"] = qdrant.NewValueList(kw)

	sp := make([]*qdrant.Value, 0, len(p.Speakers))
	for _, s := range p.Speakers {
		sp = append(sp, qdrant.NewValueString(s))
	}
	m["speakers"] = qdrant.NewValueList(sp)
	return m
}

func valueToPayload(m map[string]*qdrant.Value) Payload {
	getS := func(k string) string {
		if v, ok := m[k]; ok {
			return v.GetStringValue()
		}
		return ""
	}
	var keywords []string
	if v, ok := m["keywords"]; ok && v.GetListValue() != nil {
		for _, item := range v.GetListValue().Values {
			keywords = append(keywords, item.GetStringValue())
		}
	}
	var speakers []string
	if v, ok := m["speakers"]; ok && v.GetListValue() != nil {
		for _, item := range v.GetListValue().Values {
			speakers = append(speakers, item.GetStringValue())
		}
	}
	return Payload{
		UserID:     getS("user_id"),
		VideoID:    getS("video_id"),
		ChunkIndex: int(m["chunk_index"].GetIntegerValue()),
		Text:       getS("text"),
		StartTS:    m["start_ts"].GetDoubleValue(),
		EndTS:      m["end_ts"].GetDoubleValue(),
		Title:        getS("title"),
		ChapterTitle: getS("chapter_title"),
		Summary:      getS("summary"),
		Keywords:     keywords,
		Speakers:     speakers,
	}
}

// Upsert writes points with their deterministic ids (spec §4.2).
func (idx *Index) Upsert(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	qpoints := make([]*qdrant.PointStruct, 0, len(points))
	for _, p := range points {
		qpoints = append(qpoints, &qdrant.PointStruct{
			Id:      qdrant.NewIDNum(p.ID),
			Vectors: qdrant.NewVectors(p.Vector...),
			Payload: payloadToValue(p.Payload),
		})
	}
	_, err := idx.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: idx.collection,
		Points:         qpoints,
	})
	return err
}

func buildFilter(f Filter) *qdrant.Filter {
	must := []*qdrant.Condition{
		qdrant.NewMatch("user_id", f.UserID),
	}
	if len(f.VideoIDs) > 0 {
		must = append(must, qdrant.NewMatchKeywords("video_id", f.VideoIDs...))
	}
	return &qdrant.Filter{Must: must}
}

// Search returns the top k points by cosine score, ordered desc
// (spec §4.2).
func (idx *Index) Search(ctx context.Context, vec []float32, filter Filter, k int) ([]Result, error) {
	limit := uint64(k)
	withPayload := qdrant.NewWithPayload(true)
	resp, err := idx.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: idx.collection,
		Query:          qdrant.NewQuery(vec...),
		Filter:         buildFilter(filter),
		Limit:          &limit,
		WithPayload:    withPayload,
	})
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	return toResults(resp), nil
}

func toResults(points []*qdrant.ScoredPoint) []Result {
	results := make([]Result, 0, len(points))
	for _, p := range points {
		results = append(results, Result{
			ID:      p.Id.GetNum(),
			Score:   p.Score,
			Payload: valueToPayload(p.Payload),
		})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	return results
}

// DeleteBy removes every point matching filter (spec §4.2 group-bulk
// delete, §4.11 video vector cleanup).
func (idx *Index) DeleteBy(ctx context.Context, filter Filter) error {
	_, err := idx.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: idx.collection,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Filter{
				Filter: buildFilter(filter),
			},
		},
	})
	return err
}

// FetchVectors retrieves stored vectors for a set of (video_id,
// chunk_index) pairs by their deterministic ids, for reuse during
// insights clustering instead of re-embedding (spec §4.2).
func (idx *Index) FetchVectors(ctx context.Context, userID string, videoChunkIndices map[string][]int) (map[[2]interface{}][]float32, error) {
	var ids []*qdrant.PointId
	for videoID, indices := range videoChunkIndices {
		for _, ci := range indices {
			ids = append(ids, qdrant.NewIDNum(PointID(videoID, ci)))
		}
	}
	if len(ids) == 0 {
		return map[[2]interface{}][]float32{}, nil
	}
	withVectors := qdrant.NewWithVectors(true)
	withPayload := qdrant.NewWithPayload(true)
	points, err := idx.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: idx.collection,
		Ids:            ids,
		WithVectors:    withVectors,
		WithPayload:    withPayload,
	})
	if err != nil {
		return nil, err
	}
	out := map[[2]interface{}][]float32{}
	for _, p := range points {
		payload := valueToPayload(p.Payload)
		if payload.UserID != userID {
			continue
		}
		key := [2]interface{}{payload.VideoID, payload.ChunkIndex}
		out[key] = p.Vectors.GetVector().GetData()
	}
	return out, nil
}
