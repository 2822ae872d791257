package vectorstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"gonum.org/v1/gonum/floats"
)

// Record is a document to index. Title and Body are embedded separately and
// blended by the index's title weight.
type Record struct {
	ID    string
	Title string
	Body  string
}

// DefaultTitleWeight is the share of a record's vector taken from its title.
const DefaultTitleWeight = 0.6

// Match is one ranked search result. Lower distance means more relevant.
type Match struct {
	ID       string
	Distance float64
}

// Index is the vector-search capability.
type Index interface {
	// Upsert embeds and stores records, replacing any with the same ID.
	Upsert(ctx context.Context, records ...Record) error

	// Query returns up to topK matches ordered by ascending distance.
	Query(ctx context.Context, text string, topK int) ([]Match, error)

	// Len returns the number of indexed records.
	Len() int
}

// InMemoryIndex is a simple in-memory index using cosine distance.
//
// Good for testing and small datasets such as the DevHub fixtures.
type InMemoryIndex struct {
	mu          sync.RWMutex
	embeddings  EmbeddingProvider
	titleWeight float64
	entries     []vectorEntry
	byID        map[string]int
}

type vectorEntry struct {
	id        string
	embedding []float64
}

// IndexOption configures an InMemoryIndex.
type IndexOption func(*InMemoryIndex)

// WithTitleWeight sets the share of each record vector taken from its title.
// Values outside [0,1] are ignored.
func WithTitleWeight(w float64) IndexOption {
	return func(s *InMemoryIndex) {
		if w >= 0 && w <= 1 {
			s.titleWeight = w
		}
	}
}

// NewInMemoryIndex creates an index backed by the given embedding provider.
// A nil provider selects the hashing embedder.
func NewInMemoryIndex(embeddings EmbeddingProvider, opts ...IndexOption) *InMemoryIndex {
	if embeddings == nil {
		embeddings = NewHashingEmbedder(DefaultHashingDimension)
	}
	s := &InMemoryIndex{
		embeddings:  embeddings,
		titleWeight: DefaultTitleWeight,
		byID:        make(map[string]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Upsert embeds and stores records.
func (s *InMemoryIndex) Upsert(ctx context.Context, records ...Record) error {
	embedded := make([]vectorEntry, 0, len(records))
	for _, r := range records {
		if r.ID == "" {
			return fmt.Errorf("record id cannot be empty")
		}
		vec, err := s.embedRecord(ctx, r)
		if err != nil {
			return fmt.Errorf("failed to embed record %s: %w", r.ID, err)
		}
		embedded = append(embedded, vectorEntry{id: r.ID, embedding: vec})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range embedded {
		if idx, exists := s.byID[e.id]; exists {
			s.entries[idx] = e
			continue
		}
		s.byID[e.id] = len(s.entries)
		s.entries = append(s.entries, e)
	}
	return nil
}

// embedRecord blends the unit title and body vectors and renormalises.
func (s *InMemoryIndex) embedRecord(ctx context.Context, r Record) ([]float64, error) {
	body, err := s.embeddings.Embed(ctx, r.Body)
	if err != nil {
		return nil, err
	}
	if r.Title == "" || s.titleWeight == 0 {
		return body, nil
	}
	title, err := s.embeddings.Embed(ctx, r.Title)
	if err != nil {
		return nil, err
	}
	if len(title) != len(body) {
		return nil, fmt.Errorf("embedding dimensions differ: title %d, body %d", len(title), len(body))
	}

	unit(title)
	unit(body)
	vec := make([]float64, len(body))
	floats.AddScaledTo(vec, vec, s.titleWeight, title)
	floats.AddScaled(vec, 1-s.titleWeight, body)
	unit(vec)
	return vec, nil
}

func unit(v []float64) {
	if norm := floats.Norm(v, 2); norm > 0 {
		floats.Scale(1/norm, v)
	}
}

// Query ranks every record against text by cosine distance. Ties are broken
// by record ID so rankings are deterministic.
func (s *InMemoryIndex) Query(ctx context.Context, text string, topK int) ([]Match, error) {
	if topK <= 0 {
		return []Match{}, nil
	}

	queryVec, err := s.embeddings.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to generate query embedding: %w", err)
	}

	s.mu.RLock()
	matches := make([]Match, 0, len(s.entries))
	for _, e := range s.entries {
		matches = append(matches, Match{ID: e.id, Distance: cosineDistance(queryVec, e.embedding)})
	}
	s.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Distance != matches[j].Distance {
			return matches[i].Distance < matches[j].Distance
		}
		return matches[i].ID < matches[j].ID
	})

	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

// Len returns the number of indexed records.
func (s *InMemoryIndex) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// cosineDistance returns 1 - cosine similarity, clamped at zero.
func cosineDistance(a, b []float64) float64 {
	if len(a) != len(b) {
		return 1
	}
	normA := floats.Norm(a, 2)
	normB := floats.Norm(b, 2)
	if normA == 0 || normB == 0 {
		return 1
	}
	d := 1 - floats.Dot(a, b)/(normA*normB)
	if d < 0 {
		return 0
	}
	return d
}
