package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/devhub/devhub-go/devhub"
	"github.com/devhub/devhub-go/faults"
	"github.com/devhub/devhub-go/vectorstore"
)

// DefaultTopK is the number of hits returned when the caller does not ask
// for a specific number.
const DefaultTopK = 3

// SearchHit is a ranked document. Lower distance means more relevant.
type SearchHit struct {
	Document
	Distance float64 `json:"distance"`
}

// SearchResult is the outcome of one search call.
type SearchResult struct {
	Hits      []SearchHit `json:"hits"`
	ElapsedMS int64       `json:"latency_ms"`
}

// DocSearch is the simulated documentation search backend.
//
// Fault order per call:
//  1. unavailable: fail immediately, nothing is ranked
//  2. slow query: sleep the slow duration, else a normal-range sleep
//  3. rank through the vector index
//  4. low similarity: shift every distance past the threshold, keeping order
type DocSearch struct {
	index   vectorstore.Index
	docs    map[string]Document
	profile faults.DocSearchProfile
	inj     *faults.Injector
	logger  *slog.Logger
}

// NewDocSearch indexes docs and returns the backend.
func NewDocSearch(ctx context.Context, docs []Document, index vectorstore.Index, profile faults.DocSearchProfile, inj *faults.Injector, opts ...Option) (*DocSearch, error) {
	if index == nil {
		index = vectorstore.NewInMemoryIndex(nil)
	}
	if inj == nil {
		inj = faults.NewInjector()
	}

	byID := make(map[string]Document, len(docs))
	records := make([]vectorstore.Record, 0, len(docs))
	for _, doc := range docs {
		if doc.ID == "" {
			return nil, fmt.Errorf("document %q has no id", doc.Title)
		}
		byID[doc.ID] = doc
		records = append(records, vectorstore.Record{
			ID:    doc.ID,
			Title: doc.Title + " " + doc.Category,
			Body:  doc.Content,
		})
	}
	if err := index.Upsert(ctx, records...); err != nil {
		return nil, fmt.Errorf("index documents: %w", err)
	}

	o := buildOptions(opts)
	return &DocSearch{
		index:   index,
		docs:    byID,
		profile: profile,
		inj:     inj,
		logger:  o.logger,
	}, nil
}

// WithProfile returns a view of the backend that shares its dataset but
// applies a different fault profile.
func (d *DocSearch) WithProfile(profile faults.DocSearchProfile) *DocSearch {
	c := *d
	c.profile = profile
	return &c
}

// Profile returns the active fault profile.
func (d *DocSearch) Profile() faults.DocSearchProfile {
	return d.profile
}

// DocumentCount returns the number of loaded documents.
func (d *DocSearch) DocumentCount() int {
	return len(d.docs)
}

// Search returns up to topK documents ordered by ascending distance. A
// non-positive topK means DefaultTopK.
func (d *DocSearch) Search(ctx context.Context, query string, topK int) (*SearchResult, error) {
	if topK <= 0 {
		topK = DefaultTopK
	}
	start := d.inj.Now()

	if d.inj.Fire(d.profile.UnavailableRate) {
		d.logger.DebugContext(ctx, "docsearch refusing connection", "query", query)
		return nil, &devhub.UnavailableError{Backend: BackendDocSearch, Reason: "ECONNREFUSED"}
	}

	if d.inj.Fire(d.profile.SlowRate) {
		d.logger.DebugContext(ctx, "docsearch slow query", "query", query, "delay", d.profile.Slow)
		d.inj.Sleep(d.profile.Slow)
	} else {
		d.inj.Sleep(d.inj.Latency(d.profile.Latency))
	}

	matches, err := d.index.Query(ctx, query, topK)
	if err != nil {
		return nil, fmt.Errorf("docsearch query: %w", err)
	}

	hits := make([]SearchHit, 0, len(matches))
	for _, m := range matches {
		doc, ok := d.docs[m.ID]
		if !ok {
			continue
		}
		hits = append(hits, SearchHit{Document: doc, Distance: m.Distance})
	}

	if d.inj.Fire(d.profile.LowSimilarityRate) {
		d.logger.DebugContext(ctx, "docsearch degrading similarity", "query", query)
		degradeDistances(hits, d.profile.LowSimilarityPenalty, d.profile.LowSimilarityThreshold)
	}

	return &SearchResult{Hits: hits, ElapsedMS: d.inj.ElapsedMS(start)}, nil
}

// minSimilarityMargin is the smallest gap kept between the best degraded
// hit and the threshold.
const minSimilarityMargin = 0.01

// degradeDistances adds the same offset to every hit. The offset is the
// penalty, raised when needed so the best hit lands strictly above
// threshold. Penalties below minSimilarityMargin are raised to it.
func degradeDistances(hits []SearchHit, penalty, threshold float64) {
	if len(hits) == 0 {
		return
	}
	if penalty < minSimilarityMargin {
		penalty = minSimilarityMargin
	}
	best := hits[0].Distance
	for _, h := range hits[1:] {
		if h.Distance < best {
			best = h.Distance
		}
	}

	shift := penalty
	if best+shift <= threshold {
		shift = threshold - best + penalty
	}
	for i := range hits {
		hits[i].Distance += shift
	}
}
