package exemplar

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"strconv"
	"strings"

	"github.com/philippgille/chromem-go"
)

const collectionName = "exemplars"

// Store indexes an exemplar set by the embedding of each example question.
// It is built once at startup and is safe for concurrent reads.
type Store struct {
	exemplars  []Exemplar
	collection *chromem.Collection
}

// NewStore embeds every exemplar question into an in-memory collection.
func NewStore(ctx context.Context, exemplars []Exemplar, embed chromem.EmbeddingFunc) (*Store, error) {
	if len(exemplars) == 0 {
		return nil, fmt.Errorf("exemplar set is empty")
	}
	if embed == nil {
		return nil, fmt.Errorf("embedding function is required")
	}

	db := chromem.NewDB()
	collection, err := db.CreateCollection(collectionName, nil, embed)
	if err != nil {
		return nil, fmt.Errorf("create exemplar collection: %w", err)
	}

	docs := make([]chromem.Document, len(exemplars))
	for i, ex := range exemplars {
		docs[i] = chromem.Document{
			ID:      strconv.Itoa(i),
			Content: ex.Input,
		}
	}
	if err := collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return nil, fmt.Errorf("embed exemplars: %w", err)
	}

	owned := make([]Exemplar, len(exemplars))
	copy(owned, exemplars)
	return &Store{exemplars: owned, collection: collection}, nil
}

func (s *Store) Len() int { return len(s.exemplars) }

// All returns the exemplars in load order.
func (s *Store) All() []Exemplar {
	out := make([]Exemplar, len(s.exemplars))
	copy(out, s.exemplars)
	return out
}

// SelectTopK returns the min(k, Len()) exemplars closest to question, most
// similar first. Equal scores keep load order. k <= 0 yields none.
func (s *Store) SelectTopK(ctx context.Context, question string, k int) ([]Exemplar, error) {
	if k > len(s.exemplars) {
		k = len(s.exemplars)
	}
	if k <= 0 {
		return nil, nil
	}
	if strings.TrimSpace(question) == "" {
		return s.All()[:k], nil
	}

	results, err := s.collection.Query(ctx, question, s.collection.Count(), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query exemplars: %w", err)
	}

	type ranked struct {
		index int
		score float32
	}
	ordered := make([]ranked, 0, len(results))
	for _, r := range results {
		idx, err := strconv.Atoi(r.ID)
		if err != nil || idx < 0 || idx >= len(s.exemplars) {
			return nil, fmt.Errorf("query exemplars: unexpected document id %q", r.ID)
		}
		ordered = append(ordered, ranked{index: idx, score: r.Similarity})
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].score != ordered[j].score {
			return ordered[i].score > ordered[j].score
		}
		return ordered[i].index < ordered[j].index
	})

	selected := make([]Exemplar, 0, k)
	for _, r := range ordered[:min(k, len(ordered))] {
		selected = append(selected, s.exemplars[r.index])
	}
	return selected, nil
}
