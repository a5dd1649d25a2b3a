package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/duetlabs/duet/entity"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// InMemoryStore is the always-live retrieval index for one host. It grows
// monotonically and is never mutated in place; durability is the sqlite
// store's concern.
type InMemoryStore struct {
	mu        sync.RWMutex
	exchanges []*entity.Exchange
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Append(_ context.Context, ex *entity.Exchange) error {
	if ex == nil {
		return errors.New("exchange is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exchanges = append(s.exchanges, ex)
	return nil
}

func (s *InMemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.exchanges)
}

// Recent returns the last n exchanges in chronological order.
func (s *InMemoryStore) Recent(n int) []*entity.Exchange {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n <= 0 || len(s.exchanges) == 0 {
		return nil
	}
	start := len(s.exchanges) - n
	if start < 0 {
		start = 0
	}
	out := make([]*entity.Exchange, len(s.exchanges)-start)
	copy(out, s.exchanges[start:])
	return out
}

func (s *InMemoryStore) All() []*entity.Exchange {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*entity.Exchange, len(s.exchanges))
	copy(out, s.exchanges)
	return out
}

// Search scores every embedded exchange against the query vector with one
// matrix-vector product and returns up to limit results by descending
// similarity. Exchanges without an embedding, with a mismatched dimension, or
// listed in exclude are skipped.
func (s *InMemoryStore) Search(_ context.Context, queryEmbedding []float32, limit int, exclude map[uint64]struct{}) ([]Scored, error) {
	if len(queryEmbedding) == 0 {
		return nil, errors.New("query embedding is empty")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var candidates []*entity.Exchange
	for _, ex := range s.exchanges {
		if len(ex.Embedding) != len(queryEmbedding) {
			continue
		}
		if _, skip := exclude[ex.Seq]; skip {
			continue
		}
		candidates = append(candidates, ex)
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	dim := len(queryEmbedding)
	queryVec := make([]float64, dim)
	for i, v := range queryEmbedding {
		queryVec[i] = float64(v)
	}

	data := make([]float64, len(candidates)*dim)
	for i, ex := range candidates {
		for j, v := range ex.Embedding {
			data[i*dim+j] = float64(v)
		}
	}

	queryVector := mat.NewVecDense(dim, queryVec)
	candidateMatrix := mat.NewDense(len(candidates), dim, data)

	var resultVec mat.VecDense
	resultVec.MulVec(candidateMatrix, queryVector)

	// Embeddings are normalized, so the inner product lies in [-1, 1];
	// map to [0, 1].
	results := make([]Scored, 0, len(candidates))
	for i, ex := range candidates {
		results = append(results, Scored{
			Exchange: ex,
			Score:    (resultVec.AtVec(i) + 1.0) * 0.5,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}
