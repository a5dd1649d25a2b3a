package memory

import (
	"context"
	"log/slog"
	"math"

	"github.com/duetlabs/duet/config"
	"github.com/duetlabs/duet/entity"
	"github.com/duetlabs/duet/errors"
)

type (
	// Embedder turns text into fixed-length vectors. engine.Engine satisfies
	// it; tests plug deterministic ones.
	Embedder interface {
		Embed(ctx context.Context, texts ...string) ([][]float32, error)
	}

	// Service is one host's semantic conversation memory: an always-live
	// in-memory index plus an optional durable sqlite tier.
	Service struct {
		hostID   string
		logger   *slog.Logger
		config   *config.MemoryConfig
		embedder Embedder
		index    *InMemoryStore
		durable  *SqliteStore
	}
)

func NewService(hostID string, logger *slog.Logger, conf *config.MemoryConfig, embedder Embedder, durable *SqliteStore) *Service {
	return &Service{
		hostID:   hostID,
		logger:   logger,
		config:   conf,
		embedder: embedder,
		index:    NewInMemoryStore(),
		durable:  durable,
	}
}

// Load warms the in-memory index from the durable tier when resuming.
func (s *Service) Load(ctx context.Context) (int, error) {
	if s.durable == nil {
		return 0, nil
	}
	exchanges, err := s.durable.LoadAll(ctx)
	if err != nil {
		return 0, errors.Wrapf(errors.ErrPersistence, "load: %v", err)
	}
	for _, ex := range exchanges {
		if err := s.index.Append(ctx, ex); err != nil {
			return 0, err
		}
	}
	return len(exchanges), nil
}

// Store appends the exchange. The in-memory index accepts it unconditionally
// so retrieval stays consistent; only an unrecoverable durable write returns
// an error, wrapped as ErrPersistence for the caller to log and continue.
func (s *Service) Store(ctx context.Context, ex *entity.Exchange, researchMeta *entity.ResearchMeta) error {
	if ex == nil {
		return errors.New("exchange is nil")
	}

	if len(ex.Embedding) == 0 && s.embedder != nil {
		embeddings, err := s.embedder.Embed(ctx, ex.Text)
		if err != nil {
			s.logger.Warn("embedding unavailable, storing exchange without vector",
				"host", s.hostID, "seq", ex.Seq, "error", err)
		} else if len(embeddings) == 1 {
			ex.Embedding = embeddings[0]
		}
	}

	if err := s.index.Append(ctx, ex); err != nil {
		return err
	}

	if s.durable != nil {
		if err := s.durable.Append(ctx, ex, researchMeta); err != nil {
			return errors.Wrapf(errors.ErrPersistence, "host %s seq %d: %v", s.hostID, ex.Seq, err)
		}
	}
	return nil
}

// Retrieve returns up to k exchanges relevant to the query, by descending
// similarity. When the embedding backend is unavailable it degrades to
// keyword-overlap ranking; that is not an error. Zero results is a valid
// outcome.
func (s *Service) Retrieve(ctx context.Context, query string, k int, opts ...RetrieveOption) ([]Scored, error) {
	if k <= 0 {
		return nil, nil
	}
	o := applyRetrieveOptions(opts)

	if s.index.Count() == 0 {
		return s.retrieveDurable(ctx, query, k, o.excludeSeqs)
	}

	if s.embedder != nil {
		embeddings, err := s.embedder.Embed(ctx, query)
		if err == nil && len(embeddings) == 1 {
			results, err := s.index.Search(ctx, embeddings[0], k, o.excludeSeqs)
			if err == nil {
				return results, nil
			}
			s.logger.Warn("vector search failed, falling back to keyword ranking",
				"host", s.hostID, "error", err)
		} else if err != nil && !errors.Is(err, errors.ErrBackendUnavailable) {
			return nil, err
		}
	}

	return keywordRank(s.index.All(), query, k, o.excludeSeqs), nil
}

// retrieveDurable queries the sqlite-vec tier directly. It serves retrievals
// that arrive before Load has warmed the in-memory index; an empty result is
// the correct answer for a truly empty store.
func (s *Service) retrieveDurable(ctx context.Context, query string, k int, exclude map[uint64]struct{}) ([]Scored, error) {
	if s.durable == nil || s.embedder == nil {
		return nil, nil
	}
	embeddings, err := s.embedder.Embed(ctx, query)
	if err != nil || len(embeddings) != 1 {
		return nil, nil
	}
	results, err := s.durable.Search(ctx, embeddings[0], k)
	if err != nil {
		s.logger.Warn("durable vector search failed", "host", s.hostID, "error", err)
		return nil, nil
	}
	filtered := results[:0]
	for _, r := range results {
		if _, skip := exclude[r.Exchange.Seq]; skip {
			continue
		}
		filtered = append(filtered, r)
	}
	return filtered, nil
}

// ResearchMeta returns the typed research metadata persisted with an
// exchange, nil when the durable tier is disabled.
func (s *Service) ResearchMeta(ctx context.Context, exchangeID string) (*entity.ResearchMeta, error) {
	if s.durable == nil {
		return nil, nil
	}
	return s.durable.ResearchMeta(ctx, exchangeID)
}

// DetectRepetition reports whether the candidate text is a near-duplicate of
// any of the last RepetitionWindow stored exchanges. Used to veto generations
// before they are committed.
func (s *Service) DetectRepetition(ctx context.Context, candidate string) (bool, error) {
	recent := s.index.Recent(s.config.RepetitionWindow)
	if len(recent) == 0 {
		return false, nil
	}

	if s.embedder != nil {
		embeddings, err := s.embedder.Embed(ctx, candidate)
		if err == nil && len(embeddings) == 1 {
			query := embeddings[0]
			for _, ex := range recent {
				if len(ex.Embedding) != len(query) {
					continue
				}
				if cosine(query, ex.Embedding) > s.config.RepetitionThreshold {
					return true, nil
				}
			}
			return false, nil
		}
	}

	// Degraded: keyword Jaccard with a lower bar, since lexical overlap
	// understates semantic similarity.
	for _, ex := range recent {
		if jaccardRepetition(candidate, ex.Text) {
			return true, nil
		}
	}
	return false, nil
}

func (s *Service) Recent(n int) []*entity.Exchange {
	return s.index.Recent(n)
}

func (s *Service) Count() int {
	return s.index.Count()
}

func (s *Service) Close() error {
	if s.durable != nil {
		return s.durable.Close()
	}
	return nil
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
