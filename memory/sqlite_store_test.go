//go:build !without_sqlite

package memory_test

import (
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/duetlabs/duet/config"
	"github.com/duetlabs/duet/entity"
	"github.com/duetlabs/duet/internal/mytesting"
	"github.com/duetlabs/duet/memory"
	"github.com/stretchr/testify/suite"
)

const testVecDim = 3

type SqliteStoreTestSuite struct {
	mytesting.Suite

	dbPath string
	store  *memory.SqliteStore
}

func (s *SqliteStoreTestSuite) SetupTest() {
	s.Suite.SetupTest()

	s.dbPath = filepath.Join(s.T().TempDir(), "duet.db")
	store, err := memory.NewSqliteStore(s.dbPath, "alex", testVecDim)
	s.Require().NoError(err)
	s.store = store
}

func (s *SqliteStoreTestSuite) TearDownTest() {
	s.Require().NoError(s.store.Close())
	s.Suite.TearDownTest()
}

func (s *SqliteStoreTestSuite) exchange(seq uint64, text string, embedding []float32) *entity.Exchange {
	return &entity.Exchange{
		SpeakerID: "alex",
		Seq:       seq,
		Text:      text,
		Research:  "brief for " + text,
		CreatedAt: time.Now(),
		Embedding: embedding,
	}
}

func (s *SqliteStoreTestSuite) TestAppendAndLoadAllRoundTrip() {
	ex := s.exchange(1, "fiber costs keep falling", []float32{1, 0, 0})
	s.Require().NoError(s.store.Append(s.Context, ex, nil))
	s.Require().NotEmpty(ex.ID)

	loaded, err := s.store.LoadAll(s.Context)
	s.Require().NoError(err)
	s.Require().Len(loaded, 1)
	s.Require().Equal("fiber costs keep falling", loaded[0].Text)
	s.Require().Equal("brief for fiber costs keep falling", loaded[0].Research)
	s.Require().Equal(uint64(1), loaded[0].Seq)
	s.Require().Equal([]float32{1, 0, 0}, loaded[0].Embedding)
}

func (s *SqliteStoreTestSuite) TestResearchMetaDecodesTypedFields() {
	ex := s.exchange(1, "the buildout numbers", []float32{1, 0, 0})
	s.Require().NoError(s.store.Append(s.Context, ex, &entity.ResearchMeta{
		Query:    "municipal broadband",
		Sources:  []string{"https://example.org/a", "https://example.org/b"},
		Findings: 2,
	}))

	meta, err := s.store.ResearchMeta(s.Context, ex.ID)
	s.Require().NoError(err)
	s.Require().Equal("municipal broadband", meta.Query)
	s.Require().Equal(2, meta.Findings)
	s.Require().Len(meta.Sources, 2)
}

func (s *SqliteStoreTestSuite) TestSearchRanksBySimilarity() {
	s.Require().NoError(s.store.Append(s.Context, s.exchange(1, "fiber line", []float32{1, 0, 0}), nil))
	s.Require().NoError(s.store.Append(s.Context, s.exchange(2, "weather", []float32{0, 1, 0}), nil))

	results, err := s.store.Search(s.Context, []float32{1, 0, 0}, 2)
	s.Require().NoError(err)
	s.Require().NotEmpty(results)
	s.Require().Equal("fiber line", results[0].Exchange.Text)
}

func (s *SqliteStoreTestSuite) TestResetDropsOnlyOwnHost() {
	s.Require().NoError(s.store.Append(s.Context, s.exchange(1, "alex talks", []float32{1, 0, 0}), nil))

	other, err := memory.NewSqliteStore(s.dbPath, "sam", testVecDim)
	s.Require().NoError(err)
	defer other.Close()
	s.Require().NoError(other.Append(s.Context, &entity.Exchange{
		SpeakerID: "sam", Seq: 2, Text: "sam talks", CreatedAt: time.Now(),
	}, nil))

	s.Require().NoError(s.store.Reset(s.Context))

	mine, err := s.store.LoadAll(s.Context)
	s.Require().NoError(err)
	s.Require().Empty(mine)

	theirs, err := other.LoadAll(s.Context)
	s.Require().NoError(err)
	s.Require().Len(theirs, 1)
}

func (s *SqliteStoreTestSuite) TestServiceLoadWarmsIndexForResume() {
	embedder := &stubEmbedder{vectors: map[string][]float32{
		"the fiber line": {1, 0, 0},
	}}

	first := memory.NewService("alex", slog.New(slog.DiscardHandler), &config.MemoryConfig{
		RepetitionThreshold: 0.85,
		RepetitionWindow:    6,
	}, embedder, s.store)
	s.Require().NoError(first.Store(s.Context, &entity.Exchange{
		SpeakerID: "alex", Seq: 1, Text: "the fiber line", CreatedAt: time.Now(),
	}, nil))
	s.Require().NoError(first.Store(s.Context, &entity.Exchange{
		SpeakerID: "alex", Seq: 2, Text: "weather yesterday", CreatedAt: time.Now(),
	}, nil))

	reopened, err := memory.NewSqliteStore(s.dbPath, "alex", testVecDim)
	s.Require().NoError(err)
	second := memory.NewService("alex", slog.New(slog.DiscardHandler), &config.MemoryConfig{
		RepetitionThreshold: 0.85,
		RepetitionWindow:    6,
	}, embedder, reopened)
	s.T().Cleanup(func() { _ = second.Close() })

	n, err := second.Load(s.Context)
	s.Require().NoError(err)
	s.Require().Equal(2, n)
	s.Require().Equal(2, second.Count())

	recent := second.Recent(2)
	s.Require().Equal("the fiber line", recent[0].Text)
	s.Require().Equal("weather yesterday", recent[1].Text)
}

func (s *SqliteStoreTestSuite) TestRetrieveFallsToDurableBeforeLoad() {
	embedder := &stubEmbedder{vectors: map[string][]float32{
		"the fiber line": {1, 0, 0},
	}}
	warm := memory.NewService("alex", slog.New(slog.DiscardHandler), &config.MemoryConfig{
		RepetitionThreshold: 0.85,
		RepetitionWindow:    6,
	}, embedder, s.store)
	s.Require().NoError(warm.Store(s.Context, &entity.Exchange{
		SpeakerID: "alex", Seq: 1, Text: "the fiber line", CreatedAt: time.Now(),
	}, nil))

	reopened, err := memory.NewSqliteStore(s.dbPath, "alex", testVecDim)
	s.Require().NoError(err)
	cold := memory.NewService("alex", slog.New(slog.DiscardHandler), &config.MemoryConfig{
		RepetitionThreshold: 0.85,
		RepetitionWindow:    6,
	}, embedder, reopened)
	s.T().Cleanup(func() { _ = cold.Close() })

	// No Load yet; the in-memory index is empty.
	results, err := cold.Retrieve(s.Context, "the fiber line", 3)
	s.Require().NoError(err)
	s.Require().NotEmpty(results)
	s.Require().Equal("the fiber line", results[0].Exchange.Text)

	excluded, err := cold.Retrieve(s.Context, "the fiber line", 3, memory.WithoutSeq(1))
	s.Require().NoError(err)
	s.Require().Empty(excluded)
}

func TestSqliteStoreTestSuite(t *testing.T) {
	suite.Run(t, new(SqliteStoreTestSuite))
}
