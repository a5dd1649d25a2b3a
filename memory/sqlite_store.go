//go:build !without_sqlite

package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	"github.com/duetlabs/duet/entity"
	"github.com/google/uuid"
	"github.com/mitchellh/mapstructure"
	"github.com/mokiat/gog"
	"github.com/pkg/errors"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// SqliteStore is the durable tier of a host's memory: an append-only exchange
// log plus a sqlite-vec virtual table, re-loadable to resume a session.
type SqliteStore struct {
	db     *gorm.DB
	hostID string
	vecDim int
}

type ExchangeRecord struct {
	ID        string `gorm:"primaryKey"`
	HostID    string `gorm:"index"`
	Seq       uint64 `gorm:"index"`
	SpeakerID string
	Text      string
	CreatedAt time.Time

	Metadata datatypes.JSONType[map[string]any]
}

func (ExchangeRecord) TableName() string {
	return "exchanges"
}

func NewSqliteStore(dbPath, hostID string, dimension int) (*SqliteStore, error) {
	sqlite_vec.Auto()

	db, err := gorm.Open(
		sqlite.Open(fmt.Sprintf("file:%s?cache=shared&mode=rwc&_journal_mode=WAL&_foreign_keys=on", dbPath)),
		&gorm.Config{},
	)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open sqlite database")
	}

	store := &SqliteStore{db: db, hostID: hostID, vecDim: dimension}

	if err := db.AutoMigrate(&ExchangeRecord{}); err != nil {
		return nil, errors.Wrapf(err, "failed to migrate exchanges table")
	}
	if err := store.createVectorTable(); err != nil {
		return nil, err
	}

	return store, nil
}

func (s *SqliteStore) createVectorTable() error {
	var sqliteVersion, vecVersion string
	if err := s.db.Raw("SELECT sqlite_version(), vec_version()").Row().Scan(&sqliteVersion, &vecVersion); err != nil {
		return errors.Wrapf(err, "sqlite-vec extension not properly loaded")
	}

	createTableSQL := fmt.Sprintf(`
		CREATE VIRTUAL TABLE IF NOT EXISTS exchange_vectors USING vec0(
			exchange_id TEXT PRIMARY KEY,
			embedding float[%d]
		);
	`, s.vecDim)

	if err := s.db.Exec(createTableSQL).Error; err != nil {
		return errors.Wrapf(err, "failed to create exchange_vectors table")
	}
	return nil
}

// Append persists one exchange and its embedding. The research brief travels
// in the JSON metadata column.
func (s *SqliteStore) Append(ctx context.Context, ex *entity.Exchange, researchMeta *entity.ResearchMeta) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if ex.ID == "" {
			ex.ID = uuid.NewString()
		}

		meta := map[string]any{
			"research": ex.Research,
		}
		if researchMeta != nil {
			meta = gog.Merge(meta, map[string]any{
				"research_query":    researchMeta.Query,
				"research_sources":  researchMeta.Sources,
				"research_findings": researchMeta.Findings,
			})
		}

		record := ExchangeRecord{
			ID:        ex.ID,
			HostID:    s.hostID,
			Seq:       ex.Seq,
			SpeakerID: ex.SpeakerID,
			Text:      ex.Text,
			CreatedAt: ex.CreatedAt,
			Metadata:  datatypes.NewJSONType(meta),
		}
		if err := tx.Save(&record).Error; err != nil {
			return errors.Wrapf(err, "failed to save exchange record")
		}

		if len(ex.Embedding) == s.vecDim {
			serialized, err := sqlite_vec.SerializeFloat32(ex.Embedding)
			if err != nil {
				return errors.Wrapf(err, "failed to serialize embedding")
			}
			if err := tx.Exec("DELETE FROM exchange_vectors WHERE exchange_id = ?", ex.ID).Error; err != nil {
				return errors.Wrapf(err, "failed to delete existing vector")
			}
			if err := tx.Exec("INSERT INTO exchange_vectors (exchange_id, embedding) VALUES (?, ?)", ex.ID, serialized).Error; err != nil {
				return errors.Wrapf(err, "failed to insert exchange vector")
			}
		}

		return nil
	})
}

// LoadAll reads this host's exchange log back in sequence order, with
// embeddings, for session resume.
func (s *SqliteStore) LoadAll(ctx context.Context) ([]*entity.Exchange, error) {
	var records []ExchangeRecord
	if err := s.db.WithContext(ctx).
		Where("host_id = ?", s.hostID).
		Order("seq ASC").
		Find(&records).Error; err != nil {
		return nil, errors.Wrapf(err, "failed to load exchange records")
	}

	exchanges := make([]*entity.Exchange, 0, len(records))
	for _, record := range records {
		ex := &entity.Exchange{
			ID:        record.ID,
			SpeakerID: record.SpeakerID,
			Seq:       record.Seq,
			Text:      record.Text,
			CreatedAt: record.CreatedAt,
		}

		meta := record.Metadata.Data()
		if research, ok := meta["research"].(string); ok {
			ex.Research = research
		}

		var rawJSON string
		if err := s.db.WithContext(ctx).
			Raw("SELECT vec_to_json(embedding) FROM exchange_vectors WHERE exchange_id = ?", record.ID).
			Row().Scan(&rawJSON); err == nil && rawJSON != "" {
			var vec []float32
			if err := json.Unmarshal([]byte(rawJSON), &vec); err == nil {
				ex.Embedding = vec
			}
		}

		exchanges = append(exchanges, ex)
	}

	return exchanges, nil
}

// ResearchMeta decodes the typed research metadata of a persisted exchange.
func (s *SqliteStore) ResearchMeta(ctx context.Context, exchangeID string) (*entity.ResearchMeta, error) {
	var record ExchangeRecord
	if err := s.db.WithContext(ctx).First(&record, "id = ?", exchangeID).Error; err != nil {
		return nil, errors.Wrapf(err, "failed to fetch exchange record")
	}

	raw := map[string]any{
		"query":    record.Metadata.Data()["research_query"],
		"sources":  record.Metadata.Data()["research_sources"],
		"findings": record.Metadata.Data()["research_findings"],
	}
	var meta entity.ResearchMeta
	if err := mapstructure.Decode(raw, &meta); err != nil {
		return nil, errors.Wrapf(err, "failed to decode research metadata")
	}
	return &meta, nil
}

// Search runs a vector similarity query against the durable tier. Used when
// resuming before the in-memory index is warm.
func (s *SqliteStore) Search(ctx context.Context, queryEmbedding []float32, limit int) ([]Scored, error) {
	if len(queryEmbedding) != s.vecDim {
		return nil, nil
	}

	serialized, err := sqlite_vec.SerializeFloat32(queryEmbedding)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to serialize query embedding")
	}

	rows, err := s.db.WithContext(ctx).Raw(`
		SELECT exchange_id, distance
		FROM exchange_vectors
		WHERE embedding MATCH ?
		ORDER BY distance
		LIMIT ?
	`, serialized, limit).Rows()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to execute vector search")
	}
	defer rows.Close()

	distances := make(map[string]float64)
	var ids []string
	for rows.Next() {
		var id string
		var distance float64
		if err := rows.Scan(&id, &distance); err != nil {
			return nil, errors.Wrapf(err, "failed to scan search row")
		}
		ids = append(ids, id)
		distances[id] = distance
	}
	if len(ids) == 0 {
		return nil, nil
	}

	var records []ExchangeRecord
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&records).Error; err != nil {
		return nil, errors.Wrapf(err, "failed to fetch exchange records")
	}

	results := make([]Scored, 0, len(records))
	for _, record := range records {
		results = append(results, Scored{
			Exchange: &entity.Exchange{
				ID:        record.ID,
				SpeakerID: record.SpeakerID,
				Seq:       record.Seq,
				Text:      record.Text,
				CreatedAt: record.CreatedAt,
			},
			Score: 1.0 - distances[record.ID],
		})
	}
	return results, nil
}

// Reset drops this host's persisted log. Used by the CLI --fresh flag.
func (s *SqliteStore) Reset(ctx context.Context) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []string
		if err := tx.Model(&ExchangeRecord{}).Where("host_id = ?", s.hostID).Pluck("id", &ids).Error; err != nil {
			return errors.Wrapf(err, "failed to list exchange records")
		}
		if len(ids) > 0 {
			if err := tx.Exec("DELETE FROM exchange_vectors WHERE exchange_id IN ?", ids).Error; err != nil {
				return errors.Wrapf(err, "failed to delete vectors")
			}
			if err := tx.Delete(&ExchangeRecord{}, "id IN ?", ids).Error; err != nil {
				return errors.Wrapf(err, "failed to delete exchange records")
			}
		}
		return nil
	})
}

func (s *SqliteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
