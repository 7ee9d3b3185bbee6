package sqlite

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/banshee-data/mitosis.report/internal/classifier"
	"github.com/banshee-data/mitosis.report/internal/timeutil"
)

// ErrVersionExists is returned when a different model already holds the
// version being inserted.
var ErrVersionExists = errors.New("model version already stored")

// ModelRecord is a stored model with its bookkeeping columns.
type ModelRecord struct {
	Version   int
	ModelID   string
	Examples  int
	Positives int
	CreatedAt int64
	Model     *classifier.Model
}

// ModelStore persists trained classifier models keyed by version.
type ModelStore struct {
	db    *sql.DB
	clock timeutil.Clock
}

// NewModelStore creates a new ModelStore.
func NewModelStore(db *sql.DB) *ModelStore {
	return &ModelStore{db: db, clock: timeutil.RealClock{}}
}

// SetClock replaces the clock that stamps created_at.
func (s *ModelStore) SetClock(c timeutil.Clock) {
	s.clock = c
}

// Insert stores m under its version. Inserting the same model twice is a
// no-op; a different model under an existing version fails with
// ErrVersionExists.
func (s *ModelStore) Insert(m *classifier.Model) error {
	if m == nil {
		return classifier.ErrClassifierUntrained
	}
	body, err := m.MarshalJSON()
	if err != nil {
		return fmt.Errorf("marshal model: %w", err)
	}
	examples, positives := m.TrainedOn()

	return retryOnBusy(func() error {
		var existing string
		err := s.db.QueryRow(`SELECT model_id FROM models WHERE version = ?`, m.Version()).Scan(&existing)
		switch {
		case err == nil && existing == m.ID():
			return nil
		case err == nil:
			return fmt.Errorf("version %d holds %s: %w", m.Version(), existing, ErrVersionExists)
		case !errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("lookup model version: %w", err)
		}
		_, err = s.db.Exec(`
			INSERT INTO models (version, model_id, kind, model_json, examples, positives, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			m.Version(), m.ID(), classifier.ModelKind, string(body), examples, positives, s.clock.Now().UnixNano(),
		)
		return err
	})
}

// Latest returns the highest stored version.
func (s *ModelStore) Latest() (*ModelRecord, error) {
	return s.get(`SELECT version, model_id, examples, positives, created_at, model_json
		FROM models ORDER BY version DESC LIMIT 1`)
}

// ByVersion returns the model stored under version.
func (s *ModelStore) ByVersion(version int) (*ModelRecord, error) {
	return s.get(`SELECT version, model_id, examples, positives, created_at, model_json
		FROM models WHERE version = ?`, version)
}

// NextVersion returns one more than the highest stored version, or 1 for an
// empty store.
func (s *ModelStore) NextVersion() (int, error) {
	var v sql.NullInt64
	if err := s.db.QueryRow(`SELECT MAX(version) FROM models`).Scan(&v); err != nil {
		return 0, fmt.Errorf("query max version: %w", err)
	}
	if !v.Valid {
		return 1, nil
	}
	return int(v.Int64) + 1, nil
}

func (s *ModelStore) get(query string, args ...interface{}) (*ModelRecord, error) {
	var r ModelRecord
	var body string
	err := s.db.QueryRow(query, args...).Scan(&r.Version, &r.ModelID, &r.Examples, &r.Positives, &r.CreatedAt, &body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan model row: %w", err)
	}
	m, err := classifier.Unmarshal([]byte(body))
	if err != nil {
		return nil, fmt.Errorf("decode model %d: %w", r.Version, err)
	}
	r.Model = m
	return &r, nil
}
