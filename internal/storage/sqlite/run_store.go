package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/mitosis.report/internal/aggregate"
	"github.com/banshee-data/mitosis.report/internal/pipeline"
	"github.com/banshee-data/mitosis.report/internal/reconcile"
	"github.com/banshee-data/mitosis.report/internal/timeutil"
)

// Run is one stored batch.
type Run struct {
	RunID        string          `json:"run_id"`
	ModelID      string          `json:"model_id"`
	ModelVersion int             `json:"model_version"`
	ParamsJSON   json.RawMessage `json:"params_json,omitempty"`
	Movies       int             `json:"movies"`
	Cells        int             `json:"cells"`
	ItemErrors   int             `json:"item_errors"`
	Elapsed      time.Duration   `json:"elapsed"`
	CreatedAt    int64           `json:"created_at"`
}

// CellRecord is the stored outcome of one cell.
type CellRecord struct {
	RunID          string
	MovieID        string
	CellID         string
	PairID         string
	Score          *float64
	Final          [3]reconcile.EventValue
	Provenance     [3]reconcile.Provenance
	Divergent      bool
	OrderViolation bool
	DurationFrames *int
	Confidence     float64
	LowConfidence  bool
	Reason         string
}

// CellRecordFrom flattens a pipeline cell.
func CellRecordFrom(runID string, c pipeline.Cell) CellRecord {
	r := CellRecord{
		RunID:          runID,
		MovieID:        c.MovieID,
		CellID:         c.CellID,
		PairID:         c.Pair.ID,
		Divergent:      c.Reconciled.Divergent(),
		OrderViolation: c.Reconciled.OrderViolation,
		Confidence:     c.Fit.Confidence,
		LowConfidence:  c.Fit.LowConfidence,
		Reason:         c.Fit.Reason,
	}
	if c.Pair.Score.Valid {
		v := c.Pair.Score.Value
		r.Score = &v
	}
	for _, e := range reconcile.Events {
		r.Final[e] = c.Reconciled.Events[e].Final
		r.Provenance[e] = c.Reconciled.Events[e].Provenance
	}
	if c.Reconciled.Duration.Valid {
		d := c.Reconciled.Duration.Frames
		r.DurationFrames = &d
	}
	return r
}

// RunStore persists batch results.
type RunStore struct {
	db    *sql.DB
	clock timeutil.Clock
}

// NewRunStore creates a new RunStore.
func NewRunStore(db *sql.DB) *RunStore {
	return &RunStore{db: db, clock: timeutil.RealClock{}}
}

// SetClock replaces the clock that stamps created_at.
func (s *RunStore) SetClock(c timeutil.Clock) {
	s.clock = c
}

// Save stores a batch result in one transaction and returns the run row.
// params is stored verbatim and may be nil.
func (s *RunStore) Save(res *pipeline.Result, params json.RawMessage) (*Run, error) {
	run := &Run{
		RunID:        uuid.New().String(),
		ModelID:      res.ModelID,
		ModelVersion: res.ModelVersion,
		ParamsJSON:   params,
		Movies:       len(res.Movies),
		Cells:        res.Dataset.Cells,
		ItemErrors:   len(res.Errors),
		Elapsed:      res.Elapsed,
		CreatedAt:    s.clock.Now().UnixNano(),
	}

	err := retryOnBusy(func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		defer tx.Rollback()

		var paramsStr interface{}
		if len(params) > 0 {
			paramsStr = string(params)
		}
		if _, err := tx.Exec(`
			INSERT INTO runs (run_id, model_id, model_version, params_json, movies, cells, item_errors, elapsed_ns, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.RunID, run.ModelID, run.ModelVersion, paramsStr, run.Movies, run.Cells, run.ItemErrors,
			int64(run.Elapsed), run.CreatedAt,
		); err != nil {
			return fmt.Errorf("insert run: %w", err)
		}

		for _, mr := range res.Movies {
			if err := insertMovie(tx, run.RunID, mr.Summary); err != nil {
				return err
			}
			for _, c := range mr.Cells {
				if err := insertCell(tx, CellRecordFrom(run.RunID, c)); err != nil {
					return err
				}
			}
		}
		return tx.Commit()
	})
	if err != nil {
		return nil, err
	}
	return run, nil
}

func insertMovie(tx *sql.Tx, runID string, s aggregate.Summary) error {
	body, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal summary %s: %w", s.MovieID, err)
	}
	_, err = tx.Exec(`
		INSERT INTO run_movies (run_id, movie_id, cells, scored, divergent, summary_json)
		VALUES (?, ?, ?, ?, ?, ?)`,
		runID, s.MovieID, s.Cells, s.Scored, s.Divergent, string(body),
	)
	if err != nil {
		return fmt.Errorf("insert movie %s: %w", s.MovieID, err)
	}
	return nil
}

func insertCell(tx *sql.Tx, r CellRecord) error {
	_, err := tx.Exec(`
		INSERT INTO run_cells (
			run_id, movie_id, cell_id, pair_id, score,
			nebd, nebd_provenance, cong_s, cong_s_provenance, cong_e, cong_e_provenance,
			divergent, order_violation, duration_frames, confidence, low_confidence, reason
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.MovieID, r.CellID, r.PairID, r.Score,
		r.Final[reconcile.NEBD].String(), string(r.Provenance[reconcile.NEBD]),
		r.Final[reconcile.CongS].String(), string(r.Provenance[reconcile.CongS]),
		r.Final[reconcile.CongE].String(), string(r.Provenance[reconcile.CongE]),
		r.Divergent, r.OrderViolation, r.DurationFrames, r.Confidence, r.LowConfidence, r.Reason,
	)
	if err != nil {
		return fmt.Errorf("insert cell %s/%s: %w", r.MovieID, r.CellID, err)
	}
	return nil
}

// Get returns one run.
func (s *RunStore) Get(runID string) (*Run, error) {
	row := s.db.QueryRow(`
		SELECT run_id, model_id, model_version, params_json, movies, cells, item_errors, elapsed_ns, created_at
		FROM runs WHERE run_id = ?`, runID)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return r, err
}

// List returns all runs, newest first.
func (s *RunStore) List() ([]*Run, error) {
	rows, err := s.db.Query(`
		SELECT run_id, model_id, model_version, params_json, movies, cells, item_errors, elapsed_ns, created_at
		FROM runs ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// MovieSummaries returns the stored per-movie summaries of a run ordered by
// movie id.
func (s *RunStore) MovieSummaries(runID string) ([]aggregate.Summary, error) {
	rows, err := s.db.Query(`SELECT summary_json FROM run_movies WHERE run_id = ? ORDER BY movie_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("query movies: %w", err)
	}
	defer rows.Close()

	var out []aggregate.Summary
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan movie row: %w", err)
		}
		var s aggregate.Summary
		if err := json.Unmarshal([]byte(body), &s); err != nil {
			return nil, fmt.Errorf("decode summary: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Cells returns the cells of a run ordered by movie and cell id.
func (s *RunStore) Cells(runID string) ([]CellRecord, error) {
	rows, err := s.db.Query(`
		SELECT run_id, movie_id, cell_id, pair_id, score,
		       nebd, nebd_provenance, cong_s, cong_s_provenance, cong_e, cong_e_provenance,
		       divergent, order_violation, duration_frames, confidence, low_confidence, reason
		FROM run_cells WHERE run_id = ?
		ORDER BY movie_id, cell_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("query cells: %w", err)
	}
	defer rows.Close()

	var out []CellRecord
	for rows.Next() {
		r, err := scanCell(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Delete removes a run and its rows.
func (s *RunStore) Delete(runID string) error {
	return retryOnBusy(func() error {
		result, err := s.db.Exec(`DELETE FROM runs WHERE run_id = ?`, runID)
		if err != nil {
			return fmt.Errorf("delete run: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			return fmt.Errorf("run %s: %w", runID, ErrNotFound)
		}
		return nil
	})
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row scanner) (*Run, error) {
	var r Run
	var params sql.NullString
	var elapsed int64
	err := row.Scan(&r.RunID, &r.ModelID, &r.ModelVersion, &params, &r.Movies, &r.Cells, &r.ItemErrors, &elapsed, &r.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan run row: %w", err)
	}
	if params.Valid {
		r.ParamsJSON = json.RawMessage(params.String)
	}
	r.Elapsed = time.Duration(elapsed)
	return &r, nil
}

func scanCell(row scanner) (CellRecord, error) {
	var r CellRecord
	var score sql.NullFloat64
	var duration sql.NullInt64
	var final [3]string
	var prov [3]string
	err := row.Scan(
		&r.RunID, &r.MovieID, &r.CellID, &r.PairID, &score,
		&final[0], &prov[0], &final[1], &prov[1], &final[2], &prov[2],
		&r.Divergent, &r.OrderViolation, &duration, &r.Confidence, &r.LowConfidence, &r.Reason,
	)
	if err != nil {
		return r, fmt.Errorf("scan cell row: %w", err)
	}
	if score.Valid {
		v := score.Float64
		r.Score = &v
	}
	if duration.Valid {
		d := int(duration.Int64)
		r.DurationFrames = &d
	}
	for i := range final {
		v, err := reconcile.ParseEventValue(final[i])
		if err != nil {
			return r, fmt.Errorf("cell %s/%s: %w", r.MovieID, r.CellID, err)
		}
		r.Final[i] = v
		r.Provenance[i] = reconcile.Provenance(prov[i])
	}
	return r, nil
}
