package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/jingkaihe/skillbench/pkg/snapshot"
	"github.com/jingkaihe/skillbench/pkg/types/bench"
)

// ErrNotFound is returned when no snapshot has the requested id
var ErrNotFound = errors.New("snapshot not found")

// Store persists snapshots and their reports
type Store struct {
	db *sqlx.DB
}

// Open opens the history database at path and brings its schema up to date
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := openDB(ctx, path)
	if err != nil {
		return nil, err
	}
	if err := migrate(ctx, db, migrations); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}

type snapshotRow struct {
	ID               string         `db:"id"`
	SkillID          string         `db:"skill_id"`
	Model            string         `db:"model"`
	Runs             int            `db:"runs"`
	Accuracy         float64        `db:"accuracy"`
	TokensTotal      int            `db:"tokens_total"`
	CostUSD          float64        `db:"cost_usd"`
	PassRate         float64        `db:"pass_rate"`
	SecurityScore    *float64       `db:"security_score"`
	TriggerScore     *float64       `db:"trigger_score"`
	ConsistencyScore *float64       `db:"consistency_score"`
	TokenReduction   *float64       `db:"token_reduction"`
	TimestampMs      int64          `db:"timestamp_ms"`
	ContentHash      string         `db:"content_hash"`
	Report           sql.NullString `db:"report"`
}

func (r snapshotRow) snapshot() *snapshot.Snapshot {
	return &snapshot.Snapshot{
		ID:               r.ID,
		SkillID:          r.SkillID,
		Model:            r.Model,
		Runs:             r.Runs,
		Accuracy:         r.Accuracy,
		TokensTotal:      r.TokensTotal,
		CostUSD:          r.CostUSD,
		PassRate:         r.PassRate,
		SecurityScore:    r.SecurityScore,
		TriggerScore:     r.TriggerScore,
		ConsistencyScore: r.ConsistencyScore,
		TokenReduction:   r.TokenReduction,
		Timestamp:        time.UnixMilli(r.TimestampMs).UTC(),
		ContentHash:      r.ContentHash,
	}
}

const snapshotColumns = `id, skill_id, model, runs, accuracy, tokens_total, cost_usd, pass_rate,
	security_score, trigger_score, consistency_score, token_reduction, timestamp_ms, content_hash`

// Save stores a snapshot. The report is optional; when given it is kept as
// JSON so the run can be rendered again later.
func (s *Store) Save(ctx context.Context, snap *snapshot.Snapshot, report *bench.Report) error {
	row := snapshotRow{
		ID:               snap.ID,
		SkillID:          snap.SkillID,
		Model:            snap.Model,
		Runs:             snap.Runs,
		Accuracy:         snap.Accuracy,
		TokensTotal:      snap.TokensTotal,
		CostUSD:          snap.CostUSD,
		PassRate:         snap.PassRate,
		SecurityScore:    snap.SecurityScore,
		TriggerScore:     snap.TriggerScore,
		ConsistencyScore: snap.ConsistencyScore,
		TokenReduction:   snap.TokenReduction,
		TimestampMs:      snap.Timestamp.UnixMilli(),
		ContentHash:      snap.ContentHash,
	}
	if report != nil {
		data, err := json.Marshal(report)
		if err != nil {
			return errors.Wrap(err, "failed to encode report")
		}
		row.Report = sql.NullString{String: string(data), Valid: true}
	}

	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO snapshots (`+snapshotColumns+`, report)
		VALUES (:id, :skill_id, :model, :runs, :accuracy, :tokens_total, :cost_usd, :pass_rate,
			:security_score, :trigger_score, :consistency_score, :token_reduction, :timestamp_ms, :content_hash, :report)
	`, row)
	return errors.Wrapf(err, "failed to save snapshot %s", snap.ID)
}

// List returns the most recent snapshots, newest first. An empty skillID
// lists every skill; a non-positive limit returns all rows.
func (s *Store) List(ctx context.Context, skillID string, limit int) ([]*snapshot.Snapshot, error) {
	query := `SELECT ` + snapshotColumns + ` FROM snapshots`
	var args []any
	if skillID != "" {
		query += ` WHERE skill_id = ?`
		args = append(args, skillID)
	}
	query += ` ORDER BY timestamp_ms DESC, id`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	var rows []snapshotRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "failed to list snapshots")
	}

	out := make([]*snapshot.Snapshot, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.snapshot())
	}
	return out, nil
}

// Get returns the snapshot with the given id
func (s *Store) Get(ctx context.Context, id string) (*snapshot.Snapshot, error) {
	var row snapshotRow
	err := s.db.GetContext(ctx, &row, `SELECT `+snapshotColumns+` FROM snapshots WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrap(ErrNotFound, id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get snapshot %s", id)
	}
	return row.snapshot(), nil
}

// Report returns the report stored with a snapshot, or nil when the
// snapshot was saved without one
func (s *Store) Report(ctx context.Context, id string) (*bench.Report, error) {
	var data sql.NullString
	err := s.db.GetContext(ctx, &data, `SELECT report FROM snapshots WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrap(ErrNotFound, id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get report %s", id)
	}
	if !data.Valid {
		return nil, nil
	}

	var r bench.Report
	if err := json.Unmarshal([]byte(data.String), &r); err != nil {
		return nil, errors.Wrapf(err, "failed to decode report %s", id)
	}
	return &r, nil
}
