package storage

import (
	"context"
	"time"
)

// Audit is the tool-call audit log view over a store. The log is
// insert-only: no update or delete path exists on this type.
type Audit struct {
	store *Store
}

// NewAudit returns the audit log view over the store.
func NewAudit(s *Store) *Audit {
	return &Audit{store: s}
}

// RecordOptions carries the optional fields of an audit row.
type RecordOptions struct {
	Parameters string
	Result     string
	Error      string
}

// Record inserts one audit row and returns its id. duration_ms is derived
// from the start and completion times.
func (a *Audit) Record(ctx context.Context, name string, startedAt, completedAt time.Time, opts RecordOptions) (int64, error) {
	row := &ToolCallModel{
		Name:        name,
		Parameters:  opts.Parameters,
		Result:      opts.Result,
		Error:       opts.Error,
		StartedAt:   startedAt.Unix(),
		CompletedAt: completedAt.Unix(),
		DurationMs:  completedAt.Sub(startedAt).Milliseconds(),
	}
	_, err := a.store.db.NewInsert().Model(row).Returning("id").Exec(ctx)
	if err != nil {
		return 0, storageErr(err)
	}
	return row.ID, nil
}

// ByName returns audit rows for one tool name, most recent first.
// limit <= 0 means no limit.
func (a *Audit) ByName(ctx context.Context, name string, limit int) ([]ToolCall, error) {
	q := a.store.db.NewSelect().
		Model((*ToolCallModel)(nil)).
		Where("name = ?", name).
		Order("started_at DESC", "id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []ToolCallModel
	if err := q.Scan(ctx, &rows); err != nil {
		return nil, storageErr(err)
	}
	return toToolCalls(rows), nil
}

// Since returns audit rows started at or after the given epoch second,
// most recent first. limit <= 0 means no limit.
func (a *Audit) Since(ctx context.Context, epoch int64, limit int) ([]ToolCall, error) {
	q := a.store.db.NewSelect().
		Model((*ToolCallModel)(nil)).
		Where("started_at >= ?", epoch).
		Order("started_at DESC", "id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []ToolCallModel
	if err := q.Scan(ctx, &rows); err != nil {
		return nil, storageErr(err)
	}
	return toToolCalls(rows), nil
}

// Stats returns per-name aggregates over the whole log, ordered by name.
// A row is counted as failed when its error column is non-empty.
func (a *Audit) Stats(ctx context.Context) ([]ToolCallStats, error) {
	rows, err := a.store.db.QueryContext(ctx, `
		SELECT name,
		       COUNT(*) AS total,
		       SUM(CASE WHEN error IS NULL OR error = '' THEN 1 ELSE 0 END) AS successful,
		       SUM(CASE WHEN error IS NOT NULL AND error != '' THEN 1 ELSE 0 END) AS failed,
		       AVG(duration_ms) AS avg_duration_ms
		FROM tool_calls GROUP BY name ORDER BY name ASC`)
	if err != nil {
		return nil, storageErr(err)
	}
	defer rows.Close()

	var stats []ToolCallStats
	for rows.Next() {
		var s ToolCallStats
		if err := rows.Scan(&s.Name, &s.Total, &s.Successful, &s.Failed, &s.AvgDurationMs); err != nil {
			return nil, storageErr(err)
		}
		stats = append(stats, s)
	}
	return stats, storageErr(rows.Err())
}

func toToolCalls(rows []ToolCallModel) []ToolCall {
	calls := make([]ToolCall, 0, len(rows))
	for _, r := range rows {
		calls = append(calls, ToolCall{
			ID:          r.ID,
			Name:        r.Name,
			Parameters:  r.Parameters,
			Result:      r.Result,
			Error:       r.Error,
			StartedAt:   time.Unix(r.StartedAt, 0),
			CompletedAt: time.Unix(r.CompletedAt, 0),
			DurationMs:  r.DurationMs,
		})
	}
	return calls
}
