package manifest

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/mag1cfrog/stock-trading-bot/database/sqlite"
	"github.com/mag1cfrog/stock-trading-bot/metrics"
	"github.com/mag1cfrog/stock-trading-bot/timeutil"
)

// ErrGapNotFound means no gap exists with the referenced id.
var ErrGapNotFound = errors.New("gap not found")

// IsGapNotFound reports whether err means a missing gap.
func IsGapNotFound(err error) bool {
	return errors.Cause(err) == ErrGapNotFound
}

// GapState is the lifecycle state of a backlog item.
type GapState string

// Gap lifecycle states. A leased gap whose lease has expired is
// treated as queued by GapsLease; no background sweeper flips it back.
const (
	GapQueued GapState = "queued"
	GapLeased GapState = "leased"
	GapDone   GapState = "done"
	GapFailed GapState = "failed"
)

// Gap is one backlog item: a contiguous UTC interval known to be
// missing from a manifest's coverage.
type Gap struct {
	ID             int64
	ManifestID     int64
	Start          time.Time
	End            time.Time
	State          GapState
	LeaseOwner     *string
	LeaseExpiresAt *time.Time
}

// gapInsertChunk bounds rows per INSERT so the statement stays well
// under the store's parameter limit (four parameters per row).
const gapInsertChunk = 200

// GapsUpsert enqueues the intervals as queued gaps for the manifest.
// Rows duplicating an existing (manifest, start, end) tuple are
// silently ignored. The whole batch is one transaction.
func GapsUpsert(ctx context.Context, manifestID int64, ranges []Interval) error {
	defer metrics.RecordElapsed(time.Now())

	if len(ranges) == 0 {
		return nil
	}
	for _, r := range ranges {
		if !r.End.After(r.Start) {
			return errors.Errorf("gap range start %s must be before end %s",
				timeutil.ToRFC3339Millis(r.Start), timeutil.ToRFC3339Millis(r.End))
		}
	}

	dbtx, txctx, err := sqlite.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "begin gaps upsert")
	}
	defer dbtx.Rollback(ctx)

	for off := 0; off < len(ranges); off += gapInsertChunk {
		chunk := ranges[off:]
		if len(chunk) > gapInsertChunk {
			chunk = chunk[:gapInsertChunk]
		}

		var (
			b    strings.Builder
			args []interface{}
		)
		b.WriteString(`INSERT INTO asset_gaps (manifest_id, start_ts, end_ts, state) VALUES `)
		for i, r := range chunk {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString("(?, ?, ?, ?)")
			args = append(args, manifestID,
				timeutil.ToRFC3339Millis(r.Start),
				timeutil.ToRFC3339Millis(r.End),
				string(GapQueued))
		}
		b.WriteString(` ON CONFLICT (manifest_id, start_ts, end_ts) DO NOTHING`)

		if _, err := sqlite.Exec(txctx, b.String(), args...); err != nil {
			return errors.Wrap(err, "insert gaps")
		}
	}

	return errors.Wrap(dbtx.Commit(ctx), "commit gaps upsert")
}

// GapsLease claims up to limit gaps for worker, ordered by ascending
// id, and returns the claimed ids. A claimed gap stays leased to the
// worker until now+ttl; queued gaps and leased gaps whose lease has
// expired are both candidates.
//
// Selection and update run in one transaction and the update repeats
// the candidate predicate, so a row claimed by a competing writer
// between the two statements is skipped rather than stolen. The ids
// returned are the rows the update actually claimed.
func GapsLease(ctx context.Context, worker string, limit int, ttl time.Duration) ([]int64, error) {
	defer metrics.RecordElapsed(time.Now())

	if limit <= 0 {
		return nil, nil
	}

	now := time.Now().UTC()
	nowStr := timeutil.ToRFC3339Millis(now)
	expiresStr := timeutil.ToRFC3339Millis(now.Add(ttl))

	dbtx, txctx, err := sqlite.Begin(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "begin gaps lease")
	}
	defer dbtx.Rollback(ctx)

	const candidateCond = `
		(state = 'queued' AND (lease_expires_at IS NULL OR lease_expires_at < ?))
		OR (state = 'leased' AND lease_expires_at < ?)
	`

	rows, err := sqlite.Query(txctx, `
		SELECT id FROM asset_gaps
		WHERE `+candidateCond+`
		ORDER BY id ASC
		LIMIT ?
	`, nowStr, nowStr, limit)
	if err != nil {
		return nil, errors.Wrap(err, "select gap candidates")
	}
	var candidates []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, errors.Wrap(err, "scan gap candidate")
		}
		candidates = append(candidates, id)
	}
	if err := rows.Close(); err != nil {
		return nil, errors.Wrap(err, "end gap candidate scan")
	}
	if len(candidates) == 0 {
		return nil, dbtx.Commit(ctx)
	}

	placeholders := strings.Repeat("?, ", len(candidates)-1) + "?"
	args := []interface{}{string(GapLeased), worker, expiresStr}
	for _, id := range candidates {
		args = append(args, id)
	}
	args = append(args, nowStr, nowStr)

	rows, err = sqlite.Query(txctx, `
		UPDATE asset_gaps
		SET state = ?, lease_owner = ?, lease_expires_at = ?
		WHERE id IN (`+placeholders+`)
			AND (`+candidateCond+`)
		RETURNING id
	`, args...)
	if err != nil {
		return nil, errors.Wrap(err, "lease gaps")
	}
	var leased []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, errors.Wrap(err, "scan leased gap")
		}
		leased = append(leased, id)
	}
	if err := rows.Close(); err != nil {
		return nil, errors.Wrap(err, "end leased gap scan")
	}

	if err := dbtx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit gaps lease")
	}
	sort.Slice(leased, func(i, j int) bool { return leased[i] < leased[j] })
	return leased, nil
}

// GapsComplete marks the gap done. Completing an already done gap is a
// no-op; a missing gap id is an error. Lease columns are preserved so
// the backlog keeps its history.
func GapsComplete(ctx context.Context, gapID int64) error {
	defer metrics.RecordElapsed(time.Now())

	res, err := sqlite.Exec(ctx, `UPDATE asset_gaps SET state = ? WHERE id = ?`, string(GapDone), gapID)
	if err != nil {
		return errors.Wrapf(err, "complete gap %d", gapID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected")
	}
	if n == 0 {
		return errors.WithMessagef(ErrGapNotFound, "gap %d", gapID)
	}
	return nil
}

// GapsFail marks the gap failed and records msg as the owning
// manifest's last_error.
func GapsFail(ctx context.Context, gapID int64, msg string) error {
	defer metrics.RecordElapsed(time.Now())

	dbtx, txctx, err := sqlite.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "begin gap fail")
	}
	defer dbtx.Rollback(ctx)

	const q = `UPDATE asset_gaps SET state = ? WHERE id = ?`
	res, err := sqlite.Exec(txctx, q, string(GapFailed), gapID)
	if err != nil {
		return errors.Wrapf(err, "fail gap %d", gapID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected")
	}
	if n == 0 {
		return errors.WithMessagef(ErrGapNotFound, "gap %d", gapID)
	}

	const qm = `
		UPDATE asset_manifest
		SET last_error = ?, updated_at = strftime('%Y-%m-%dT%H:%M:%fZ','now')
		WHERE id = (SELECT manifest_id FROM asset_gaps WHERE id = ?)
	`
	if _, err := sqlite.Exec(txctx, qm, msg, gapID); err != nil {
		return errors.Wrap(err, "record manifest last error")
	}

	return errors.Wrap(dbtx.Commit(ctx), "commit gap fail")
}

// GapByID loads one gap.
func GapByID(ctx context.Context, gapID int64) (*Gap, error) {
	const q = `
		SELECT id, manifest_id, start_ts, end_ts, state, lease_owner, lease_expires_at
		FROM asset_gaps
		WHERE id = ?
	`
	var (
		g       Gap
		startTS string
		endTS   string
		state   string
		owner   sql.NullString
		expires sql.NullString
	)
	err := sqlite.QueryRow(ctx, q, gapID).Scan(&g.ID, &g.ManifestID, &startTS, &endTS, &state, &owner, &expires)
	if err == sql.ErrNoRows {
		return nil, errors.WithMessagef(ErrGapNotFound, "gap %d", gapID)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "load gap %d", gapID)
	}

	if g.Start, err = timeutil.ParseRFC3339UTC(startTS); err != nil {
		return nil, err
	}
	if g.End, err = timeutil.ParseRFC3339UTC(endTS); err != nil {
		return nil, err
	}
	g.State = GapState(state)
	if owner.Valid {
		s := owner.String
		g.LeaseOwner = &s
	}
	if expires.Valid {
		t, err := timeutil.ParseRFC3339UTC(expires.String)
		if err != nil {
			return nil, err
		}
		g.LeaseExpiresAt = &t
	}
	return &g, nil
}
