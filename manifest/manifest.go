package manifest

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"github.com/mag1cfrog/stock-trading-bot/bitmap"
	"github.com/mag1cfrog/stock-trading-bot/bucket"
	"github.com/mag1cfrog/stock-trading-bot/database/sqlite"
	"github.com/mag1cfrog/stock-trading-bot/metrics"
	"github.com/mag1cfrog/stock-trading-bot/timeutil"
)

// ErrNotFound means no manifest exists with the referenced id.
var ErrNotFound = errors.New("manifest not found")

// IsNotFound reports whether err means a missing manifest.
func IsNotFound(err error) bool {
	return errors.Cause(err) == ErrNotFound
}

// Manifest is the durable record of one (symbol, provider, asset
// class, timeframe, desired range) tuple.
type Manifest struct {
	ID             int64
	Symbol         string
	ProviderCode   string
	AssetClassCode string
	Timeframe      bucket.Timeframe
	DesiredStart   time.Time
	DesiredEnd     *time.Time
	Watermark      *time.Time
	LastError      *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Upsert inserts the manifest for spec, or updates the desired range
// of the existing row with the same natural key. Watermark,
// last_error, and created_at are preserved on update. An empty
// coverage row at version 0 is materialized if absent. Returns the
// manifest id.
func Upsert(ctx context.Context, spec *AssetSpec) (int64, error) {
	defer metrics.RecordElapsed(time.Now())

	if err := spec.Validate(); err != nil {
		return 0, err
	}
	amount, unit := spec.timeframe().Columns()
	start, end := spec.DesiredRange()
	var endStr *string
	if end != nil {
		s := timeutil.ToRFC3339Millis(*end)
		endStr = &s
	}

	dbtx, txctx, err := sqlite.Begin(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "begin manifest upsert")
	}
	defer dbtx.Rollback(ctx)

	const q = `
		INSERT INTO asset_manifest
			(symbol, provider_code, asset_class_code, timeframe_amount, timeframe_unit,
			 desired_start, desired_end)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (symbol, provider_code, asset_class_code, timeframe_amount, timeframe_unit)
		DO UPDATE SET
			desired_start = excluded.desired_start,
			desired_end = excluded.desired_end,
			updated_at = strftime('%Y-%m-%dT%H:%M:%fZ','now')
		RETURNING id
	`
	var id int64
	err = sqlite.QueryRow(txctx, q,
		spec.Symbol,
		spec.Provider.Code(),
		spec.AssetClass.Code(),
		amount,
		unit,
		timeutil.ToRFC3339Millis(start),
		endStr,
	).Scan(&id)
	if err != nil {
		return 0, errors.Wrap(err, "upsert manifest")
	}

	const qc = `
		INSERT INTO asset_coverage_bitmap (manifest_id, bitmap, version)
		VALUES (?, ?, 0)
		ON CONFLICT (manifest_id) DO NOTHING
	`
	if _, err := sqlite.Exec(txctx, qc, id, bitmap.EmptyBytes()); err != nil {
		return 0, errors.Wrap(err, "materialize coverage row")
	}

	if err := dbtx.Commit(ctx); err != nil {
		return 0, errors.Wrap(err, "commit manifest upsert")
	}
	return id, nil
}

// Get loads one manifest by id.
func Get(ctx context.Context, id int64) (*Manifest, error) {
	const q = `
		SELECT id, symbol, provider_code, asset_class_code,
			timeframe_amount, timeframe_unit,
			desired_start, desired_end, watermark, last_error,
			created_at, updated_at
		FROM asset_manifest
		WHERE id = ?
	`
	m, err := scanManifest(sqlite.QueryRow(ctx, q, id))
	if err == sql.ErrNoRows {
		return nil, errors.WithMessagef(ErrNotFound, "manifest %d", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "load manifest %d", id)
	}
	return m, nil
}

// Find lists the manifests registered for a (symbol, provider, asset
// class) key, one per timeframe, ordered by id.
func Find(ctx context.Context, symbol, providerCode, assetClassCode string) ([]*Manifest, error) {
	const q = `
		SELECT id, symbol, provider_code, asset_class_code,
			timeframe_amount, timeframe_unit,
			desired_start, desired_end, watermark, last_error,
			created_at, updated_at
		FROM asset_manifest
		WHERE symbol = ? AND provider_code = ? AND asset_class_code = ?
		ORDER BY id
	`
	rows, err := sqlite.Query(ctx, q, symbol, providerCode, assetClassCode)
	if err != nil {
		return nil, errors.Wrap(err, "select manifests")
	}
	defer rows.Close()

	var out []*Manifest
	for rows.Next() {
		m, err := scanManifest(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan manifest")
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "end manifest scan")
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanManifest(r rowScanner) (*Manifest, error) {
	var (
		m         Manifest
		amount    int64
		unit      string
		start     string
		end       sql.NullString
		watermark sql.NullString
		lastError sql.NullString
		createdAt string
		updatedAt string
	)
	err := r.Scan(&m.ID, &m.Symbol, &m.ProviderCode, &m.AssetClassCode,
		&amount, &unit, &start, &end, &watermark, &lastError, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	m.Timeframe, err = bucket.TimeframeFromRow(amount, unit)
	if err != nil {
		return nil, err
	}
	m.DesiredStart, err = timeutil.ParseRFC3339UTC(start)
	if err != nil {
		return nil, err
	}
	if end.Valid {
		t, err := timeutil.ParseRFC3339UTC(end.String)
		if err != nil {
			return nil, err
		}
		m.DesiredEnd = &t
	}
	if watermark.Valid {
		t, err := timeutil.ParseRFC3339UTC(watermark.String)
		if err != nil {
			return nil, err
		}
		m.Watermark = &t
	}
	if lastError.Valid {
		s := lastError.String
		m.LastError = &s
	}
	m.CreatedAt, err = timeutil.ParseRFC3339UTC(createdAt)
	if err != nil {
		return nil, err
	}
	m.UpdatedAt, err = timeutil.ParseRFC3339UTC(updatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// SetWatermark records acquisition progress on the manifest.
func SetWatermark(ctx context.Context, id int64, watermark time.Time) error {
	const q = `
		UPDATE asset_manifest
		SET watermark = ?, updated_at = strftime('%Y-%m-%dT%H:%M:%fZ','now')
		WHERE id = ?
	`
	res, err := sqlite.Exec(ctx, q, timeutil.ToRFC3339Millis(watermark), id)
	if err != nil {
		return errors.Wrapf(err, "set watermark on manifest %d", id)
	}
	return errNotFoundIfZero(res, id)
}

// SetLastError records the most recent acquisition failure on the
// manifest.
func SetLastError(ctx context.Context, id int64, msg string) error {
	const q = `
		UPDATE asset_manifest
		SET last_error = ?, updated_at = strftime('%Y-%m-%dT%H:%M:%fZ','now')
		WHERE id = ?
	`
	res, err := sqlite.Exec(ctx, q, msg, id)
	if err != nil {
		return errors.Wrapf(err, "set last error on manifest %d", id)
	}
	return errNotFoundIfZero(res, id)
}

// loadTimeframe reads just the timeframe columns of a manifest.
func loadTimeframe(ctx context.Context, id int64) (bucket.Timeframe, error) {
	const q = `SELECT timeframe_amount, timeframe_unit FROM asset_manifest WHERE id = ?`
	var (
		amount int64
		unit   string
	)
	err := sqlite.QueryRow(ctx, q, id).Scan(&amount, &unit)
	if err == sql.ErrNoRows {
		return bucket.Timeframe{}, errors.WithMessagef(ErrNotFound, "manifest %d", id)
	}
	if err != nil {
		return bucket.Timeframe{}, errors.Wrapf(err, "load timeframe for manifest %d", id)
	}
	return bucket.TimeframeFromRow(amount, unit)
}

func errNotFoundIfZero(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected")
	}
	if n == 0 {
		return errors.WithMessagef(ErrNotFound, "manifest %d", id)
	}
	return nil
}
