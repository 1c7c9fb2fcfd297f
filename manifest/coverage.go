package manifest

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/pkg/errors"

	"github.com/mag1cfrog/stock-trading-bot/bitmap"
	"github.com/mag1cfrog/stock-trading-bot/database/sqlite"
	"github.com/mag1cfrog/stock-trading-bot/metrics"
)

// CoverageConflictError is returned by CoveragePut when no coverage
// row matched the expected version: either another writer advanced it
// first, or the manifest does not exist.
type CoverageConflictError struct {
	Expected int64
}

func (e *CoverageConflictError) Error() string {
	return fmt.Sprintf("coverage version conflict (expected %d)", e.Expected)
}

// CoverageGet reads the coverage bitmap and version for a manifest.
// A missing row reads as the empty set at version 0.
func CoverageGet(ctx context.Context, manifestID int64) (*roaring.Bitmap, int64, error) {
	defer metrics.RecordElapsed(time.Now())

	const q = `SELECT bitmap, version FROM asset_coverage_bitmap WHERE manifest_id = ?`
	var (
		blob    []byte
		version int64
	)
	err := sqlite.QueryRow(ctx, q, manifestID).Scan(&blob, &version)
	if err == sql.ErrNoRows {
		return roaring.New(), 0, nil
	}
	if err != nil {
		return nil, 0, errors.Wrapf(err, "load coverage for manifest %d", manifestID)
	}
	rb, err := bitmap.FromBytes(blob)
	if err != nil {
		return nil, 0, errors.Wrapf(err, "coverage blob for manifest %d", manifestID)
	}
	return rb, version, nil
}

// CoveragePut writes the bitmap, advancing the row's version from
// expectedVersion to expectedVersion+1. Exactly one writer at a given
// expected version succeeds; everyone else gets
// *CoverageConflictError and the row is untouched. Returns the new
// version.
func CoveragePut(ctx context.Context, manifestID int64, rb *roaring.Bitmap, expectedVersion int64) (int64, error) {
	defer metrics.RecordElapsed(time.Now())

	blob, err := bitmap.ToBytes(rb)
	if err != nil {
		return 0, err
	}

	const q = `
		UPDATE asset_coverage_bitmap
		SET bitmap = ?, version = version + 1
		WHERE manifest_id = ? AND version = ?
		RETURNING version
	`
	var newVersion int64
	err = sqlite.QueryRow(ctx, q, blob, manifestID, expectedVersion).Scan(&newVersion)
	if err == sql.ErrNoRows {
		return 0, &CoverageConflictError{Expected: expectedVersion}
	}
	if err != nil {
		return 0, errors.Wrapf(err, "put coverage for manifest %d", manifestID)
	}
	return newVersion, nil
}
