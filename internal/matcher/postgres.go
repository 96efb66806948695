// Package matcher calls the server-side PostGIS filter functions. The matching
// itself lives in the database; this package only binds canonical filters to
// the functions' positional parameters and streams their output.
package matcher

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"geo-export-service/internal/apperr"
	"geo-export-service/internal/filters"
)

// filterArgs is the shared parameter list of both functions. The selection is
// GeoJSON in EPSG:4326 and is reprojected to the dataset's EPSG:3857 here.
const filterArgs = `
    $1::text[],   -- materials
    $2::text[],   -- movements
    $3::text[],   -- confidences
    $4::float8,   -- pga_min
    $5::float8,   -- pga_max
    $6::float8,   -- pgv_min
    $7::float8,   -- pgv_max
    $8::float8,   -- psa03_min
    $9::float8,   -- psa03_max
    $10::float8,  -- mmi_min
    $11::float8,  -- mmi_max
    $12::float8,  -- tol_pga
    $13::float8,  -- tol_pgv
    $14::float8,  -- tol_psa03
    $15::float8,  -- tol_mmi
    $16::float8,  -- rain_min
    $17::float8,  -- rain_max
    $18::float8,  -- tol_rain
    CASE
        WHEN $19::text IS NULL THEN NULL::geometry
        ELSE ST_Transform(ST_SetSRID(ST_GeomFromGeoJSON($19::text), 4326), 3857)
    END`

type Postgres struct {
	pool     *pgxpool.Pool
	countSQL string
	export   string
}

// NewPostgres takes qualified function names such as "landslide_v2.lsviewer_filtered_ids".
func NewPostgres(pool *pgxpool.Pool, countFunction, exportFunction string) (*Postgres, error) {
	countFn, err := identifier(countFunction)
	if err != nil {
		return nil, err
	}
	exportFn, err := identifier(exportFunction)
	if err != nil {
		return nil, err
	}

	return &Postgres{
		pool:     pool,
		countSQL: fmt.Sprintf("SELECT COUNT(*) FROM %s(%s\n);", countFn, filterArgs),
		export:   fmt.Sprintf("SELECT %s(%s,\n    $20::int\n) AS feature;", exportFn, filterArgs),
	}, nil
}

func (m *Postgres) Count(ctx context.Context, f filters.Filters) (int64, error) {
	var n int64
	if err := m.pool.QueryRow(ctx, m.countSQL, args(f)...).Scan(&n); err != nil {
		return 0, classify(err)
	}
	return n, nil
}

// Stream calls fn once per serialized feature, in the order the database returns
// them. limit > 0 is passed to the function as its row cap; 0 means none.
// Errors returned by fn are passed through unchanged.
func (m *Postgres) Stream(ctx context.Context, f filters.Filters, limit int, fn func(feature []byte) error) error {
	var capArg *int
	if limit > 0 {
		capArg = &limit
	}

	rows, err := m.pool.Query(ctx, m.export, append(args(f), capArg)...)
	if err != nil {
		return classify(err)
	}
	defer rows.Close()

	for rows.Next() {
		var feature []byte
		if err := rows.Scan(&feature); err != nil {
			return classify(err)
		}
		if len(feature) == 0 {
			continue
		}
		if err := fn(feature); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return classify(err)
	}
	return nil
}

func args(f filters.Filters) []any {
	return []any{
		f.Materials,
		f.Movements,
		f.Confidences,
		f.PGAMin,
		f.PGAMax,
		f.PGVMin,
		f.PGVMax,
		f.PSA03Min,
		f.PSA03Max,
		f.MMIMin,
		f.MMIMax,
		f.TolPGA,
		f.TolPGV,
		f.TolPSA03,
		f.TolMMI,
		f.RainMin,
		f.RainMax,
		f.TolRain,
		f.SelectionGeoJSON,
	}
}

// classify marks SQL errors (bad geometry, bad arguments) as caller-correctable
// and connection-level failures as transient. Only the server's own message is
// ever shown to the client.
func classify(err error) error {
	var pgErr *pgconn.PgError
	switch {
	case errors.As(err, &pgErr):
		e := apperr.Upstream(err)
		e.Detail = pgErr.Message
		return e
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return apperr.Unavailable(err, false)
	default:
		return apperr.Unavailable(err, true)
	}
}

func identifier(qualified string) (string, error) {
	parts := strings.Split(strings.TrimSpace(qualified), ".")
	for _, p := range parts {
		if p == "" {
			return "", fmt.Errorf("invalid function name %q", qualified)
		}
	}
	return pgx.Identifier(parts).Sanitize(), nil
}
