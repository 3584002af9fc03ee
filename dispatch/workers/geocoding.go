package workers

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"go.fieldcore.build/dispatch/schema"
	"go.fieldcore.build/go/skerr"
	"go.fieldcore.build/go/sklog"
)

const geocodingBatchSize = 10
const geocodingMaxRetries = 3
const geocodingInterCallDelay = 100 * time.Millisecond

// Coordinates is a resolved lat/lng pair.
type Coordinates struct {
	Lat float64
	Lng float64
}

// Geocoder resolves a street address to coordinates. The production
// implementation calls an external geocoding provider; returns an error
// if the address cannot be resolved.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (Coordinates, error)
}

type geocodeTarget struct {
	table    string
	idColumn string
	id       string
	address  string
	retries  int
}

// GeocodingWorker resolves pending addresses across jobs, customers, and
// customer_locations (spec.md §4.8).
type GeocodingWorker struct {
	pool     *pgxpool.Pool
	geocoder Geocoder
}

func NewGeocodingWorker(pool *pgxpool.Pool, geocoder Geocoder) *GeocodingWorker {
	return &GeocodingWorker{pool: pool, geocoder: geocoder}
}

// Tick claims up to geocodingBatchSize pending/retryable rows across all
// three geocodable tables and resolves each in turn, pausing
// geocodingInterCallDelay between provider calls. A single address's
// failure never aborts the batch; it is recorded as schema.GeocodingFailed
// (or kept schema.GeocodingPending for another attempt, per retry count)
// and the worker continues (spec.md §4.8).
func (w *GeocodingWorker) Tick(ctx context.Context) error {
	targets, err := w.claim(ctx)
	if err != nil {
		return err
	}
	for i, t := range targets {
		if i > 0 {
			time.Sleep(geocodingInterCallDelay)
		}
		w.resolveOne(ctx, t)
	}
	return nil
}

// claimFrom claims up to limit pending/under-retry-budget rows from one
// geocodable table, all three of which share the same
// (geocoding_status, geocoding_retries) shape.
func (w *GeocodingWorker) claimFrom(ctx context.Context, table, idColumn, addressColumn string, limit int) ([]geocodeTarget, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := w.pool.Query(ctx, `
		SELECT `+idColumn+`, `+addressColumn+`, geocoding_retries FROM `+table+`
		WHERE geocoding_status=$1 AND geocoding_retries < $2
		LIMIT $3`, schema.GeocodingPending, geocodingMaxRetries, limit)
	if err != nil {
		return nil, skerr.Wrap(err)
	}
	defer rows.Close()
	var out []geocodeTarget
	for rows.Next() {
		var id, addr string
		var retries int
		if err := rows.Scan(&id, &addr, &retries); err != nil {
			return nil, skerr.Wrap(err)
		}
		out = append(out, geocodeTarget{table: table, idColumn: idColumn, id: id, address: addr, retries: retries})
	}
	return out, rows.Err()
}

func (w *GeocodingWorker) claim(ctx context.Context) ([]geocodeTarget, error) {
	var out []geocodeTarget

	jobTargets, err := w.claimFrom(ctx, "jobs", "job_id", "address", geocodingBatchSize)
	if err != nil {
		return nil, err
	}
	out = append(out, jobTargets...)
	if len(out) >= geocodingBatchSize {
		return out, nil
	}

	customerTargets, err := w.claimFrom(ctx, "customers", "customer_id", "address", geocodingBatchSize-len(out))
	if err != nil {
		return nil, err
	}
	out = append(out, customerTargets...)
	if len(out) >= geocodingBatchSize {
		return out, nil
	}

	locationTargets, err := w.claimFrom(ctx, "customer_locations", "location_id", "address", geocodingBatchSize-len(out))
	if err != nil {
		return nil, err
	}
	out = append(out, locationTargets...)
	return out, nil
}

func (w *GeocodingWorker) resolveOne(ctx context.Context, t geocodeTarget) {
	coords, err := w.geocoder.Geocode(ctx, t.address)
	if err != nil {
		sklog.Warningf("geocoding %s %s failed: %s", t.table, t.id, err)
		w.markFailed(ctx, t)
		return
	}
	_, err = w.pool.Exec(ctx, `
		UPDATE `+t.table+` SET latitude=$1, longitude=$2, geocoding_status=$3
		WHERE `+t.idColumn+`=$4`, coords.Lat, coords.Lng, schema.GeocodingComplete, t.id)
	if err != nil {
		sklog.Warningf("writing geocoding result for %s %s: %s", t.table, t.id, err)
	}
}

// markFailed increments t's retry count; once it reaches
// geocodingMaxRetries the row's status becomes schema.GeocodingFailed,
// otherwise it stays schema.GeocodingPending so a later Tick retries it.
func (w *GeocodingWorker) markFailed(ctx context.Context, t geocodeTarget) {
	status := schema.GeocodingPending
	if t.retries+1 >= geocodingMaxRetries {
		status = schema.GeocodingFailed
	}
	if _, err := w.pool.Exec(ctx, `
		UPDATE `+t.table+` SET geocoding_status=$1, geocoding_retries=geocoding_retries+1
		WHERE `+t.idColumn+`=$2`, status, t.id); err != nil {
		sklog.Warningf("marking %s %s geocoding retry: %s", t.table, t.id, err)
	}
}
