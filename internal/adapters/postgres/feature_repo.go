package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/samirrijal/shotengai/internal/core/domain"
)

// FeatureRepo implements ports.FeatureRepository on the PostGIS shotengai table.
type FeatureRepo struct {
	db *DB
}

// NewFeatureRepo creates a new FeatureRepo.
func NewFeatureRepo(db *DB) *FeatureRepo {
	return &FeatureRepo{db: db}
}

// Upsert inserts a feature when id is nil, otherwise replaces the attributes
// and geometry of the existing row. props.last_update is stamped on every write.
func (r *FeatureRepo) Upsert(ctx context.Context, id *string, geometryEWKT string, attrs domain.Attributes) (domain.ServerAck, error) {
	if attrs == nil {
		attrs = domain.Attributes{}
	}

	var ack domain.ServerAck
	var err error
	if id == nil {
		err = r.db.Pool.QueryRow(ctx, `
			INSERT INTO shotengai (props, geom, updated_at)
			VALUES ($2::jsonb || jsonb_build_object('last_update', now()),
			        ST_Multi(ST_GeomFromEWKT($1)), now())
			RETURNING id::text, updated_at
		`, geometryEWKT, attrs).Scan(&ack.ID, &ack.UpdatedAt)
	} else {
		err = r.db.Pool.QueryRow(ctx, `
			UPDATE shotengai
			SET props = $3::jsonb || jsonb_build_object('last_update', now()),
			    geom = ST_Multi(ST_GeomFromEWKT($2)),
			    updated_at = now()
			WHERE id = $1
			RETURNING id::text, updated_at
		`, *id, geometryEWKT, attrs).Scan(&ack.ID, &ack.UpdatedAt)
	}
	if err != nil {
		return domain.ServerAck{}, mapError(err)
	}
	return ack, nil
}

// UpdateGeometry replaces only the geometry.
func (r *FeatureRepo) UpdateGeometry(ctx context.Context, id string, geometryEWKT string) (domain.ServerAck, error) {
	var ack domain.ServerAck
	err := r.db.Pool.QueryRow(ctx, `
		UPDATE shotengai
		SET geom = ST_Multi(ST_GeomFromEWKT($2)),
		    props = props || jsonb_build_object('last_update', now()),
		    updated_at = now()
		WHERE id = $1
		RETURNING id::text, updated_at
	`, id, geometryEWKT).Scan(&ack.ID, &ack.UpdatedAt)
	if err != nil {
		return domain.ServerAck{}, mapError(err)
	}
	return ack, nil
}

// MergeAttributes overlays attrs on the stored attribute bag.
func (r *FeatureRepo) MergeAttributes(ctx context.Context, id string, attrs domain.Attributes) error {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE shotengai SET props = props || $2::jsonb WHERE id = $1
	`, id, attrs)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Delete removes a feature.
func (r *FeatureRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM shotengai WHERE id = $1`, id)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// GetByID returns one feature with its geometry as GeoJSON.
func (r *FeatureRepo) GetByID(ctx context.Context, id string) (*domain.StoredFeature, error) {
	var f domain.StoredFeature
	var geo string
	err := r.db.Pool.QueryRow(ctx, `
		SELECT id::text, COALESCE(props, '{}'::jsonb), ST_AsGeoJSON(geom), updated_at
		FROM shotengai WHERE id = $1
	`, id).Scan(&f.ID, &f.Attributes, &geo, &f.UpdatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	f.GeometryGeo = []byte(geo)
	return &f, nil
}

// ListAll returns every feature ordered by id.
func (r *FeatureRepo) ListAll(ctx context.Context) ([]domain.StoredFeature, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id::text, COALESCE(props, '{}'::jsonb), ST_AsGeoJSON(geom), updated_at
		FROM shotengai
		WHERE geom IS NOT NULL
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.StoredFeature
	for rows.Next() {
		var f domain.StoredFeature
		var geo string
		if err := rows.Scan(&f.ID, &f.Attributes, &geo, &f.UpdatedAt); err != nil {
			return nil, err
		}
		f.GeometryGeo = []byte(geo)
		out = append(out, f)
	}
	return out, rows.Err()
}

// Count returns the number of rows.
func (r *FeatureRepo) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.Pool.QueryRow(ctx, `SELECT count(*) FROM shotengai`).Scan(&n)
	return n, err
}

// mapError turns a missing row into domain.ErrNotFound and data or constraint
// errors (including PostGIS geometry parse failures) into domain.ErrRejected.
// Everything else is returned unchanged.
func mapError(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case strings.HasPrefix(pgErr.Code, "22"), strings.HasPrefix(pgErr.Code, "23"), pgErr.Code == "XX000":
			return fmt.Errorf("%w: %s", domain.ErrRejected, pgErr.Message)
		}
	}
	return err
}
