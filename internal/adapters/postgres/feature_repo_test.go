package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/samirrijal/shotengai/internal/core/domain"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"no rows", pgx.ErrNoRows, domain.ErrNotFound},
		{"invalid uuid", &pgconn.PgError{Code: "22P02", Message: "invalid input syntax for type uuid"}, domain.ErrRejected},
		{"check violation", &pgconn.PgError{Code: "23514", Message: "enforce_geotype_geom"}, domain.ErrRejected},
		{"postgis parse", &pgconn.PgError{Code: "XX000", Message: "parse error - invalid geometry"}, domain.ErrRejected},
		{"connection", &pgconn.PgError{Code: "08006", Message: "connection failure"}, nil},
		{"timeout", context.DeadlineExceeded, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mapError(tt.err)
			if tt.want == nil {
				if errors.Is(got, domain.ErrRejected) || errors.Is(got, domain.ErrNotFound) {
					t.Errorf("expected error to pass through, got %v", got)
				}
				return
			}
			if !errors.Is(got, tt.want) {
				t.Errorf("mapError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
