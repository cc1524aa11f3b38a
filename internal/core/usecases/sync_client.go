package usecases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/samirrijal/shotengai/internal/core/domain"
	"github.com/samirrijal/shotengai/internal/core/geometry"
	"github.com/samirrijal/shotengai/internal/core/ports"
	"github.com/samirrijal/shotengai/internal/pkg/metrics"
	"github.com/samirrijal/shotengai/internal/pkg/telemetry"
)

const (
	opSave           = "save"
	opUpdateGeometry = "update_geometry"
	opDelete         = "delete"
	opFetch          = "fetch"
)

// SyncClient pushes local edits to the remote store. It holds no feature
// state of its own; callers apply acks to their FeatureStore.
type SyncClient struct {
	store         ports.RemoteStore
	locks         *keyedLock
	fixTransposed bool
	log           *slog.Logger
	tracer        trace.Tracer
}

// SyncOption configures a SyncClient.
type SyncOption func(*SyncClient)

// WithTransposeFix swaps (lat, lon) pairs that look transposed on Fetch.
// The heuristic can be wrong near ±90° longitude; every swap is logged.
func WithTransposeFix(enabled bool) SyncOption {
	return func(c *SyncClient) { c.fixTransposed = enabled }
}

// WithSyncLogger overrides the default logger.
func WithSyncLogger(l *slog.Logger) SyncOption {
	return func(c *SyncClient) { c.log = l }
}

// NewSyncClient creates a new SyncClient over store.
func NewSyncClient(store ports.RemoteStore, opts ...SyncOption) *SyncClient {
	c := &SyncClient{
		store:  store,
		locks:  newKeyedLock(),
		log:    slog.Default(),
		tracer: telemetry.Tracer(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Save creates the feature when it has no ID yet, otherwise replaces its
// attributes and geometry. Writes for the same ID are issued one at a time.
func (c *SyncClient) Save(ctx context.Context, f domain.Feature) (domain.ServerAck, error) {
	ctx, span := c.tracer.Start(ctx, telemetry.SpanSyncSave, trace.WithAttributes(
		telemetry.AttrFeatureID.String(f.ID),
		telemetry.AttrSegments.Int(len(f.Geometry)),
	))
	defer span.End()

	wkt, err := geometry.ToWKT(f.Geometry)
	if err != nil {
		span.RecordError(err)
		return domain.ServerAck{}, err
	}

	var id *string
	if f.ID != "" {
		release, err := c.acquire(ctx, opSave, f.ID)
		if err != nil {
			return domain.ServerAck{}, c.fail(span, opSave, f.ID, err)
		}
		defer release()
		fid := f.ID
		id = &fid
	}

	start := time.Now()
	ack, err := c.store.Upsert(ctx, id, geometry.EWKT(wkt), f.Attributes.Clone())
	metrics.SyncWriteDuration.WithLabelValues(opSave).Observe(time.Since(start).Seconds())
	if err != nil {
		return domain.ServerAck{}, c.fail(span, opSave, f.ID, err)
	}
	if ack.ID == "" {
		return domain.ServerAck{}, c.fail(span, opSave, f.ID, fmt.Errorf("%w: empty id in ack", domain.ErrRejected))
	}

	metrics.SyncWrites.WithLabelValues(opSave, "ok").Inc()
	c.log.DebugContext(ctx, "feature saved", "id", ack.ID, "created", f.ID == "")
	return ack, nil
}

// UpdateGeometryOnly replaces the geometry of an existing feature without
// resending its attributes.
func (c *SyncClient) UpdateGeometryOnly(ctx context.Context, id string, g geometry.LineGeometry) error {
	ctx, span := c.tracer.Start(ctx, telemetry.SpanSyncUpdateGeometry, trace.WithAttributes(
		telemetry.AttrFeatureID.String(id),
	))
	defer span.End()

	if id == "" {
		return c.fail(span, opUpdateGeometry, id, fmt.Errorf("%w: missing feature id", domain.ErrRejected))
	}
	wkt, err := geometry.ToWKT(g)
	if err != nil {
		span.RecordError(err)
		return err
	}

	release, err := c.acquire(ctx, opUpdateGeometry, id)
	if err != nil {
		return c.fail(span, opUpdateGeometry, id, err)
	}
	defer release()

	start := time.Now()
	err = c.store.UpdateGeometry(ctx, id, geometry.EWKT(wkt))
	metrics.SyncWriteDuration.WithLabelValues(opUpdateGeometry).Observe(time.Since(start).Seconds())
	if err != nil {
		return c.fail(span, opUpdateGeometry, id, err)
	}

	metrics.SyncWrites.WithLabelValues(opUpdateGeometry, "ok").Inc()
	c.log.DebugContext(ctx, "feature geometry updated", "id", id)
	return nil
}

// Delete removes a feature from the store.
func (c *SyncClient) Delete(ctx context.Context, id string) error {
	ctx, span := c.tracer.Start(ctx, telemetry.SpanSyncDelete, trace.WithAttributes(
		telemetry.AttrFeatureID.String(id),
	))
	defer span.End()

	if id == "" {
		return c.fail(span, opDelete, id, fmt.Errorf("%w: missing feature id", domain.ErrRejected))
	}

	release, err := c.acquire(ctx, opDelete, id)
	if err != nil {
		return c.fail(span, opDelete, id, err)
	}
	defer release()

	start := time.Now()
	err = c.store.Delete(ctx, id)
	metrics.SyncWriteDuration.WithLabelValues(opDelete).Observe(time.Since(start).Seconds())
	if err != nil {
		return c.fail(span, opDelete, id, err)
	}

	metrics.SyncWrites.WithLabelValues(opDelete, "ok").Inc()
	c.log.DebugContext(ctx, "feature deleted", "id", id)
	return nil
}

// Fetch loads every feature from the store's read path. Rows whose geometry
// is not a valid line are skipped and logged.
func (c *SyncClient) Fetch(ctx context.Context) ([]domain.Feature, error) {
	ctx, span := c.tracer.Start(ctx, telemetry.SpanSyncFetch)
	defer span.End()

	rows, err := c.store.ListAll(ctx)
	if err != nil {
		return nil, c.fail(span, opFetch, "", err)
	}

	out := make([]domain.Feature, 0, len(rows))
	for _, r := range rows {
		g, err := geometry.FromGeoJSONLike(r.GeometryGeo)
		if err != nil {
			c.log.WarnContext(ctx, "skipping feature with unreadable geometry", "id", r.ID, "error", err)
			continue
		}
		if c.fixTransposed {
			g, _ = geometry.FixTransposed(g, c.log.With("id", r.ID))
		}
		m, err := geometry.Normalize(g)
		if err == nil {
			err = m.Validate()
		}
		if err != nil {
			c.log.WarnContext(ctx, "skipping feature with invalid geometry", "id", r.ID, "error", err)
			continue
		}
		out = append(out, domain.Feature{
			ID:         r.ID,
			Attributes: r.Attributes.Clone(),
			Geometry:   m,
			UpdatedAt:  r.UpdatedAt,
		})
	}

	span.SetAttributes(attribute.Int("shotengai.features", len(out)))
	return out, nil
}

func (c *SyncClient) acquire(ctx context.Context, op, id string) (func(), error) {
	release, waited, err := c.locks.acquire(ctx, id)
	if waited {
		metrics.SyncQueuedWrites.Inc()
		c.log.DebugContext(ctx, "write queued behind in-flight write", "op", op, "id", id)
	}
	return release, err
}

func (c *SyncClient) fail(span trace.Span, op, id string, err error) error {
	se := classify(op, id, err)
	metrics.SyncWrites.WithLabelValues(op, se.Kind.String()).Inc()
	span.RecordError(se)
	span.SetStatus(codes.Error, se.Kind.String())
	span.SetAttributes(
		telemetry.AttrSyncOp.String(op),
		telemetry.AttrSyncKind.String(se.Kind.String()),
	)
	c.log.Warn("sync failed", "op", op, "id", id, "kind", se.Kind.String(), "error", err)
	return se
}

// classify maps store and transport errors onto SyncError. Anything the
// store did not explicitly refuse is treated as a transport failure.
func classify(op, id string, err error) *domain.SyncError {
	var se *domain.SyncError
	if errors.As(err, &se) {
		return se
	}
	kind := domain.SyncTransport
	if errors.Is(err, domain.ErrRejected) || errors.Is(err, domain.ErrNotFound) {
		kind = domain.SyncRejected
	}
	return &domain.SyncError{Kind: kind, Op: op, ID: id, Err: err}
}

// keyedLock admits one holder per key; later callers wait for release.
type keyedLock struct {
	mu      sync.Mutex
	holders map[string]chan struct{}
}

func newKeyedLock() *keyedLock {
	return &keyedLock{holders: make(map[string]chan struct{})}
}

func (l *keyedLock) acquire(ctx context.Context, key string) (release func(), waited bool, err error) {
	for {
		l.mu.Lock()
		done, busy := l.holders[key]
		if !busy {
			ch := make(chan struct{})
			l.holders[key] = ch
			l.mu.Unlock()
			return func() {
				l.mu.Lock()
				delete(l.holders, key)
				l.mu.Unlock()
				close(ch)
			}, waited, nil
		}
		l.mu.Unlock()

		waited = true
		select {
		case <-done:
		case <-ctx.Done():
			return func() {}, waited, ctx.Err()
		}
	}
}
