package editor

import (
	"context"
	"log/slog"
	"sync"

	"github.com/paulmach/orb"

	"github.com/samirrijal/shotengai/internal/core/domain"
	"github.com/samirrijal/shotengai/internal/core/featurestore"
	"github.com/samirrijal/shotengai/internal/core/geometry"
	"github.com/samirrijal/shotengai/internal/core/snap"
	"github.com/samirrijal/shotengai/internal/pkg/metrics"
)

// Syncer is the remote side of the editor. usecases.SyncClient implements it.
type Syncer interface {
	Save(ctx context.Context, f domain.Feature) (domain.ServerAck, error)
	UpdateGeometryOnly(ctx context.Context, id string, g geometry.LineGeometry) error
	Delete(ctx context.Context, id string) error
	Fetch(ctx context.Context) ([]domain.Feature, error)
}

const maxRefreshAttempts = 3

// Editor owns at most one edit session and is the only writer of its
// FeatureStore. All methods are safe for concurrent use; the lock is not held
// across network calls, during which the session reports Saving.
type Editor struct {
	mu       sync.Mutex
	store    *featurestore.Store
	sync     Syncer
	canWrite func() bool
	observer func(Snapshot)
	log      *slog.Logger

	sess *session
	// deleting is the id of a feature whose delete is in flight.
	deleting string
	// gen counts FeatureStore mutations; a refresh applies only if it is
	// unchanged across the fetch.
	gen uint64
}

// Option configures an Editor.
type Option func(*Editor)

// WithCapability sets the "current actor may write" check. Without it every
// write is allowed.
func WithCapability(canWrite func() bool) Option {
	return func(e *Editor) { e.canWrite = canWrite }
}

// WithObserver registers a callback run after every state change. It is
// called outside the editor lock and may call back into the Editor.
func WithObserver(fn func(Snapshot)) Option {
	return func(e *Editor) { e.observer = fn }
}

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Editor) { e.log = l }
}

// New creates an Editor over store, writing through syncer.
func New(store *featurestore.Store, syncer Syncer, opts ...Option) *Editor {
	e := &Editor{
		store:    store,
		sync:     syncer,
		canWrite: func() bool { return true },
		log:      slog.Default(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Store returns the editor's feature store.
func (e *Editor) Store() *featurestore.Store { return e.store }

// Snapshot returns a copy of the current session.
func (e *Editor) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sess.snapshot()
}

// State returns the current session state.
func (e *Editor) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sess == nil {
		return Idle
	}
	return e.sess.state
}

// StartDrawing opens a session for a new feature.
func (e *Editor) StartDrawing() error {
	e.mu.Lock()
	if err := e.canStart(); err != nil {
		e.mu.Unlock()
		return err
	}
	e.sess = &session{state: Drawing, mode: ModeCreate}
	view := e.opened()
	e.mu.Unlock()

	e.notify(view)
	return nil
}

// StartEditing opens a reshape session on an existing feature. Its segments
// are flattened into one editable vertex list.
func (e *Editor) StartEditing(id string) error {
	e.mu.Lock()
	if err := e.canStart(); err != nil {
		e.mu.Unlock()
		return err
	}
	f, ok := e.store.Get(id)
	if !ok {
		e.mu.Unlock()
		return domain.ErrNotFound
	}
	if len(f.Geometry) > 1 {
		e.log.Info("flattening multi-segment feature for editing", "id", id, "segments", len(f.Geometry))
	}
	e.sess = &session{
		state:    EditingExisting,
		mode:     ModeReshape,
		targetID: id,
		target:   f.Geometry,
		working:  orb.LineString(geometry.Flatten(f.Geometry)),
	}
	view := e.opened()
	e.mu.Unlock()

	e.notify(view)
	return nil
}

// StartExtending opens a drawing session whose arc is appended to an
// existing feature on commit.
func (e *Editor) StartExtending(id string) error {
	e.mu.Lock()
	if err := e.canStart(); err != nil {
		e.mu.Unlock()
		return err
	}
	f, ok := e.store.Get(id)
	if !ok {
		e.mu.Unlock()
		return domain.ErrNotFound
	}
	e.sess = &session{
		state:    Drawing,
		mode:     ModeExtend,
		targetID: id,
		target:   f.Geometry,
	}
	view := e.opened()
	e.mu.Unlock()

	e.notify(view)
	return nil
}

// AddVertex appends the pointer position, snapped to a nearby vertex of
// another feature, to the working list.
func (e *Editor) AddVertex(proj snap.Projector, screen orb.Point) (orb.Point, error) {
	e.mu.Lock()
	if err := e.editable(); err != nil {
		e.mu.Unlock()
		return orb.Point{}, err
	}
	p := e.place(proj, screen)
	e.sess.working = append(e.sess.working, p)
	view := e.sess.snapshot()
	e.mu.Unlock()

	e.notify(view)
	return p, nil
}

// InsertVertex places a vertex before index i; i == len inserts at the end.
func (e *Editor) InsertVertex(proj snap.Projector, i int, screen orb.Point) (orb.Point, error) {
	e.mu.Lock()
	if err := e.editable(); err != nil {
		e.mu.Unlock()
		return orb.Point{}, err
	}
	if i < 0 || i > len(e.sess.working) {
		e.mu.Unlock()
		return orb.Point{}, ErrVertexIndex
	}
	p := e.place(proj, screen)
	w := make(orb.LineString, 0, len(e.sess.working)+1)
	w = append(w, e.sess.working[:i]...)
	w = append(w, p)
	w = append(w, e.sess.working[i:]...)
	e.sess.working = w
	view := e.sess.snapshot()
	e.mu.Unlock()

	e.notify(view)
	return p, nil
}

// MoveVertex drags vertex i to the pointer position.
func (e *Editor) MoveVertex(proj snap.Projector, i int, screen orb.Point) (orb.Point, error) {
	e.mu.Lock()
	if err := e.editable(); err != nil {
		e.mu.Unlock()
		return orb.Point{}, err
	}
	if i < 0 || i >= len(e.sess.working) {
		e.mu.Unlock()
		return orb.Point{}, ErrVertexIndex
	}
	p := e.place(proj, screen)
	e.sess.working[i] = p
	view := e.sess.snapshot()
	e.mu.Unlock()

	e.notify(view)
	return p, nil
}

// DeleteVertex removes vertex i.
func (e *Editor) DeleteVertex(i int) error {
	e.mu.Lock()
	if err := e.editable(); err != nil {
		e.mu.Unlock()
		return err
	}
	if i < 0 || i >= len(e.sess.working) {
		e.mu.Unlock()
		return ErrVertexIndex
	}
	e.sess.working = append(e.sess.working[:i:i], e.sess.working[i+1:]...)
	view := e.sess.snapshot()
	e.mu.Unlock()

	e.notify(view)
	return nil
}

// BreakSegment finishes the current arc of a new drawing and starts another.
// The feature is saved as one MultiLine of every arc.
func (e *Editor) BreakSegment() error {
	e.mu.Lock()
	if err := e.editable(); err != nil {
		e.mu.Unlock()
		return err
	}
	if e.sess.state != Drawing || e.sess.mode != ModeCreate {
		e.mu.Unlock()
		return ErrNotDrawing
	}
	if len(e.sess.working) < 2 {
		e.mu.Unlock()
		return geometry.ErrInsufficientVertices
	}
	e.sess.arcs = append(e.sess.arcs, e.sess.working)
	e.sess.working = nil
	view := e.sess.snapshot()
	e.mu.Unlock()

	e.notify(view)
	return nil
}

// Hover reports the vertex a click at screen would snap to, without
// changing anything.
func (e *Editor) Hover(proj snap.Projector, screen orb.Point) (snap.Candidate, bool) {
	e.mu.Lock()
	exclude := e.sess.excludeID()
	e.mu.Unlock()

	return snap.Build(e.store.All()).Nearest(proj, screen, exclude)
}

// Commit sends the session's geometry to the store. attrs are merged over
// the feature's attributes; a reshape without attrs only sends geometry.
// On success the FeatureStore is updated and the session closes. On failure
// the session returns to the state it was committed from and the error is
// returned unchanged.
func (e *Editor) Commit(ctx context.Context, attrs domain.Attributes) (domain.Feature, error) {
	e.mu.Lock()
	s := e.sess
	if s == nil {
		e.mu.Unlock()
		return domain.Feature{}, ErrNoSession
	}
	if s.state == Saving {
		e.mu.Unlock()
		return domain.Feature{}, ErrSaving
	}
	if !e.canWrite() {
		e.mu.Unlock()
		return domain.Feature{}, domain.ErrForbidden
	}
	g, err := s.result()
	if err != nil {
		e.mu.Unlock()
		return domain.Feature{}, err
	}
	existing, _ := e.store.Get(s.targetID)
	s.resume = s.state
	s.state = Saving
	saving := s.snapshot()
	e.mu.Unlock()

	e.notify(saving)

	f, err := e.write(ctx, s, g, existing, attrs)

	e.mu.Lock()
	if err != nil {
		s.state = s.resume
		after := s.snapshot()
		e.mu.Unlock()

		e.log.WarnContext(ctx, "commit failed", "mode", s.mode.String(), "id", s.targetID, "error", err)
		e.notify(after)
		return domain.Feature{}, err
	}
	e.store.Upsert(f)
	e.gen++
	e.sess = nil
	metrics.ActiveEditSessions.Dec()
	metrics.EditSessions.WithLabelValues("committed").Inc()
	after := e.sess.snapshot()
	e.mu.Unlock()

	e.log.InfoContext(ctx, "feature committed", "mode", s.mode.String(), "id", f.ID, "segments", len(f.Geometry))
	e.notify(after)
	return f.Clone(), nil
}

func (e *Editor) write(ctx context.Context, s *session, g geometry.MultiLine, existing domain.Feature, attrs domain.Attributes) (domain.Feature, error) {
	switch {
	case s.mode == ModeCreate:
		merged := domain.NewFeatureDefaults()
		for k, v := range attrs {
			merged[k] = v
		}
		ack, err := e.sync.Save(ctx, domain.Feature{Attributes: merged, Geometry: g})
		if err != nil {
			return domain.Feature{}, err
		}
		return domain.Feature{ID: ack.ID, Attributes: merged, Geometry: g, UpdatedAt: ack.UpdatedAt}, nil

	case s.mode == ModeReshape && len(attrs) > 0:
		merged := existing.Attributes.Clone()
		if merged == nil {
			merged = domain.Attributes{}
		}
		for k, v := range attrs {
			merged[k] = v
		}
		ack, err := e.sync.Save(ctx, domain.Feature{ID: s.targetID, Attributes: merged, Geometry: g})
		if err != nil {
			return domain.Feature{}, err
		}
		return domain.Feature{ID: s.targetID, Attributes: merged, Geometry: g, UpdatedAt: ack.UpdatedAt}, nil

	default:
		if err := e.sync.UpdateGeometryOnly(ctx, s.targetID, g); err != nil {
			return domain.Feature{}, err
		}
		return domain.Feature{
			ID:         s.targetID,
			Attributes: existing.Attributes.Clone(),
			Geometry:   g,
			UpdatedAt:  existing.UpdatedAt,
		}, nil
	}
}

// Cancel discards the open session. A session that is saving cannot be
// cancelled. Cancelling with no session is a no-op.
func (e *Editor) Cancel() error {
	e.mu.Lock()
	s := e.sess
	if s == nil {
		e.mu.Unlock()
		return nil
	}
	if s.state == Saving {
		e.mu.Unlock()
		return ErrSaving
	}
	s.state = Cancelled
	cancelled := s.snapshot()
	e.sess = nil
	metrics.ActiveEditSessions.Dec()
	metrics.EditSessions.WithLabelValues("cancelled").Inc()
	idle := e.sess.snapshot()
	e.mu.Unlock()

	e.notify(cancelled)
	e.notify(idle)
	return nil
}

// Delete removes a feature from the store and then from the FeatureStore.
// It is refused while a session is open.
func (e *Editor) Delete(ctx context.Context, id string) error {
	e.mu.Lock()
	if err := e.canStart(); err != nil {
		e.mu.Unlock()
		return err
	}
	if _, ok := e.store.Get(id); !ok {
		e.mu.Unlock()
		return domain.ErrNotFound
	}
	e.deleting = id
	e.mu.Unlock()

	err := e.sync.Delete(ctx, id)

	e.mu.Lock()
	e.deleting = ""
	if err == nil {
		e.store.Remove(id)
		e.gen++
	}
	view := e.sess.snapshot()
	e.mu.Unlock()

	if err != nil {
		e.log.WarnContext(ctx, "delete failed", "id", id, "error", err)
		return err
	}
	e.log.InfoContext(ctx, "feature deleted", "id", id)
	e.notify(view)
	return nil
}

// Refresh replaces the FeatureStore with the store's current contents. It is
// refused while a session is open or a delete is in flight. A fetch that
// overlaps a successful commit or delete is discarded and retried, so a stale
// list never overwrites an acknowledged write.
func (e *Editor) Refresh(ctx context.Context) error {
	for attempt := 0; attempt < maxRefreshAttempts; attempt++ {
		e.mu.Lock()
		if err := e.refreshable(); err != nil {
			e.mu.Unlock()
			return err
		}
		gen := e.gen
		e.mu.Unlock()

		features, err := e.sync.Fetch(ctx)
		if err != nil {
			return err
		}

		e.mu.Lock()
		if err := e.refreshable(); err != nil {
			e.mu.Unlock()
			return err
		}
		if e.gen != gen {
			e.mu.Unlock()
			e.log.DebugContext(ctx, "feature store changed during fetch, refetching", "attempt", attempt+1)
			continue
		}
		e.store.ReplaceAll(features)
		e.gen++
		view := e.sess.snapshot()
		e.mu.Unlock()

		e.log.DebugContext(ctx, "feature store refreshed", "features", len(features))
		e.notify(view)
		return nil
	}
	return ErrStaleRefresh
}

// refreshable must be called with mu held.
func (e *Editor) refreshable() error {
	if e.sess != nil {
		if e.sess.state == Saving {
			return ErrSaving
		}
		return ErrSessionActive
	}
	if e.deleting != "" {
		return ErrSaving
	}
	return nil
}

// canStart must be called with mu held.
func (e *Editor) canStart() error {
	if e.sess != nil {
		if e.sess.state == Saving {
			return ErrSaving
		}
		return ErrSessionActive
	}
	if e.deleting != "" {
		return ErrSaving
	}
	if !e.canWrite() {
		return domain.ErrForbidden
	}
	return nil
}

// editable must be called with mu held.
func (e *Editor) editable() error {
	if e.sess == nil {
		return ErrNoSession
	}
	if e.sess.state == Saving {
		return ErrSaving
	}
	return nil
}

// opened must be called with mu held.
func (e *Editor) opened() Snapshot {
	metrics.ActiveEditSessions.Inc()
	e.log.Debug("edit session opened", "mode", e.sess.mode.String(), "id", e.sess.targetID)
	return e.sess.snapshot()
}

// place unprojects screen and substitutes a snapped vertex when one is within
// reach. Must be called with mu held.
func (e *Editor) place(proj snap.Projector, screen orb.Point) orb.Point {
	c, ok := snap.Build(e.store.All()).Nearest(proj, screen, e.sess.excludeID())
	if ok {
		metrics.SnapHits.Inc()
		return c.Coordinate
	}
	return proj.Unproject(screen)
}

func (e *Editor) notify(s Snapshot) {
	if e.observer != nil {
		e.observer(s)
	}
}
