package usecases_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/paulmach/orb"

	"github.com/samirrijal/shotengai/internal/core/domain"
	"github.com/samirrijal/shotengai/internal/core/usecases"
)

// --- Mock FeatureRepository ---

type mockFeatureRepo struct {
	upsertFn         func(ctx context.Context, id *string, ewkt string, attrs domain.Attributes) (domain.ServerAck, error)
	updateGeometryFn func(ctx context.Context, id, ewkt string) (domain.ServerAck, error)
	deleteFn         func(ctx context.Context, id string) error
	getByIDFn        func(ctx context.Context, id string) (*domain.StoredFeature, error)
	listAllFn        func(ctx context.Context) ([]domain.StoredFeature, error)
	listCalls        int
}

func (m *mockFeatureRepo) Upsert(ctx context.Context, id *string, ewkt string, attrs domain.Attributes) (domain.ServerAck, error) {
	if m.upsertFn != nil {
		return m.upsertFn(ctx, id, ewkt, attrs)
	}
	return domain.ServerAck{ID: "new-id", UpdatedAt: time.Now()}, nil
}

func (m *mockFeatureRepo) UpdateGeometry(ctx context.Context, id, ewkt string) (domain.ServerAck, error) {
	if m.updateGeometryFn != nil {
		return m.updateGeometryFn(ctx, id, ewkt)
	}
	return domain.ServerAck{ID: id}, nil
}

func (m *mockFeatureRepo) MergeAttributes(ctx context.Context, id string, attrs domain.Attributes) error {
	return nil
}

func (m *mockFeatureRepo) Delete(ctx context.Context, id string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return nil
}

func (m *mockFeatureRepo) GetByID(ctx context.Context, id string) (*domain.StoredFeature, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (m *mockFeatureRepo) ListAll(ctx context.Context) ([]domain.StoredFeature, error) {
	m.listCalls++
	if m.listAllFn != nil {
		return m.listAllFn(ctx)
	}
	return nil, nil
}

func (m *mockFeatureRepo) Count(ctx context.Context) (int, error) { return 0, nil }

// --- Mock CacheService ---

type memCache struct {
	mu      sync.Mutex
	data    map[string][]byte
	deleted []string
}

func newMemCache() *memCache { return &memCache{data: map[string][]byte{}} }

func (c *memCache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	if !ok {
		return nil, errors.New("miss")
	}
	return v, nil
}

func (c *memCache) Set(ctx context.Context, key string, value []byte, ttl int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func (c *memCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	c.deleted = append(c.deleted, key)
	return nil
}

// --- Mock EventPublisher / DerivationScheduler ---

type recordingPublisher struct {
	events []domain.FeatureEvent
	err    error
}

func (p *recordingPublisher) PublishFeatureEvent(ctx context.Context, e domain.FeatureEvent) error {
	p.events = append(p.events, e)
	return p.err
}

type recordingScheduler struct {
	ids []string
	err error
}

func (s *recordingScheduler) ScheduleDerivation(ctx context.Context, id string) error {
	s.ids = append(s.ids, id)
	return s.err
}

const validEWKT = "SRID=4326;MULTILINESTRING((135 35,135.1 35.1))"

// --- Tests ---

func TestFeatureService_CreateAppliesDefaults(t *testing.T) {
	var got domain.Attributes
	repo := &mockFeatureRepo{
		upsertFn: func(ctx context.Context, id *string, ewkt string, attrs domain.Attributes) (domain.ServerAck, error) {
			if id != nil {
				t.Errorf("expected nil id, got %q", *id)
			}
			got = attrs
			return domain.ServerAck{ID: "abc123"}, nil
		},
	}
	pub := &recordingPublisher{}
	sched := &recordingScheduler{}
	svc := usecases.NewFeatureService(repo, nil, pub, sched)

	ack, err := svc.Upsert(context.Background(), nil, validEWKT, domain.Attributes{"name_jp": "天神橋"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ack.ID != "abc123" {
		t.Errorf("expected abc123, got %s", ack.ID)
	}
	if got.String("name_en") != "New Shotengai" || got.String("status") != "planned" {
		t.Errorf("defaults not applied: %v", got)
	}
	if got.String("name_jp") != "天神橋" {
		t.Errorf("caller attributes lost: %v", got)
	}
	if len(pub.events) != 1 || pub.events[0].Type != domain.FeatureCreated || pub.events[0].FeatureID != "abc123" {
		t.Errorf("unexpected events: %+v", pub.events)
	}
	if len(sched.ids) != 1 || sched.ids[0] != "abc123" {
		t.Errorf("expected derivation scheduled for abc123, got %v", sched.ids)
	}
}

func TestFeatureService_UpdateKeepsCallerStatus(t *testing.T) {
	repo := &mockFeatureRepo{
		upsertFn: func(ctx context.Context, id *string, ewkt string, attrs domain.Attributes) (domain.ServerAck, error) {
			if _, ok := attrs["name_en"]; ok {
				t.Error("defaults must not be applied on update")
			}
			return domain.ServerAck{ID: *id}, nil
		},
	}
	pub := &recordingPublisher{}
	svc := usecases.NewFeatureService(repo, nil, pub, nil)
	id := "f1"

	if _, err := svc.Upsert(context.Background(), &id, validEWKT, domain.Attributes{"status": "active"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pub.events) != 1 || pub.events[0].Type != domain.FeatureUpdated {
		t.Errorf("unexpected events: %+v", pub.events)
	}
}

func TestFeatureService_RejectsBadGeometry(t *testing.T) {
	repo := &mockFeatureRepo{
		upsertFn: func(ctx context.Context, id *string, ewkt string, attrs domain.Attributes) (domain.ServerAck, error) {
			t.Error("repository should not be reached")
			return domain.ServerAck{}, nil
		},
	}
	svc := usecases.NewFeatureService(repo, nil, nil, nil)

	tests := []struct {
		name string
		ewkt string
	}{
		{"missing srid", "MULTILINESTRING((135 35,135.1 35.1))"},
		{"wrong srid", "SRID=3857;MULTILINESTRING((135 35,135.1 35.1))"},
		{"polygon", "SRID=4326;POLYGON((0 0,1 0,1 1,0 0))"},
		{"single vertex", "SRID=4326;LINESTRING(135 35)"},
		{"garbage", "SRID=4326;MULTILINESTRING((135 35,"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Upsert(context.Background(), nil, tt.ewkt, nil)
			if !errors.Is(err, domain.ErrRejected) {
				t.Errorf("expected ErrRejected, got %v", err)
			}
		})
	}
}

func TestFeatureService_UpdateGeometryInvalidatesCache(t *testing.T) {
	cache := newMemCache()
	_ = cache.Set(context.Background(), "features:all", []byte("[]"), 60)
	pub := &recordingPublisher{}
	svc := usecases.NewFeatureService(&mockFeatureRepo{}, cache, pub, nil)

	if err := svc.UpdateGeometry(context.Background(), "f1", validEWKT); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := cache.Get(context.Background(), "features:all"); err == nil {
		t.Error("expected list cache to be invalidated")
	}
	if len(pub.events) != 1 || pub.events[0].Type != domain.FeatureGeometryUpdated {
		t.Errorf("unexpected events: %+v", pub.events)
	}
}

func TestFeatureService_UpdateGeometryRequiresID(t *testing.T) {
	svc := usecases.NewFeatureService(&mockFeatureRepo{}, nil, nil, nil)
	if err := svc.UpdateGeometry(context.Background(), "", validEWKT); !errors.Is(err, domain.ErrRejected) {
		t.Fatalf("expected ErrRejected, got %v", err)
	}
}

func TestFeatureService_DeleteNotFoundPropagates(t *testing.T) {
	repo := &mockFeatureRepo{
		deleteFn: func(ctx context.Context, id string) error { return domain.ErrNotFound },
	}
	pub := &recordingPublisher{}
	svc := usecases.NewFeatureService(repo, nil, pub, nil)

	if err := svc.Delete(context.Background(), "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if len(pub.events) != 0 {
		t.Error("no event expected for a failed delete")
	}
}

func TestFeatureService_PublishFailureDoesNotFailWrite(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("nats down")}
	sched := &recordingScheduler{err: errors.New("temporal down")}
	svc := usecases.NewFeatureService(&mockFeatureRepo{}, nil, pub, sched)

	if err := svc.Delete(context.Background(), "f1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.Upsert(context.Background(), nil, validEWKT, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestFeatureService_ListAllCached(t *testing.T) {
	repo := &mockFeatureRepo{
		listAllFn: func(ctx context.Context) ([]domain.StoredFeature, error) {
			return []domain.StoredFeature{{ID: "a", GeometryGeo: []byte(`{"type":"LineString","coordinates":[[0,0],[1,1]]}`)}}, nil
		},
	}
	svc := usecases.NewFeatureService(repo, newMemCache(), nil, nil)

	for i := 0; i < 2; i++ {
		out, err := svc.ListAll(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(out) != 1 || out[0].ID != "a" {
			t.Fatalf("unexpected result: %+v", out)
		}
	}
	if repo.listCalls != 1 {
		t.Errorf("expected 1 repository call, got %d", repo.listCalls)
	}
}

func TestFeatureService_HandleFeatureEventInvalidates(t *testing.T) {
	ctx := context.Background()
	cache := newMemCache()
	_ = cache.Set(ctx, "features:all", []byte("[]"), 60)
	_ = cache.Set(ctx, "features:id:f9", []byte("{}"), 300)
	svc := usecases.NewFeatureService(&mockFeatureRepo{}, cache, nil, nil)

	err := svc.HandleFeatureEvent(ctx, domain.FeatureEvent{Type: domain.FeatureDerived, FeatureID: "f9"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, key := range []string{"features:all", "features:id:f9"} {
		if _, err := cache.Get(ctx, key); err == nil {
			t.Errorf("expected %s to be invalidated", key)
		}
	}
}

func TestFeatureService_RoundTripThroughSyncClient(t *testing.T) {
	var stored string
	repo := &mockFeatureRepo{
		updateGeometryFn: func(ctx context.Context, id, ewkt string) (domain.ServerAck, error) {
			stored = ewkt
			return domain.ServerAck{ID: id}, nil
		},
	}
	client := usecases.NewSyncClient(usecases.NewFeatureService(repo, nil, nil, nil))

	if err := client.UpdateGeometryOnly(context.Background(), "abc123", arc(orb.Point{135, 35}, orb.Point{135.1, 35.2})); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stored != "SRID=4326;MULTILINESTRING((135 35,135.1 35.2))" {
		t.Errorf("unexpected stored geometry: %s", stored)
	}

	err := client.UpdateGeometryOnly(context.Background(), "", arc(orb.Point{135, 35}, orb.Point{135.1, 35.2}))
	if !domain.IsRejected(err) {
		t.Errorf("expected rejected for missing id, got %v", err)
	}
}
