package usecases

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/samirrijal/shotengai/internal/core/domain"
	"github.com/samirrijal/shotengai/internal/core/geometry"
	"github.com/samirrijal/shotengai/internal/core/ports"
	"github.com/samirrijal/shotengai/internal/pkg/telemetry"
)

const (
	cacheKeyAll    = "features:all"
	cacheTTLAll    = 60
	cacheKeyPrefix = "features:id:"
	cacheTTLOne    = 300
)

// FeatureService is the store side of the sync contract: it validates
// incoming writes, persists them and fans out change notifications.
type FeatureService struct {
	features  ports.FeatureRepository
	cache     ports.CacheService
	publisher ports.EventPublisher
	scheduler ports.DerivationScheduler
	tracer    trace.Tracer
}

// NewFeatureService creates a new FeatureService. cache, publisher and
// scheduler may be nil.
func NewFeatureService(
	features ports.FeatureRepository,
	cache ports.CacheService,
	publisher ports.EventPublisher,
	scheduler ports.DerivationScheduler,
) *FeatureService {
	return &FeatureService{
		features:  features,
		cache:     cache,
		publisher: publisher,
		scheduler: scheduler,
		tracer:    telemetry.Tracer(),
	}
}

// Upsert creates a feature when id is nil, otherwise replaces its attributes
// and geometry.
func (s *FeatureService) Upsert(ctx context.Context, id *string, geometryEWKT string, attrs domain.Attributes) (domain.ServerAck, error) {
	ctx, span := s.tracer.Start(ctx, telemetry.SpanStoreUpsert)
	defer span.End()

	m, err := validateEWKT(geometryEWKT)
	if err != nil {
		return domain.ServerAck{}, err
	}
	span.SetAttributes(telemetry.AttrSegments.Int(len(m)), telemetry.AttrVertices.Int(m.VertexCount()))

	if id != nil && *id == "" {
		id = nil
	}
	props := attrs.Clone()
	if props == nil {
		props = domain.Attributes{}
	}
	if id == nil {
		for k, v := range domain.NewFeatureDefaults() {
			if _, ok := props[k]; !ok {
				props[k] = v
			}
		}
	}

	ack, err := s.features.Upsert(ctx, id, geometryEWKT, props)
	if err != nil {
		return domain.ServerAck{}, fmt.Errorf("upsert feature: %w", err)
	}

	evt := domain.FeatureUpdated
	if id == nil {
		evt = domain.FeatureCreated
	}
	s.afterWrite(ctx, evt, ack.ID)
	return ack, nil
}

// UpdateGeometry replaces the geometry of an existing feature.
func (s *FeatureService) UpdateGeometry(ctx context.Context, id string, geometryEWKT string) error {
	ctx, span := s.tracer.Start(ctx, telemetry.SpanStoreUpdateGeom, trace.WithAttributes(
		telemetry.AttrFeatureID.String(id),
	))
	defer span.End()

	if id == "" {
		return fmt.Errorf("%w: feature id is required", domain.ErrRejected)
	}
	if _, err := validateEWKT(geometryEWKT); err != nil {
		return err
	}
	if _, err := s.features.UpdateGeometry(ctx, id, geometryEWKT); err != nil {
		return fmt.Errorf("update feature geometry: %w", err)
	}

	s.afterWrite(ctx, domain.FeatureGeometryUpdated, id)
	return nil
}

// Delete removes a feature.
func (s *FeatureService) Delete(ctx context.Context, id string) error {
	ctx, span := s.tracer.Start(ctx, telemetry.SpanStoreDelete, trace.WithAttributes(
		telemetry.AttrFeatureID.String(id),
	))
	defer span.End()

	if id == "" {
		return fmt.Errorf("%w: feature id is required", domain.ErrRejected)
	}
	if err := s.features.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete feature: %w", err)
	}

	s.invalidate(ctx, id)
	s.publish(ctx, domain.FeatureDeleted, id)
	return nil
}

// ListAll returns every stored feature, read-through cached.
func (s *FeatureService) ListAll(ctx context.Context) ([]domain.StoredFeature, error) {
	ctx, span := s.tracer.Start(ctx, telemetry.SpanStoreList)
	defer span.End()

	if s.cache != nil {
		if data, err := s.cache.Get(ctx, cacheKeyAll); err == nil {
			var out []domain.StoredFeature
			if err := json.Unmarshal(data, &out); err == nil {
				return out, nil
			}
		}
	}

	out, err := s.features.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list features: %w", err)
	}

	if s.cache != nil {
		if data, err := json.Marshal(out); err == nil {
			_ = s.cache.Set(ctx, cacheKeyAll, data, cacheTTLAll)
		}
	}
	return out, nil
}

// Get returns one stored feature.
func (s *FeatureService) Get(ctx context.Context, id string) (*domain.StoredFeature, error) {
	if id == "" {
		return nil, domain.ErrNotFound
	}

	key := cacheKeyPrefix + id
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, key); err == nil {
			var f domain.StoredFeature
			if err := json.Unmarshal(data, &f); err == nil {
				return &f, nil
			}
		}
	}

	f, err := s.features.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if data, err := json.Marshal(f); err == nil {
			_ = s.cache.Set(ctx, key, data, cacheTTLOne)
		}
	}
	return f, nil
}

// Count returns the number of stored features.
func (s *FeatureService) Count(ctx context.Context) (int, error) {
	return s.features.Count(ctx)
}

// HandleFeatureEvent drops cached copies of the feature named by a change
// made elsewhere, such as another API instance, the importer or the deriver.
func (s *FeatureService) HandleFeatureEvent(ctx context.Context, event domain.FeatureEvent) error {
	s.invalidate(ctx, event.FeatureID)
	return nil
}

func (s *FeatureService) afterWrite(ctx context.Context, evt domain.FeatureEventType, id string) {
	s.invalidate(ctx, id)
	s.publish(ctx, evt, id)
	if s.scheduler != nil {
		if err := s.scheduler.ScheduleDerivation(ctx, id); err != nil {
			slog.WarnContext(ctx, "schedule derivation failed", "id", id, "error", err)
		}
	}
}

func (s *FeatureService) invalidate(ctx context.Context, id string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, cacheKeyAll); err != nil {
		slog.WarnContext(ctx, "cache invalidation failed", "key", cacheKeyAll, "error", err)
	}
	if err := s.cache.Delete(ctx, cacheKeyPrefix+id); err != nil {
		slog.WarnContext(ctx, "cache invalidation failed", "key", cacheKeyPrefix+id, "error", err)
	}
}

func (s *FeatureService) publish(ctx context.Context, evt domain.FeatureEventType, id string) {
	if s.publisher == nil {
		return
	}
	err := s.publisher.PublishFeatureEvent(ctx, domain.FeatureEvent{Type: evt, FeatureID: id, At: time.Now().UTC()})
	if err != nil {
		slog.WarnContext(ctx, "publish feature event failed", "type", evt, "id", id, "error", err)
	}
}

// validateEWKT requires the SRID=4326 designator and a well-formed line
// geometry. Failures are store rejections.
func validateEWKT(text string) (geometry.MultiLine, error) {
	if !strings.HasPrefix(strings.ToUpper(strings.TrimSpace(text)), fmt.Sprintf("SRID=%d;", geometry.SRID)) {
		return nil, fmt.Errorf("%w: geometry must carry SRID=%d", domain.ErrRejected, geometry.SRID)
	}
	m, err := geometry.ParseWKT(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrRejected, err)
	}
	return m, nil
}
