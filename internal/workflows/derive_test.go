package workflows_test

import (
	"context"
	"math"
	"testing"

	"github.com/paulmach/orb"
	"go.temporal.io/sdk/testsuite"

	"github.com/samirrijal/shotengai/internal/core/domain"
	"github.com/samirrijal/shotengai/internal/pkg/geospatial"
	"github.com/samirrijal/shotengai/internal/workflows"
)

// --- Mock FeatureRepository ---

type mockFeatureRepo struct {
	getByIDFn         func(ctx context.Context, id string) (*domain.StoredFeature, error)
	mergeAttributesFn func(ctx context.Context, id string, attrs domain.Attributes) error
}

func (m *mockFeatureRepo) Upsert(ctx context.Context, id *string, ewkt string, attrs domain.Attributes) (domain.ServerAck, error) {
	return domain.ServerAck{}, nil
}

func (m *mockFeatureRepo) UpdateGeometry(ctx context.Context, id, ewkt string) (domain.ServerAck, error) {
	return domain.ServerAck{}, nil
}

func (m *mockFeatureRepo) MergeAttributes(ctx context.Context, id string, attrs domain.Attributes) error {
	if m.mergeAttributesFn != nil {
		return m.mergeAttributesFn(ctx, id, attrs)
	}
	return nil
}

func (m *mockFeatureRepo) Delete(ctx context.Context, id string) error { return nil }

func (m *mockFeatureRepo) GetByID(ctx context.Context, id string) (*domain.StoredFeature, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (m *mockFeatureRepo) ListAll(ctx context.Context) ([]domain.StoredFeature, error) {
	return nil, nil
}

func (m *mockFeatureRepo) Count(ctx context.Context) (int, error) { return 0, nil }

const lineGeoJSON = `{"type":"MultiLineString","coordinates":[[[135.5,34.69],[135.501,34.69]],[[135.6,34.7],[135.6,34.701]]]}`

func expectedLength() float64 {
	m := orb.MultiLineString{
		{{135.5, 34.69}, {135.501, 34.69}},
		{{135.6, 34.7}, {135.6, 34.701}},
	}
	return math.Round(geospatial.LineLength(m)*10) / 10
}

// --- Tests ---

func TestDeriveFeatureWorkflow(t *testing.T) {
	var merged domain.Attributes
	var mergedID string
	repo := &mockFeatureRepo{
		getByIDFn: func(ctx context.Context, id string) (*domain.StoredFeature, error) {
			return &domain.StoredFeature{
				ID:          id,
				Attributes:  domain.Attributes{"name_en": "Tenjinbashi Suji"},
				GeometryGeo: []byte(lineGeoJSON),
			}, nil
		},
		mergeAttributesFn: func(ctx context.Context, id string, attrs domain.Attributes) error {
			mergedID, merged = id, attrs
			return nil
		},
	}

	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(workflows.DeriveFeatureWorkflow)
	env.RegisterActivity(&workflows.DeriveActivities{Features: repo})

	env.ExecuteWorkflow(workflows.DeriveFeatureWorkflow, workflows.DeriveInput{FeatureID: "f1"})

	if !env.IsWorkflowCompleted() {
		t.Fatal("workflow did not complete")
	}
	if err := env.GetWorkflowError(); err != nil {
		t.Fatalf("workflow error: %v", err)
	}
	if mergedID != "f1" {
		t.Errorf("expected merge for f1, got %q", mergedID)
	}
	if merged.String("slug") != "tenjinbashi-suji" {
		t.Errorf("unexpected slug: %v", merged["slug"])
	}
	if got, _ := merged["length_m"].(float64); got != expectedLength() {
		t.Errorf("length_m = %v, want %v", merged["length_m"], expectedLength())
	}
}

type recordingPublisher struct {
	events []domain.FeatureEvent
}

func (p *recordingPublisher) PublishFeatureEvent(ctx context.Context, e domain.FeatureEvent) error {
	p.events = append(p.events, e)
	return nil
}

func TestMergeAttributes_PublishesDerivedEvent(t *testing.T) {
	pub := &recordingPublisher{}
	a := &workflows.DeriveActivities{Features: &mockFeatureRepo{}, Events: pub}
	if err := a.MergeAttributes(context.Background(), "f2", domain.Attributes{"length_m": 12.5}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pub.events) != 1 || pub.events[0].Type != domain.FeatureDerived || pub.events[0].FeatureID != "f2" {
		t.Errorf("unexpected events: %+v", pub.events)
	}
}

func TestMergeAttributes_DeletedFeatureIsQuiet(t *testing.T) {
	pub := &recordingPublisher{}
	repo := &mockFeatureRepo{
		mergeAttributesFn: func(ctx context.Context, id string, attrs domain.Attributes) error {
			return domain.ErrNotFound
		},
	}
	a := &workflows.DeriveActivities{Features: repo, Events: pub}
	if err := a.MergeAttributes(context.Background(), "gone", domain.Attributes{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pub.events) != 0 {
		t.Errorf("no event expected, got %+v", pub.events)
	}
}

func TestDeriveFeatureWorkflow_FeatureGone(t *testing.T) {
	mergeCalled := false
	repo := &mockFeatureRepo{
		mergeAttributesFn: func(ctx context.Context, id string, attrs domain.Attributes) error {
			mergeCalled = true
			return nil
		},
	}

	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(workflows.DeriveFeatureWorkflow)
	env.RegisterActivity(&workflows.DeriveActivities{Features: repo})

	env.ExecuteWorkflow(workflows.DeriveFeatureWorkflow, workflows.DeriveInput{FeatureID: "gone"})

	if !env.IsWorkflowCompleted() {
		t.Fatal("workflow did not complete")
	}
	if err := env.GetWorkflowError(); err != nil {
		t.Fatalf("workflow error: %v", err)
	}
	if mergeCalled {
		t.Error("merge should not run for a deleted feature")
	}
}

func TestComputeDerived_RejectsPoint(t *testing.T) {
	a := &workflows.DeriveActivities{}
	_, err := a.ComputeDerived(context.Background(), domain.StoredFeature{
		ID:          "p",
		GeometryGeo: []byte(`{"type":"Point","coordinates":[135,35]}`),
	})
	if err == nil {
		t.Fatal("expected error for point geometry")
	}
}

func TestComputeDerived_NoSlugWithoutASCIIName(t *testing.T) {
	a := &workflows.DeriveActivities{}
	out, err := a.ComputeDerived(context.Background(), domain.StoredFeature{
		ID:          "f",
		Attributes:  domain.Attributes{"name_jp": "天神橋筋"},
		GeometryGeo: []byte(lineGeoJSON),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := out["slug"]; ok {
		t.Errorf("expected no slug, got %v", out["slug"])
	}
}
