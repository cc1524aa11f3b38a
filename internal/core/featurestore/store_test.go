package featurestore_test

import (
	"testing"

	"github.com/samirrijal/shotengai/internal/core/domain"
	"github.com/samirrijal/shotengai/internal/core/featurestore"
	"github.com/samirrijal/shotengai/internal/core/geometry"
)

func feature(id, name string) domain.Feature {
	return domain.Feature{
		ID:         id,
		Attributes: domain.Attributes{"name_en": name},
		Geometry:   geometry.MultiLine{{{135, 35}, {135.1, 35.1}}},
	}
}

func TestStore_UpsertGetRemove(t *testing.T) {
	s := featurestore.New()
	if !s.Upsert(feature("a", "Tenjinbashi")) {
		t.Fatal("expected upsert to succeed")
	}
	f, ok := s.Get("a")
	if !ok || f.DisplayName() != "Tenjinbashi" {
		t.Fatalf("unexpected get result: %v %v", f, ok)
	}

	s.Upsert(feature("a", "Tenjinbashi-suji"))
	f, _ = s.Get("a")
	if f.DisplayName() != "Tenjinbashi-suji" {
		t.Errorf("expected replaced record, got %s", f.DisplayName())
	}

	if !s.Remove("a") {
		t.Error("expected remove to report presence")
	}
	if _, ok := s.Get("a"); ok {
		t.Error("feature still present after remove")
	}
	if s.Remove("a") {
		t.Error("second remove should report absence")
	}
}

func TestStore_IgnoresUnsavedFeature(t *testing.T) {
	s := featurestore.New()
	if s.Upsert(feature("", "draft")) {
		t.Error("expected upsert without id to be ignored")
	}
	if s.Len() != 0 {
		t.Errorf("expected empty store, got %d", s.Len())
	}
}

func TestStore_CopiesInAndOut(t *testing.T) {
	s := featurestore.New()
	f := feature("a", "Nakamise")
	s.Upsert(f)

	f.Geometry[0][0][0] = 0
	f.Attributes["name_en"] = "changed"

	got, _ := s.Get("a")
	if got.Geometry[0][0][0] != 135 || got.DisplayName() != "Nakamise" {
		t.Fatalf("store shares memory with caller: %v", got)
	}

	got.Geometry[0][1][1] = 0
	again, _ := s.Get("a")
	if again.Geometry[0][1][1] != 35.1 {
		t.Fatal("store shares memory with reader")
	}
}

func TestStore_AllSortedAndReplaceAll(t *testing.T) {
	s := featurestore.New()
	s.Upsert(feature("c", "C"))
	s.Upsert(feature("a", "A"))
	s.Upsert(feature("b", "B"))

	all := s.All()
	if len(all) != 3 || all[0].ID != "a" || all[2].ID != "c" {
		t.Fatalf("unexpected order: %v", all)
	}

	s.ReplaceAll([]domain.Feature{feature("z", "Z")})
	if s.Len() != 1 {
		t.Fatalf("expected 1 feature after replace, got %d", s.Len())
	}
	if _, ok := s.Get("a"); ok {
		t.Error("old feature survived ReplaceAll")
	}
}
