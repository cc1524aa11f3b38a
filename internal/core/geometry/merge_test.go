package geometry_test

import (
	"reflect"
	"testing"

	"github.com/samirrijal/shotengai/internal/core/geometry"
)

func TestAppend_PreservesOrderAndCount(t *testing.T) {
	existing := geometry.MultiLine{
		{{0, 0}, {1, 1}},
		{{1, 1}, {2, 0}},
	}
	before := existing.Clone()
	seg := geometry.SingleLine{{2, 0}, {3, 3}}

	got := geometry.Append(existing, seg)

	if len(got) != len(existing)+1 {
		t.Fatalf("expected %d segments, got %d", len(existing)+1, len(got))
	}
	if !reflect.DeepEqual(got[:len(existing)], before) {
		t.Errorf("prior segments changed: %v", got[:len(existing)])
	}
	if !reflect.DeepEqual(geometry.SingleLine(got[len(got)-1]), seg) {
		t.Errorf("new segment not last: %v", got[len(got)-1])
	}
	if !reflect.DeepEqual(existing, before) {
		t.Error("input was modified")
	}
}

func TestAppend_TouchingEndpointsStayDistinct(t *testing.T) {
	existing := geometry.MultiLine{{{0, 0}, {1, 1}}}
	got := geometry.Append(existing, geometry.SingleLine{{1, 1}, {2, 2}})
	if len(got) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(got))
	}
}

func TestAppend_EmptyEqualsNormalize(t *testing.T) {
	seg := geometry.SingleLine{{5, 5}, {6, 6}}
	got := geometry.Append(nil, seg)
	want, err := geometry.Normalize(seg)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}
