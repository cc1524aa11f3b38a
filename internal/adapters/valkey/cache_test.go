package valkey

import "testing"

func TestOperation(t *testing.T) {
	tests := map[string]string{
		"features:all":      "features:all",
		"features:id:abc":   "features:id",
		"features:id:a:b:c": "features:id",
		"plain":             "plain",
	}
	for in, want := range tests {
		if got := operation(in); got != want {
			t.Errorf("operation(%q) = %q, want %q", in, got, want)
		}
	}
}
