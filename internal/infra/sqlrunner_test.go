package infra

import (
	"context"
	"errors"
	"testing"
)

func TestExtractMarker(t *testing.T) {
	query := "--sql 4f55a9b7-4e9f-4e45-a3b3-5a532d21d9db\nselect 1;\n"
	marker, body, err := extractMarker(query)
	if err != nil {
		t.Fatalf("extractMarker error: %v", err)
	}
	if marker != "4f55a9b7-4e9f-4e45-a3b3-5a532d21d9db" {
		t.Fatalf("marker = %q", marker)
	}
	if body != "select 1;" {
		t.Fatalf("body = %q", body)
	}
}

func TestExtractMarkerRejectsUntaggedQuery(t *testing.T) {
	for _, q := range []string{"", "select 1;", "--sql not-a-uuid\nselect 1;"} {
		if _, _, err := extractMarker(q); !errors.Is(err, ErrMissingMarker) {
			t.Fatalf("extractMarker(%q) err = %v, want ErrMissingMarker", q, err)
		}
	}
}

func TestErrorRowReturnsMarkerError(t *testing.T) {
	runner := &SQLRunner{}
	var v int
	if err := runner.QueryRow(context.Background(), "select 1").Scan(&v); !errors.Is(err, ErrMissingMarker) {
		t.Fatalf("Scan err = %v, want ErrMissingMarker", err)
	}
}
