package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/citegate/citegate/pkg/domain"
)

func TestParseObjectURI(t *testing.T) {
	tests := []struct {
		name    string
		uri     string
		want    ObjectLocation
		wantErr bool
	}{
		{"simple", "gs://bucket/doc1", ObjectLocation{"bucket", "doc1"}, false},
		{"nested path", "gs://bucket/reports/2024/q1.pdf", ObjectLocation{"bucket", "reports/2024/q1.pdf"}, false},
		{"missing object", "gs://bucket/", ObjectLocation{}, true},
		{"missing bucket", "gs:///doc1", ObjectLocation{}, true},
		{"http uri", "https://example.com/doc1", ObjectLocation{}, true},
		{"empty", "", ObjectLocation{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseObjectURI(tt.uri)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidObjectURI) {
					t.Fatalf("expected ErrInvalidObjectURI, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseObjectURIDeterministic(t *testing.T) {
	first, err := ParseObjectURI("gs://bucket/doc1")
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 10; i++ {
		again, err := ParseObjectURI("gs://bucket/doc1")
		if err != nil || again != first {
			t.Fatalf("parse not deterministic: %+v vs %+v (%v)", again, first, err)
		}
	}
}

func TestMemoryStoreMetadata(t *testing.T) {
	store := NewMemoryStore()
	loc := ObjectLocation{Bucket: "bucket", Object: "doc1"}
	store.SetObjectMetadata(loc, domain.ObjectMetadata{ContentType: "application/pdf", Size: 1024})

	md, err := store.GetObjectMetadata(context.Background(), loc)
	if err != nil {
		t.Fatal(err)
	}
	if md.ContentType != "application/pdf" || md.Size != 1024 {
		t.Fatalf("unexpected metadata: %+v", md)
	}

	_, err = store.GetObjectMetadata(context.Background(), ObjectLocation{Bucket: "bucket", Object: "missing"})
	if !errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("expected ErrObjectNotFound, got %v", err)
	}
}

func TestMemoryStorePutIsolatesCallerBuffer(t *testing.T) {
	store := NewMemoryStore()
	loc := ObjectLocation{Bucket: "audit", Object: "rec"}
	data := []byte(`{"a":1}`)
	if err := store.Put(context.Background(), loc, data); err != nil {
		t.Fatal(err)
	}

	data[0] = 'X'
	stored, ok := store.Object(loc)
	if !ok {
		t.Fatal("object missing")
	}
	if string(stored) != `{"a":1}` {
		t.Fatalf("stored bytes mutated: %s", stored)
	}
}
