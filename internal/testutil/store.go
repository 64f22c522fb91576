package testutil

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/openvital/vitalstore/internal/record"
	"github.com/openvital/vitalstore/internal/store"
)

// OpenStore opens an isolated on-disk store under t.TempDir and applies
// the registry's record tables. The store is closed when the test ends.
func OpenStore(t *testing.T, reg *record.Registry) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "vitalstore.db"), slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	for _, id := range reg.TypeIDs() {
		d, err := reg.Descriptor(id)
		if err != nil {
			t.Fatalf("descriptor %d: %v", id, err)
		}
		if err := s.ApplyTables(context.Background(), d.CreatePlans()); err != nil {
			t.Fatalf("apply tables for %s: %v", d.Name, err)
		}
	}
	return s
}
