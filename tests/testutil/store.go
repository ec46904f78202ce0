package testutil

import (
	"path/filepath"
	"testing"

	"github.com/nhle/inbox-triage/internal/model"
	"github.com/nhle/inbox-triage/internal/store"
)

// NewTestStore creates an in-memory SQLiteStore with all migrations applied.
// It automatically closes the store when the test completes.
func NewTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()

	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("creating test store: %v", err)
	}

	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("closing test store: %v", err)
		}
	})

	return s
}

// NewTestApprovalFile returns an approval store in a fresh temp dir, seeded
// with reqs.
func NewTestApprovalFile(t *testing.T, reqs ...*model.ApprovalRequest) *store.ApprovalFile {
	t.Helper()

	f := store.NewApprovalFile(filepath.Join(t.TempDir(), "pending_approvals.json"))
	if len(reqs) > 0 {
		if err := f.Upsert(reqs...); err != nil {
			t.Fatalf("seeding approval file: %v", err)
		}
	}
	return f
}
