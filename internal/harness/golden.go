package harness

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// RunWithGolden executes a scenario in a fresh harness, checks its
// assertions, and compares the final state dump against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) {
	t.Helper()

	h, err := New(filepath.Join(t.TempDir(), "scenario.db"))
	if err != nil {
		t.Fatalf("wire harness: %v", err)
	}
	defer h.Close()

	ctx := context.Background()
	snap, err := h.Run(ctx, scenario)
	if err != nil {
		t.Fatalf("run scenario: %v", err)
	}
	if err := h.Check(ctx, scenario); err != nil {
		t.Fatalf("check scenario: %v", err)
	}

	dump, err := snap.Marshal()
	if err != nil {
		t.Fatalf("marshal snapshot: %v", err)
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, dump)
}
