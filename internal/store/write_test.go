package store

import (
	"context"
	"errors"
	"testing"

	"github.com/gradient/gradetrack/internal/entity"
)

func TestUpsertSubject_InsertThenReplace(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sub := entity.Subject{ID: "s1", Name: "Math", Icon: "📐", UpdatedAt: 100, Pending: entity.OpInsert}
	if err := s.UpsertSubject(ctx, sub); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	sub.Name = "Mathematics"
	sub.Pending = entity.OpUpdate
	if err := s.UpsertSubject(ctx, sub); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	got, err := s.Subject(ctx, "s1")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Name != "Mathematics" {
		t.Errorf("name = %q, want Mathematics (replace by primary key)", got.Name)
	}
	if got.Pending != entity.OpUpdate {
		t.Errorf("pending = %q, want update", got.Pending)
	}

	subjects, err := s.Subjects(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(subjects) != 1 {
		t.Errorf("subject count = %d, want 1 (no duplicate rows)", len(subjects))
	}
}

func TestUpsertSubject_NullableColumns(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Empty owner and pending op must round-trip through SQL NULL.
	if err := s.UpsertSubject(ctx, entity.Subject{ID: "s1", Name: "Math"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := s.Subject(ctx, "s1")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.OwnerID != "" || got.Pending != entity.OpNone {
		t.Errorf("got owner=%q pending=%q, want both empty", got.OwnerID, got.Pending)
	}

	needing, err := s.SubjectsNeedingSync(ctx)
	if err != nil {
		t.Fatalf("needing sync: %v", err)
	}
	if len(needing) != 1 {
		t.Errorf("ownerless subject should need sync, got %d rows", len(needing))
	}
}

func TestUpsertAssessments_BatchAtomic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	batch := []entity.Assessment{
		{LocalID: "a1", SubjectID: "s1", Period: entity.PeriodPrelim, Score: 18, Total: 20, Weight: 30, UpdatedAt: 2},
		{LocalID: "a2", SubjectID: "s1", Period: entity.PeriodPrelim, Score: 40, Total: 50, Weight: 70, UpdatedAt: 1},
	}
	if err := s.UpsertAssessments(ctx, batch); err != nil {
		t.Fatalf("batch upsert: %v", err)
	}

	got, err := s.Assessments(ctx, "s1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("assessment count = %d, want 2", len(got))
	}
	// Newest first.
	if got[0].LocalID != "a1" || got[1].LocalID != "a2" {
		t.Errorf("order = [%s %s], want [a1 a2] (updated_at DESC)", got[0].LocalID, got[1].LocalID)
	}
}

func TestMarkAssessmentSynced(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := entity.Assessment{LocalID: "a1", SubjectID: "s1", Period: entity.PeriodPrelim,
		Score: 18, Total: 20, Weight: 30, UpdatedAt: 100, Pending: entity.OpInsert, Attempts: 2}
	if err := s.UpsertAssessment(ctx, a); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	if err := s.MarkAssessmentSynced(ctx, "a1", "r1", 200); err != nil {
		t.Fatalf("mark synced: %v", err)
	}

	got, err := s.Assessment(ctx, "a1")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Pending != entity.OpNone {
		t.Errorf("pending = %q, want cleared", got.Pending)
	}
	if got.RemoteID != "r1" {
		t.Errorf("remote id = %q, want r1", got.RemoteID)
	}
	if got.UpdatedAt != 200 {
		t.Errorf("updated_at = %d, want 200", got.UpdatedAt)
	}
	if got.Attempts != 0 {
		t.Errorf("attempts = %d, want reset to 0", got.Attempts)
	}

	pending, err := s.PendingAssessments(ctx, 0)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("pending count = %d, want 0 after mark synced", len(pending))
	}
}

func TestMarkAssessmentSynced_KeepsRemoteIDWhenEmpty(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := entity.Assessment{LocalID: "a1", RemoteID: "r1", SubjectID: "s1",
		Period: entity.PeriodPrelim, Total: 20, Pending: entity.OpUpdate}
	if err := s.UpsertAssessment(ctx, a); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	if err := s.MarkAssessmentSynced(ctx, "a1", "", 300); err != nil {
		t.Fatalf("mark synced: %v", err)
	}

	got, err := s.Assessment(ctx, "a1")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.RemoteID != "r1" {
		t.Errorf("remote id = %q, want r1 preserved", got.RemoteID)
	}
}

func TestMarkSubjectSynced(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sub := entity.Subject{ID: "s1", Name: "Math", OwnerID: "u1", UpdatedAt: 100, Pending: entity.OpInsert}
	if err := s.UpsertSubject(ctx, sub); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	if err := s.MarkSubjectSynced(ctx, "s1", "u1", 250); err != nil {
		t.Fatalf("mark synced: %v", err)
	}

	got, err := s.Subject(ctx, "s1")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Pending != entity.OpNone || got.UpdatedAt != 250 {
		t.Errorf("got pending=%q updated_at=%d, want cleared/250", got.Pending, got.UpdatedAt)
	}

	needing, err := s.SubjectsNeedingSync(ctx)
	if err != nil {
		t.Fatalf("needing sync: %v", err)
	}
	if len(needing) != 0 {
		t.Errorf("needing sync = %d rows, want 0", len(needing))
	}
}

// An ownerless subject whose push succeeded must record the owner, otherwise
// it stays in the needing-sync set and is re-pushed on every run.
func TestMarkSubjectSynced_RecordsOwner(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sub := entity.Subject{ID: "s1", Name: "Math", UpdatedAt: 100, Pending: entity.OpInsert}
	if err := s.UpsertSubject(ctx, sub); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	if err := s.MarkSubjectSynced(ctx, "s1", "u1", 250); err != nil {
		t.Fatalf("mark synced: %v", err)
	}

	got, err := s.Subject(ctx, "s1")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.OwnerID != "u1" {
		t.Errorf("owner = %q, want u1", got.OwnerID)
	}

	needing, err := s.SubjectsNeedingSync(ctx)
	if err != nil {
		t.Fatalf("needing sync: %v", err)
	}
	if len(needing) != 0 {
		t.Errorf("needing sync = %d rows, want 0", len(needing))
	}
}

func TestDeleteAssessment(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := entity.Assessment{LocalID: "a1", SubjectID: "s1", Period: entity.PeriodPrelim, Total: 20}
	if err := s.UpsertAssessment(ctx, a); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	if err := s.DeleteAssessment(ctx, "a1"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if _, err := s.Assessment(ctx, "a1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("read after delete: err = %v, want ErrNotFound", err)
	}

	// Deleting a missing row is a no-op.
	if err := s.DeleteAssessment(ctx, "a1"); err != nil {
		t.Errorf("second delete: %v, want nil", err)
	}
}

func TestBumpAttempts_ExcludesFromDrain(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := entity.Assessment{LocalID: "a1", SubjectID: "s1", Period: entity.PeriodPrelim,
		Total: 20, Pending: entity.OpInsert}
	if err := s.UpsertAssessment(ctx, a); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := s.BumpAttempts(ctx, "a1"); err != nil {
			t.Fatalf("bump attempts: %v", err)
		}
	}

	pending, err := s.PendingAssessments(ctx, 3)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("row with 3 attempts should be excluded at budget 3, got %d rows", len(pending))
	}

	// No cutoff when the budget is disabled.
	pending, err = s.PendingAssessments(ctx, 0)
	if err != nil {
		t.Fatalf("pending (no budget): %v", err)
	}
	if len(pending) != 1 {
		t.Errorf("pending without budget = %d rows, want 1", len(pending))
	}
}

func TestAdoptSubjects(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.UpsertSubject(ctx, entity.Subject{ID: "s1", Name: "Math", UpdatedAt: 10}); err != nil {
		t.Fatalf("upsert s1: %v", err)
	}
	if err := s.UpsertSubject(ctx, entity.Subject{ID: "s2", Name: "History", OwnerID: "u1", UpdatedAt: 10}); err != nil {
		t.Fatalf("upsert s2: %v", err)
	}

	n, err := s.AdoptSubjects(ctx, "u1", 500)
	if err != nil {
		t.Fatalf("adopt: %v", err)
	}
	if n != 1 {
		t.Errorf("adopted %d rows, want 1 (only the ownerless one)", n)
	}

	got, err := s.Subject(ctx, "s1")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.OwnerID != "u1" {
		t.Errorf("owner = %q, want u1", got.OwnerID)
	}
	if got.Pending != entity.OpUpdate {
		t.Errorf("pending = %q, want update (queued for push)", got.Pending)
	}

	// Already-owned subject keeps its state.
	got2, err := s.Subject(ctx, "s2")
	if err != nil {
		t.Fatalf("read s2: %v", err)
	}
	if got2.UpdatedAt != 10 || got2.Pending != entity.OpNone {
		t.Errorf("s2 modified by adopt: %+v", got2)
	}
}
