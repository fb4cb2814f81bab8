package harness

import (
	"context"
	"fmt"
	"math"

	"github.com/gradient/gradetrack/internal/entity"
	"github.com/gradient/gradetrack/internal/grade"
	"github.com/gradient/gradetrack/internal/remote"
)

// gradeTolerance absorbs float artifacts in weighted averages.
const gradeTolerance = 1e-9

// Check evaluates every assertion against the final state.
func (h *Harness) Check(ctx context.Context, scenario *Scenario) error {
	for i, a := range scenario.Assertions {
		if err := h.check(ctx, &a); err != nil {
			return fmt.Errorf("assertions[%d] %s: %w", i, a.Type, err)
		}
	}
	return nil
}

func (h *Harness) check(ctx context.Context, a *Assertion) error {
	switch a.Type {
	case AssertPendingCount:
		pending, err := h.store.PendingAssessments(ctx, 0)
		if err != nil {
			return err
		}
		if len(pending) != a.Count {
			return fmt.Errorf("want %d pending assessments, have %d", a.Count, len(pending))
		}
		return nil

	case AssertSubjectCount:
		subjects, err := h.store.Subjects(ctx)
		if err != nil {
			return err
		}
		if len(subjects) != a.Count {
			return fmt.Errorf("want %d subjects, have %d", a.Count, len(subjects))
		}
		return nil

	case AssertRemoteCount:
		user := h.repo.User()
		if user == "" && len(h.users) > 0 {
			user = h.users[len(h.users)-1]
		}
		docs := h.client.Docs(user, remote.Kind(a.Kind))
		if len(docs) != a.Count {
			return fmt.Errorf("want %d remote %s docs, have %d", a.Count, a.Kind, len(docs))
		}
		return nil

	case AssertGrade:
		assessments, err := h.store.Assessments(ctx, a.Subject)
		if err != nil {
			return err
		}
		ov := grade.BuildOverview(assessments, 0)

		var got float64
		switch entity.Period(a.Period) {
		case entity.PeriodPrelim:
			got = ov.Prelim
		case entity.PeriodMidterm:
			got = ov.Midterm
		case entity.PeriodFinal:
			got = ov.Final
		default:
			return fmt.Errorf("unknown period %q", a.Period)
		}
		if math.Abs(got-a.Value) > gradeTolerance {
			return fmt.Errorf("want %s grade %v for %s, have %v", a.Period, a.Value, a.Subject, got)
		}
		return nil

	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}
