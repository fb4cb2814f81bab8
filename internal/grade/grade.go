package grade

import "github.com/gradient/gradetrack/internal/entity"

// Scale converts a weighted percentage into the displayed grade unit.
// The app grades on a 5-point scale.
const Scale = 5.0

// Entry is one scored item feeding a period grade.
type Entry struct {
	Score  float64
	Total  float64
	Weight float64
}

// ComputePeriodGrade computes the weighted grade for one grading period.
//
// grade = (Σ (score/total) * weight) / (Σ weight) * Scale
//
// Returns 0 for an empty entry list or a zero total weight. Deterministic,
// no side effects; the result does not depend on entry order.
func ComputePeriodGrade(entries []Entry) float64 {
	if len(entries) == 0 {
		return 0
	}
	var weighted, weight float64
	for _, e := range entries {
		weighted += (e.Score / e.Total) * e.Weight
		weight += e.Weight
	}
	if weight <= 0 {
		return 0
	}
	return weighted / weight * Scale
}

// Status classifies a subject's standing against its target grade.
type Status string

const (
	StatusOnTrack Status = "on_track"
	StatusAlert   Status = "alert"
)

// Overview summarizes a subject's standing across the three periods.
type Overview struct {
	Prelim  float64
	Midterm float64
	Final   float64

	// Current is the mean of the periods that have at least one entry,
	// or 0 when no period has entries.
	Current float64

	Status Status
}

// BuildOverview folds a subject's assessments into per-period grades and an
// overall status. Rows marked for deletion are excluded. A non-positive
// target disables the alert check.
func BuildOverview(assessments []entity.Assessment, target float64) Overview {
	byPeriod := make(map[entity.Period][]Entry, len(entity.Periods))
	for _, a := range assessments {
		if a.Pending == entity.OpDelete {
			continue
		}
		byPeriod[a.Period] = append(byPeriod[a.Period], Entry{
			Score:  a.Score,
			Total:  a.Total,
			Weight: a.Weight,
		})
	}

	var ov Overview
	var sum float64
	var scored int
	for _, p := range entity.Periods {
		entries := byPeriod[p]
		g := ComputePeriodGrade(entries)
		switch p {
		case entity.PeriodPrelim:
			ov.Prelim = g
		case entity.PeriodMidterm:
			ov.Midterm = g
		case entity.PeriodFinal:
			ov.Final = g
		}
		if len(entries) > 0 {
			sum += g
			scored++
		}
	}
	if scored > 0 {
		ov.Current = sum / float64(scored)
	}

	ov.Status = StatusOnTrack
	if target > 0 && ov.Current < target {
		ov.Status = StatusAlert
	}
	return ov
}
