package entity

import "fmt"

// Period identifies one of the three academic grading windows.
type Period string

const (
	PeriodPrelim  Period = "Prelim"
	PeriodMidterm Period = "Midterm"
	PeriodFinal   Period = "Final"
)

// Periods lists the grading windows in academic order.
var Periods = []Period{PeriodPrelim, PeriodMidterm, PeriodFinal}

// Valid reports whether p is one of the three known grading windows.
func (p Period) Valid() bool {
	switch p {
	case PeriodPrelim, PeriodMidterm, PeriodFinal:
		return true
	}
	return false
}

// DefaultIcon decorates subjects created without an explicit icon, locally
// or on another device.
const DefaultIcon = "📖"

// PendingOp marks an unsynchronized local mutation awaiting propagation.
// The empty string means the row is in sync with the remote store.
type PendingOp string

const (
	OpNone   PendingOp = ""
	OpInsert PendingOp = "insert"
	OpUpdate PendingOp = "update"
	OpDelete PendingOp = "delete"
)

// Subject is a course the user tracks grades for.
type Subject struct {
	ID        string    // local primary key, doubles as the remote doc id
	Name      string
	Icon      string    // display glyph
	OwnerID   string    // empty until first associated with a signed-in user
	UpdatedAt int64     // milliseconds since epoch
	Pending   PendingOp
}

// Assessment is a single scored item (quiz, exam, ...) within a subject
// and grading period.
type Assessment struct {
	LocalID   string // primary key, assigned locally, immutable
	RemoteID  string // empty until the remote store accepts the create
	SubjectID string
	Period    Period
	Type      string // free-form category label ("Quiz", "Exam", ...)
	Score     float64
	Total     float64
	Weight    float64
	Date      string // display date
	UpdatedAt int64
	Pending   PendingOp

	// Attempts counts permanently-rejected push attempts. Local-only
	// bookkeeping; never sent to the remote store.
	Attempts int
}

// Validate checks the score invariants: total must be positive, the score
// must fall within [0, total], and the weight must be non-negative.
func (a Assessment) Validate() error {
	if a.SubjectID == "" {
		return fmt.Errorf("assessment %s: subject id is required", a.LocalID)
	}
	if !a.Period.Valid() {
		return fmt.Errorf("assessment %s: unknown period %q", a.LocalID, a.Period)
	}
	if a.Total <= 0 {
		return fmt.Errorf("assessment %s: total must be positive, got %v", a.LocalID, a.Total)
	}
	if a.Score < 0 || a.Score > a.Total {
		return fmt.Errorf("assessment %s: score %v out of range [0, %v]", a.LocalID, a.Score, a.Total)
	}
	if a.Weight < 0 {
		return fmt.Errorf("assessment %s: weight must be non-negative, got %v", a.LocalID, a.Weight)
	}
	return nil
}
