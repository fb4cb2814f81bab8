package harness

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gradient/gradetrack/internal/remote"
)

// Snapshot is the golden-compared dump of the final state: every local row
// plus the remote collections of every user the scenario signed in.
//
// Computed grades are deliberately absent; they carry float artifacts that
// make byte comparison brittle. Grade checks go through grade assertions.
type Snapshot struct {
	Scenario string `json:"scenario"`
	User     string `json:"user,omitempty"`

	Subjects    []SubjectState    `json:"subjects"`
	Assessments []AssessmentState `json:"assessments"`

	Remote []RemoteCollection `json:"remote,omitempty"`
}

// SubjectState is one local subject row.
type SubjectState struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Icon      string `json:"icon"`
	Owner     string `json:"owner,omitempty"`
	UpdatedAt int64  `json:"updated_at"`
	Pending   string `json:"pending,omitempty"`
}

// AssessmentState is one local assessment row.
type AssessmentState struct {
	ID        string  `json:"id"`
	RemoteID  string  `json:"remote_id,omitempty"`
	Subject   string  `json:"subject"`
	Period    string  `json:"period"`
	Type      string  `json:"type,omitempty"`
	Score     float64 `json:"score"`
	Total     float64 `json:"total"`
	Weight    float64 `json:"weight"`
	UpdatedAt int64   `json:"updated_at"`
	Pending   string  `json:"pending,omitempty"`
	Attempts  int     `json:"attempts,omitempty"`
}

// RemoteCollection is one user's collection in the remote store.
type RemoteCollection struct {
	User string      `json:"user"`
	Kind string      `json:"kind"`
	Docs []RemoteDoc `json:"docs"`
}

// RemoteDoc is one remote document. Field keys marshal sorted, so the dump
// is stable.
type RemoteDoc struct {
	ID     string         `json:"id"`
	Fields map[string]any `json:"fields"`
}

// Marshal renders the snapshot for golden comparison.
func (s *Snapshot) Marshal() ([]byte, error) {
	out, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	return append(out, '\n'), nil
}

// snapshot collects the final state dump.
func (h *Harness) snapshot(ctx context.Context, scenarioName string) (*Snapshot, error) {
	snap := &Snapshot{
		Scenario:    scenarioName,
		User:        h.repo.User(),
		Subjects:    []SubjectState{},
		Assessments: []AssessmentState{},
	}

	subjects, err := h.store.Subjects(ctx)
	if err != nil {
		return nil, err
	}
	for _, sub := range subjects {
		snap.Subjects = append(snap.Subjects, SubjectState{
			ID:        sub.ID,
			Name:      sub.Name,
			Icon:      sub.Icon,
			Owner:     sub.OwnerID,
			UpdatedAt: sub.UpdatedAt,
			Pending:   string(sub.Pending),
		})
	}

	assessments, err := h.store.AllAssessments(ctx)
	if err != nil {
		return nil, err
	}
	for _, a := range assessments {
		snap.Assessments = append(snap.Assessments, AssessmentState{
			ID:        a.LocalID,
			RemoteID:  a.RemoteID,
			Subject:   a.SubjectID,
			Period:    string(a.Period),
			Type:      a.Type,
			Score:     a.Score,
			Total:     a.Total,
			Weight:    a.Weight,
			UpdatedAt: a.UpdatedAt,
			Pending:   string(a.Pending),
			Attempts:  a.Attempts,
		})
	}

	for _, user := range h.users {
		for _, kind := range []remote.Kind{remote.KindSubjects, remote.KindAssessments} {
			col := RemoteCollection{User: user, Kind: string(kind), Docs: []RemoteDoc{}}
			for _, doc := range h.client.Docs(user, kind) {
				col.Docs = append(col.Docs, RemoteDoc{ID: doc.ID, Fields: doc.Fields})
			}
			snap.Remote = append(snap.Remote, col)
		}
	}
	return snap, nil
}
