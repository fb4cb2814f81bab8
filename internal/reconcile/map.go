package reconcile

import (
	"fmt"

	"github.com/gradient/gradetrack/internal/entity"
	"github.com/gradient/gradetrack/internal/remote"
)

// mapSubject converts a remote subject document into a local row. The
// document id doubles as the local id. now is the fallback timestamp for
// documents without a server stamp.
func mapSubject(doc remote.Document, owner string, now int64) (entity.Subject, error) {
	name, _ := doc.Fields["name"].(string)
	if name == "" {
		return entity.Subject{}, fmt.Errorf("subject %s: missing name", doc.ID)
	}

	icon, _ := doc.Fields["icon"].(string)
	if icon == "" {
		icon = entity.DefaultIcon
	}
	if o, _ := doc.Fields["owner"].(string); o != "" {
		owner = o
	}

	ts := remote.UpdatedAt(doc.Fields)
	if ts == 0 {
		ts = now
	}

	return entity.Subject{
		ID:        doc.ID,
		Name:      name,
		Icon:      icon,
		OwnerID:   owner,
		UpdatedAt: ts,
		Pending:   entity.OpNone,
	}, nil
}

// mapAssessment converts a remote assessment document into a local row.
// The local id comes from the document's localId field so a row round-trips
// onto itself; documents created by devices that never set one fall back to
// the remote id.
func mapAssessment(doc remote.Document, now int64) (entity.Assessment, error) {
	subjectID, _ := doc.Fields["subjectId"].(string)
	if subjectID == "" {
		return entity.Assessment{}, fmt.Errorf("assessment %s: missing subjectId", doc.ID)
	}

	localID, _ := doc.Fields["localId"].(string)
	if localID == "" {
		localID = doc.ID
	}

	period := entity.Period(stringField(doc.Fields, "period"))
	if !period.Valid() {
		return entity.Assessment{}, fmt.Errorf("assessment %s: invalid period %q", doc.ID, period)
	}

	ts := remote.UpdatedAt(doc.Fields)
	if ts == 0 {
		ts = now
	}

	a := entity.Assessment{
		LocalID:   localID,
		RemoteID:  doc.ID,
		SubjectID: subjectID,
		Period:    period,
		Type:      stringField(doc.Fields, "type"),
		Score:     numField(doc.Fields, "score"),
		Total:     numField(doc.Fields, "total"),
		Weight:    numField(doc.Fields, "weight"),
		Date:      stringField(doc.Fields, "date"),
		UpdatedAt: ts,
		Pending:   entity.OpNone,
	}
	if err := a.Validate(); err != nil {
		return entity.Assessment{}, fmt.Errorf("assessment %s: %w", doc.ID, err)
	}
	return a, nil
}

func stringField(doc remote.Doc, key string) string {
	s, _ := doc[key].(string)
	return s
}

// numField tolerates the numeric types JSON decoding and in-process stores
// produce.
func numField(doc remote.Doc, key string) float64 {
	switch v := doc[key].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case int:
		return float64(v)
	}
	return 0
}
