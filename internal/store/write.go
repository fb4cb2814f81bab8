package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/gradient/gradetrack/internal/entity"
)

// nullIfEmpty maps the empty string to SQL NULL. Used for the nullable
// columns (remote_id, owner_id, pending_op) which the entity types model as
// empty strings.
func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// UpsertSubject inserts or replaces a subject by primary key.
// The write is atomic with respect to concurrent readers; observers of the
// subjects table are notified after the write commits.
func (s *Store) UpsertSubject(ctx context.Context, sub entity.Subject) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO subjects (id, name, icon, owner_id, updated_at, pending_op)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name       = excluded.name,
			icon       = excluded.icon,
			owner_id   = excluded.owner_id,
			updated_at = excluded.updated_at,
			pending_op = excluded.pending_op
	`,
		sub.ID,
		sub.Name,
		sub.Icon,
		nullIfEmpty(sub.OwnerID),
		sub.UpdatedAt,
		nullIfEmpty(string(sub.Pending)),
	)
	if err != nil {
		return fmt.Errorf("upsert subject %s: %w", sub.ID, err)
	}

	s.obs.notify(tableSubjects, "")
	return nil
}

// UpsertAssessment inserts or replaces a single assessment by primary key.
func (s *Store) UpsertAssessment(ctx context.Context, a entity.Assessment) error {
	return s.UpsertAssessments(ctx, []entity.Assessment{a})
}

// UpsertAssessments inserts or replaces a batch of assessments in one
// transaction. Either every row commits or none does; observers never see a
// partially-written batch.
func (s *Store) UpsertAssessments(ctx context.Context, items []entity.Assessment) error {
	if len(items) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("upsert assessments: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	for _, a := range items {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO assessments
			(local_id, remote_id, subject_id, period, type, score, total, weight, date, updated_at, pending_op, attempts)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(local_id) DO UPDATE SET
				remote_id  = excluded.remote_id,
				subject_id = excluded.subject_id,
				period     = excluded.period,
				type       = excluded.type,
				score      = excluded.score,
				total      = excluded.total,
				weight     = excluded.weight,
				date       = excluded.date,
				updated_at = excluded.updated_at,
				pending_op = excluded.pending_op,
				attempts   = excluded.attempts
		`,
			a.LocalID,
			nullIfEmpty(a.RemoteID),
			a.SubjectID,
			string(a.Period),
			a.Type,
			a.Score,
			a.Total,
			a.Weight,
			a.Date,
			a.UpdatedAt,
			nullIfEmpty(string(a.Pending)),
			a.Attempts,
		)
		if err != nil {
			return fmt.Errorf("upsert assessment %s: %w", a.LocalID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("upsert assessments: commit: %w", err)
	}

	for _, subjectID := range distinctSubjectIDs(items) {
		s.obs.notify(tableAssessments, subjectID)
	}
	return nil
}

// distinctSubjectIDs returns the unique subject ids in a batch, preserving
// first-seen order.
func distinctSubjectIDs(items []entity.Assessment) []string {
	seen := make(map[string]bool, len(items))
	var ids []string
	for _, a := range items {
		if !seen[a.SubjectID] {
			seen[a.SubjectID] = true
			ids = append(ids, a.SubjectID)
		}
	}
	return ids
}

// MarkAssessmentSynced clears the pending marker on an assessment after the
// remote store acknowledged the push: pending_op and attempts reset, the
// remote id recorded if provided, and updated_at set to now.
//
// Marking a row that no longer exists is a no-op.
func (s *Store) MarkAssessmentSynced(ctx context.Context, localID, remoteID string, now int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE assessments
		SET pending_op = NULL,
		    attempts   = 0,
		    remote_id  = COALESCE(NULLIF(?, ''), remote_id),
		    updated_at = ?
		WHERE local_id = ?
	`, remoteID, now, localID)
	if err != nil {
		return fmt.Errorf("mark assessment synced %s: %w", localID, err)
	}

	subjectID, err := s.assessmentSubjectID(ctx, localID)
	if err == nil {
		s.obs.notify(tableAssessments, subjectID)
	}
	return nil
}

// MarkSubjectSynced clears the pending marker on a subject and records the
// owner the push ran under. Without the owner an ownerless subject would
// re-enter the needing-sync set on every run.
func (s *Store) MarkSubjectSynced(ctx context.Context, id, ownerID string, now int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE subjects
		SET pending_op = NULL,
		    owner_id   = COALESCE(NULLIF(?, ''), owner_id),
		    updated_at = ?
		WHERE id = ?
	`, ownerID, now, id)
	if err != nil {
		return fmt.Errorf("mark subject synced %s: %w", id, err)
	}

	s.obs.notify(tableSubjects, "")
	return nil
}

// BumpAttempts increments the permanent-rejection counter on an assessment.
func (s *Store) BumpAttempts(ctx context.Context, localID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE assessments SET attempts = attempts + 1 WHERE local_id = ?
	`, localID)
	if err != nil {
		return fmt.Errorf("bump attempts %s: %w", localID, err)
	}
	return nil
}

// DeleteAssessment physically removes an assessment row. Only called once a
// remote delete has been acknowledged, or for rows that never reached the
// remote store. Deleting a missing row is a no-op.
func (s *Store) DeleteAssessment(ctx context.Context, localID string) error {
	subjectID, err := s.assessmentSubjectID(ctx, localID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM assessments WHERE local_id = ?`, localID); err != nil {
		return fmt.Errorf("delete assessment %s: %w", localID, err)
	}

	s.obs.notify(tableAssessments, subjectID)
	return nil
}

// AdoptSubjects associates every ownerless subject with the given owner and
// marks it pending so the next sync run pushes it. Returns the number of
// adopted rows.
func (s *Store) AdoptSubjects(ctx context.Context, ownerID string, now int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE subjects
		SET owner_id   = ?,
		    pending_op = COALESCE(pending_op, 'update'),
		    updated_at = ?
		WHERE owner_id IS NULL
	`, ownerID, now)
	if err != nil {
		return 0, fmt.Errorf("adopt subjects: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("adopt subjects: rows affected: %w", err)
	}
	if n > 0 {
		s.obs.notify(tableSubjects, "")
	}
	return n, nil
}
