package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/gradient/gradetrack/internal/entity"
)

// Subjects returns all subjects ordered by name (id as tiebreak for
// deterministic results).
func (s *Store) Subjects(ctx context.Context) ([]entity.Subject, error) {
	return s.querySubjects(ctx, `
		SELECT id, name, icon, owner_id, updated_at, pending_op
		FROM subjects
		ORDER BY name ASC, id ASC
	`)
}

// SubjectsNeedingSync returns subjects that must be pushed on the next sync
// run: rows with a pending local mutation, plus rows never associated with a
// signed-in user.
func (s *Store) SubjectsNeedingSync(ctx context.Context) ([]entity.Subject, error) {
	return s.querySubjects(ctx, `
		SELECT id, name, icon, owner_id, updated_at, pending_op
		FROM subjects
		WHERE owner_id IS NULL OR pending_op IS NOT NULL
		ORDER BY name ASC, id ASC
	`)
}

// Subject retrieves a single subject by id.
// Returns ErrNotFound if it does not exist.
func (s *Store) Subject(ctx context.Context, id string) (entity.Subject, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, icon, owner_id, updated_at, pending_op
		FROM subjects
		WHERE id = ?
	`, id)

	sub, err := scanSubject(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return entity.Subject{}, ErrNotFound
		}
		return entity.Subject{}, fmt.Errorf("read subject %s: %w", id, err)
	}
	return sub, nil
}

// Assessments returns the assessments of a subject, newest first.
func (s *Store) Assessments(ctx context.Context, subjectID string) ([]entity.Assessment, error) {
	return s.queryAssessments(ctx, `
		SELECT local_id, remote_id, subject_id, period, type, score, total, weight, date, updated_at, pending_op, attempts
		FROM assessments
		WHERE subject_id = ?
		ORDER BY updated_at DESC, local_id ASC
	`, subjectID)
}

// AllAssessments returns every assessment across subjects, ordered by local
// id for stable dumps.
func (s *Store) AllAssessments(ctx context.Context) ([]entity.Assessment, error) {
	return s.queryAssessments(ctx, `
		SELECT local_id, remote_id, subject_id, period, type, score, total, weight, date, updated_at, pending_op, attempts
		FROM assessments
		ORDER BY local_id ASC
	`)
}

// PendingAssessments returns assessments with an unsynchronized local
// mutation, oldest first so long-waiting rows are pushed before fresh ones.
// Rows whose attempts counter reached maxAttempts are excluded; pass
// maxAttempts <= 0 to disable the cutoff.
func (s *Store) PendingAssessments(ctx context.Context, maxAttempts int) ([]entity.Assessment, error) {
	query := `
		SELECT local_id, remote_id, subject_id, period, type, score, total, weight, date, updated_at, pending_op, attempts
		FROM assessments
		WHERE pending_op IS NOT NULL
	`
	var args []any
	if maxAttempts > 0 {
		query += ` AND attempts < ?`
		args = append(args, maxAttempts)
	}
	query += ` ORDER BY updated_at ASC, local_id ASC`

	return s.queryAssessments(ctx, query, args...)
}

// Assessment retrieves a single assessment by local id.
// Returns ErrNotFound if it does not exist.
func (s *Store) Assessment(ctx context.Context, localID string) (entity.Assessment, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT local_id, remote_id, subject_id, period, type, score, total, weight, date, updated_at, pending_op, attempts
		FROM assessments
		WHERE local_id = ?
	`, localID)

	a, err := scanAssessment(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return entity.Assessment{}, ErrNotFound
		}
		return entity.Assessment{}, fmt.Errorf("read assessment %s: %w", localID, err)
	}
	return a, nil
}

// assessmentSubjectID looks up the owning subject of an assessment row.
// Used to scope observer notifications.
func (s *Store) assessmentSubjectID(ctx context.Context, localID string) (string, error) {
	var subjectID string
	err := s.db.QueryRowContext(ctx, `
		SELECT subject_id FROM assessments WHERE local_id = ?
	`, localID).Scan(&subjectID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("read assessment subject %s: %w", localID, err)
	}
	return subjectID, nil
}

func (s *Store) querySubjects(ctx context.Context, query string, args ...any) ([]entity.Subject, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query subjects: %w", err)
	}
	defer rows.Close()

	subjects := []entity.Subject{}
	for rows.Next() {
		sub, err := scanSubject(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan subject: %w", err)
		}
		subjects = append(subjects, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subjects: %w", err)
	}
	return subjects, nil
}

func (s *Store) queryAssessments(ctx context.Context, query string, args ...any) ([]entity.Assessment, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query assessments: %w", err)
	}
	defer rows.Close()

	assessments := []entity.Assessment{}
	for rows.Next() {
		a, err := scanAssessment(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan assessment: %w", err)
		}
		assessments = append(assessments, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate assessments: %w", err)
	}
	return assessments, nil
}

// scanSubject reads one subjects row, mapping NULL columns to empty strings.
func scanSubject(scan func(...any) error) (entity.Subject, error) {
	var (
		sub     entity.Subject
		owner   sql.NullString
		pending sql.NullString
	)
	if err := scan(&sub.ID, &sub.Name, &sub.Icon, &owner, &sub.UpdatedAt, &pending); err != nil {
		return entity.Subject{}, err
	}
	sub.OwnerID = owner.String
	sub.Pending = entity.PendingOp(pending.String)
	return sub, nil
}

// scanAssessment reads one assessments row, mapping NULL columns to empty
// strings.
func scanAssessment(scan func(...any) error) (entity.Assessment, error) {
	var (
		a       entity.Assessment
		remote  sql.NullString
		pending sql.NullString
	)
	err := scan(
		&a.LocalID, &remote, &a.SubjectID, (*string)(&a.Period), &a.Type,
		&a.Score, &a.Total, &a.Weight, &a.Date, &a.UpdatedAt, &pending, &a.Attempts,
	)
	if err != nil {
		return entity.Assessment{}, err
	}
	a.RemoteID = remote.String
	a.Pending = entity.PendingOp(pending.String)
	return a, nil
}
