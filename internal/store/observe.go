package store

import (
	"context"
	"log/slog"
	"sync"

	"github.com/gradient/gradetrack/internal/entity"
)

// Observed tables.
const (
	tableSubjects    = "subjects"
	tableAssessments = "assessments"
)

// observers tracks live observation streams over the store.
//
// Each subscriber has a buffered signal channel of size 1: notifying an
// already-signalled subscriber is a no-op, so bursts of writes coalesce into
// a single re-query. The subscriber's pump goroutine re-reads the current
// result set on each signal and delivers it latest-value-wins, which gives
// the contract the callers rely on: intermediate states may be skipped but
// the most recent state is always observable.
type observers struct {
	mu     sync.Mutex
	next   int
	subs   map[int]*subscriber
	closed bool
}

type subscriber struct {
	table     string
	subjectID string // assessments only; filters notifications to one subject
	signal    chan struct{}
	done      chan struct{}
}

func newObservers() *observers {
	return &observers{subs: make(map[int]*subscriber)}
}

// add registers a subscriber and primes it with an initial signal so the
// stream starts with the current result set.
func (o *observers) add(table, subjectID string) (int, *subscriber) {
	o.mu.Lock()
	defer o.mu.Unlock()

	sub := &subscriber{
		table:     table,
		subjectID: subjectID,
		signal:    make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	if o.closed {
		close(sub.done)
		return -1, sub
	}

	id := o.next
	o.next++
	o.subs[id] = sub
	sub.signal <- struct{}{}
	return id, sub
}

// remove unregisters a subscriber and releases its pump goroutine.
func (o *observers) remove(id int) {
	o.mu.Lock()
	defer o.mu.Unlock()

	sub, ok := o.subs[id]
	if !ok {
		return
	}
	delete(o.subs, id)
	close(sub.done)
}

// notify signals every subscriber whose filter matches the write.
// Non-blocking: the size-1 signal buffer coalesces redundant wake-ups.
func (o *observers) notify(table, subjectID string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	for _, sub := range o.subs {
		if sub.table != table {
			continue
		}
		if table == tableAssessments && sub.subjectID != "" && sub.subjectID != subjectID {
			continue
		}
		select {
		case sub.signal <- struct{}{}:
		default:
		}
	}
}

// closeAll releases every subscriber. Called from Store.Close.
func (o *observers) closeAll() {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.closed = true
	for id, sub := range o.subs {
		delete(o.subs, id)
		close(sub.done)
	}
}

// SubjectStream is a live view over the subjects table.
// C carries the full current result set; receive from it until Cancel.
type SubjectStream struct {
	C <-chan []entity.Subject

	store *Store
	id    int
	once  sync.Once
}

// Cancel stops the stream and closes C. Safe to call more than once.
func (s *SubjectStream) Cancel() {
	s.once.Do(func() { s.store.obs.remove(s.id) })
}

// AssessmentStream is a live view over one subject's assessments.
type AssessmentStream struct {
	C <-chan []entity.Assessment

	store *Store
	id    int
	once  sync.Once
}

// Cancel stops the stream and closes C. Safe to call more than once.
func (s *AssessmentStream) Cancel() {
	s.once.Do(func() { s.store.obs.remove(s.id) })
}

// ObserveSubjects returns a live, continuously-updated view of all subjects
// ordered by name. The stream emits the current result set immediately and
// again after every committed write to the subjects table. The context bounds
// the stream's lifetime; cancelling it (or calling Cancel) closes C.
func (s *Store) ObserveSubjects(ctx context.Context) *SubjectStream {
	out := make(chan []entity.Subject, 1)
	id, sub := s.obs.add(tableSubjects, "")
	stream := &SubjectStream{C: out, store: s, id: id}

	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				stream.Cancel()
				return
			case <-sub.done:
				return
			case <-sub.signal:
			}

			subjects, err := s.Subjects(ctx)
			if err != nil {
				if ctx.Err() != nil {
					stream.Cancel()
					return
				}
				slog.Warn("observe subjects: query failed", "error", err)
				continue
			}
			deliverSubjects(out, subjects)
		}
	}()

	return stream
}

// ObserveAssessments returns a live view of one subject's assessments,
// newest first. Same emission contract as ObserveSubjects.
func (s *Store) ObserveAssessments(ctx context.Context, subjectID string) *AssessmentStream {
	out := make(chan []entity.Assessment, 1)
	id, sub := s.obs.add(tableAssessments, subjectID)
	stream := &AssessmentStream{C: out, store: s, id: id}

	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				stream.Cancel()
				return
			case <-sub.done:
				return
			case <-sub.signal:
			}

			assessments, err := s.Assessments(ctx, subjectID)
			if err != nil {
				if ctx.Err() != nil {
					stream.Cancel()
					return
				}
				slog.Warn("observe assessments: query failed", "subject_id", subjectID, "error", err)
				continue
			}
			deliverAssessments(out, assessments)
		}
	}()

	return stream
}

// deliverSubjects publishes latest-value-wins: if the consumer has not drained
// the previous emission, it is replaced by the newer one.
func deliverSubjects(out chan []entity.Subject, v []entity.Subject) {
	for {
		select {
		case out <- v:
			return
		default:
		}
		select {
		case <-out:
		default:
		}
	}
}

// deliverAssessments publishes latest-value-wins, see deliverSubjects.
func deliverAssessments(out chan []entity.Assessment, v []entity.Assessment) {
	for {
		select {
		case out <- v:
			return
		default:
		}
		select {
		case <-out:
		default:
		}
	}
}
