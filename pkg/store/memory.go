// Package store provides an in-memory punishment Gateway for tests and for
// running without a database.
package store

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/NicolasHaas/sanction/pkg/datastore"
)

// Op names a Gateway operation for failure injection and call counting.
type Op string

const (
	OpSelect        Op = "select"
	OpSelectByID    Op = "select by id"
	OpSelectExact   Op = "select exact"
	OpCount         Op = "count by calculation"
	OpInsertActive  Op = "insert active"
	OpInsertHistory Op = "insert history"
	OpUpdateReason  Op = "update reason"
	OpDelete        Op = "delete"
)

// MemoryStore is a datastore.Gateway kept entirely in memory.
// It mirrors the SQL store for ordering and not-found handling.
type MemoryStore struct {
	mu sync.RWMutex

	nextActiveID  int64
	nextHistoryID int64
	active        map[int64]datastore.Row
	history       map[int64]datastore.Row

	failures map[Op]error
	failAll  error
	calls    map[Op]int
	zeroIDs  bool
}

var _ datastore.Gateway = (*MemoryStore)(nil)

// NewMemory creates an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		nextActiveID:  1,
		nextHistoryID: 1,
		active:        make(map[int64]datastore.Row),
		history:       make(map[int64]datastore.Row),
		failures:      make(map[Op]error),
		calls:         make(map[Op]int),
	}
}

// Fail makes op return err until cleared with a nil err.
func (s *MemoryStore) Fail(op Op, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, op)
		return
	}
	s.failures[op] = err
}

// FailAll makes every operation return err. A nil err restores service.
func (s *MemoryStore) FailAll(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failAll = err
}

// ReportZeroIDs makes inserts succeed but report id 0, as some drivers do.
func (s *MemoryStore) ReportZeroIDs(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.zeroIDs = on
}

// Calls returns how often op was invoked, including failed invocations.
func (s *MemoryStore) Calls(op Op) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.calls[op]
}

// TotalCalls returns the number of operations invoked so far.
func (s *MemoryStore) TotalCalls() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := 0
	for _, n := range s.calls {
		total += n
	}
	return total
}

// Rows returns a snapshot of table ordered by start time and id.
func (s *MemoryStore) Rows(table datastore.Table) []datastore.Row {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedRows(s.table(table), func(datastore.Row) bool { return true })
}

// enter counts op and returns the injected failure, if any. Callers hold mu.
func (s *MemoryStore) enter(op Op) error {
	s.calls[op]++
	err := s.failures[op]
	if err == nil {
		err = s.failAll
	}
	if err != nil {
		return fmt.Errorf("store: %s: %w: %w", op, datastore.ErrStorageUnavailable, err)
	}
	return nil
}

func (s *MemoryStore) table(t datastore.Table) map[int64]datastore.Row {
	if t == datastore.History {
		return s.history
	}
	return s.active
}

func sortedRows(rows map[int64]datastore.Row, keep func(datastore.Row) bool) []datastore.Row {
	var out []datastore.Row
	for _, r := range rows {
		if keep(r) {
			out = append(out, cloneRow(r))
		}
	}
	slices.SortFunc(out, func(a, b datastore.Row) int {
		if a.Start != b.Start {
			if a.Start < b.Start {
				return -1
			}
			return 1
		}
		return int(a.ID - b.ID)
	})
	return out
}

func cloneRow(r datastore.Row) datastore.Row {
	if r.Reason != nil {
		reason := *r.Reason
		r.Reason = &reason
	}
	return r
}

func (s *MemoryStore) SelectByIdentifierOrAddress(_ context.Context, table datastore.Table, identifier, address string) ([]datastore.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpSelect); err != nil {
		return nil, err
	}
	return sortedRows(s.table(table), func(r datastore.Row) bool {
		return r.Identifier == identifier || r.Identifier == address
	}), nil
}

func (s *MemoryStore) SelectByIdentifier(_ context.Context, table datastore.Table, identifier string, types []string) ([]datastore.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpSelect); err != nil {
		return nil, err
	}
	return sortedRows(s.table(table), func(r datastore.Row) bool {
		return r.Identifier == identifier && (len(types) == 0 || slices.Contains(types, r.Type))
	}), nil
}

func (s *MemoryStore) SelectByID(_ context.Context, id int64) (*datastore.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpSelectByID); err != nil {
		return nil, err
	}
	r, ok := s.active[id]
	if !ok {
		return nil, nil
	}
	r = cloneRow(r)
	return &r, nil
}

func (s *MemoryStore) SelectExact(_ context.Context, identifier string, start int64) (*datastore.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpSelectExact); err != nil {
		return nil, err
	}
	var found *datastore.Row
	for _, r := range s.active {
		if r.Identifier != identifier || r.Start != start {
			continue
		}
		if found == nil || r.ID > found.ID {
			c := cloneRow(r)
			found = &c
		}
	}
	return found, nil
}

func (s *MemoryStore) CountByCalculation(_ context.Context, identifier, calculation string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpCount); err != nil {
		return 0, err
	}
	count := 0
	for _, r := range s.history {
		if r.Identifier == identifier && strings.EqualFold(r.Calculation, calculation) {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) InsertActive(_ context.Context, row datastore.Row) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpInsertActive); err != nil {
		return 0, err
	}
	row.ID = s.nextActiveID
	s.nextActiveID++
	s.active[row.ID] = cloneRow(row)
	if s.zeroIDs {
		return 0, nil
	}
	return row.ID, nil
}

func (s *MemoryStore) InsertHistory(_ context.Context, row datastore.Row) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpInsertHistory); err != nil {
		return 0, err
	}
	row.ID = s.nextHistoryID
	s.nextHistoryID++
	s.history[row.ID] = cloneRow(row)
	if s.zeroIDs {
		return 0, nil
	}
	return row.ID, nil
}

func (s *MemoryStore) UpdateReason(_ context.Context, id int64, reason *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpUpdateReason); err != nil {
		return err
	}
	r, ok := s.active[id]
	if !ok {
		return nil
	}
	r.Reason = nil
	if reason != nil {
		value := *reason
		r.Reason = &value
	}
	s.active[id] = r
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpDelete); err != nil {
		return err
	}
	delete(s.active, id)
	return nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}
