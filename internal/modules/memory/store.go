package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/go-viper/mapstructure/v2"
	modulesdomain "github.com/smallbiznis/procurelink/internal/modules/domain"
)

// Operation names accepted by FailOn.
const (
	OpGetByID      = "get_by_id"
	OpUpdateStatus = "update_status"
	OpCreate       = "create"
	OpList         = "list"
	OpUpdateMatch  = "update_match"
	OpApplyPayment = "apply_payment"
)

// Store keeps records of one module in insertion order. It backs dev mode
// and tests, and can be told to fail specific calls.
type Store[T modulesdomain.Record[T]] struct {
	module string
	genID  *snowflake.Node
	prefix string

	mu       sync.RWMutex
	order    []string
	records  map[string]T
	failures map[string]error
	calls    []Call
}

// Call is one recorded mutation.
type Call struct {
	Op     string
	ID     string
	Status string
	Fields map[string]any
}

func NewStore[T modulesdomain.Record[T]](module, prefix string, genID *snowflake.Node) *Store[T] {
	return &Store[T]{
		module:   module,
		genID:    genID,
		prefix:   prefix,
		records:  map[string]T{},
		failures: map[string]error{},
	}
}

func (s *Store[T]) Module() string { return s.module }

// Seed inserts records as-is, replacing any with the same id.
func (s *Store[T]) Seed(records ...T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		s.putLocked(r)
	}
}

// FailOn makes op on id (or every id when id is "*") return err.
func (s *Store[T]) FailOn(op, id string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op+"/"+id] = err
}

func (s *Store[T]) ClearFailures() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = map[string]error{}
}

// Calls returns the recorded mutations.
func (s *Store[T]) Calls() []Call {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

func (s *Store[T]) GetByID(_ context.Context, id string) (T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var zero T
	if err := s.failureLocked(OpGetByID, id); err != nil {
		return zero, err
	}
	record, ok := s.records[id]
	if !ok {
		return zero, modulesdomain.NewNotFound(s.module, id)
	}
	return record, nil
}

func (s *Store[T]) UpdateStatus(_ context.Context, id, status string) error {
	status = strings.TrimSpace(status)
	if status == "" {
		return modulesdomain.ErrInvalidStatus
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, Call{Op: OpUpdateStatus, ID: id, Status: status})
	if err := s.failureLocked(OpUpdateStatus, id); err != nil {
		return err
	}
	record, ok := s.records[id]
	if !ok {
		return modulesdomain.NewNotFound(s.module, id)
	}
	s.records[id] = record.WithStatus(status)
	return nil
}

// Create decodes fields onto T using the record's json field names.
func (s *Store[T]) Create(_ context.Context, fields map[string]any) (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero T
	s.calls = append(s.calls, Call{Op: OpCreate, Fields: fields})
	if err := s.failureLocked(OpCreate, "*"); err != nil {
		return zero, err
	}

	record, err := decodeRecord[T](fields)
	if err != nil {
		return zero, fmt.Errorf("%w: %v", modulesdomain.ErrInvalidRecord, err)
	}
	if record.RecordID() == "" {
		record = record.WithID(s.nextID())
	}
	if _, exists := s.records[record.RecordID()]; exists {
		return zero, fmt.Errorf("%w: %s %s already exists", modulesdomain.ErrInvalidRecord, s.module, record.RecordID())
	}
	s.putLocked(record)
	return record, nil
}

func (s *Store[T]) ListByVendor(_ context.Context, vendorID string) ([]T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.failureLocked(OpList, vendorID); err != nil {
		return nil, err
	}
	out := []T{}
	for _, id := range s.order {
		if r := s.records[id]; r.RecordVendorID() == vendorID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Store[T]) List(_ context.Context) ([]T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.failureLocked(OpList, "*"); err != nil {
		return nil, err
	}
	out := make([]T, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.records[id])
	}
	return out, nil
}

func (s *Store[T]) putLocked(record T) {
	id := record.RecordID()
	if _, exists := s.records[id]; !exists {
		s.order = append(s.order, id)
	}
	s.records[id] = record
}

// mutateLocked applies fn to a stored record; callers hold the write lock.
func (s *Store[T]) mutateLocked(id string, fn func(T) (T, error)) (T, error) {
	var zero T
	record, ok := s.records[id]
	if !ok {
		return zero, modulesdomain.NewNotFound(s.module, id)
	}
	updated, err := fn(record)
	if err != nil {
		return zero, err
	}
	s.records[id] = updated
	return updated, nil
}

func (s *Store[T]) failureLocked(op, id string) error {
	if err, ok := s.failures[op+"/"+id]; ok {
		return err
	}
	if err, ok := s.failures[op+"/*"]; ok {
		return err
	}
	return nil
}

func (s *Store[T]) nextID() string {
	if s.genID == nil {
		return fmt.Sprintf("%s_%d", s.prefix, len(s.order)+1)
	}
	return s.prefix + "_" + s.genID.Generate().String()
}

func decodeRecord[T any](fields map[string]any) (T, error) {
	var out T
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           &out,
		DecodeHook:       mapstructure.StringToTimeHookFunc(time.RFC3339),
	})
	if err != nil {
		return out, err
	}
	if err := decoder.Decode(fields); err != nil {
		return out, err
	}
	return out, nil
}
