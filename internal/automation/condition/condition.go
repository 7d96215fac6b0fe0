// Package condition parses and evaluates automation trigger conditions.
//
// The grammar is deliberately small: event field references, number,
// string, boolean and null literals, the comparisons == != < <= > >=
// (=== and !== are accepted as spellings of == and !=), the boolean
// operators && || ! and parentheses. Nothing else is executable.
package condition

import (
	"errors"
	"strings"

	"github.com/smallbiznis/procurelink/internal/integrationevent/domain"
)

var (
	ErrMissingField = errors.New("condition_missing_field")
	ErrTypeMismatch = errors.New("condition_type_mismatch")
)

// Env resolves field references during evaluation.
type Env interface {
	Resolve(name string, path []string) (any, bool)
}

// Expr is a compiled condition. It is immutable and safe for concurrent use.
type Expr struct {
	src    string
	root   node
	fields []string
}

// Compile parses src. A blank condition compiles to an expression that is
// always true.
func Compile(src string) (*Expr, error) {
	trimmed := strings.TrimSpace(src)
	if trimmed == "" {
		return &Expr{src: src, root: literalNode{value: true}}, nil
	}
	root, fields, err := parse(src)
	if err != nil {
		return nil, err
	}
	return &Expr{src: src, root: root, fields: fields}, nil
}

func MustCompile(src string) *Expr {
	expr, err := Compile(src)
	if err != nil {
		panic(err)
	}
	return expr
}

func (e *Expr) String() string { return e.src }

// Fields lists the field references in source order.
func (e *Expr) Fields() []string {
	return append([]string(nil), e.fields...)
}

// Eval evaluates the condition. A reference to a field the event does not
// carry yields ErrMissingField; operands of the wrong type yield
// ErrTypeMismatch.
func (e *Expr) Eval(env Env) (bool, error) {
	value, err := eval(e.root, env)
	if err != nil {
		return false, err
	}
	b, ok := value.(bool)
	if !ok {
		return false, typeError("condition", value)
	}
	return b, nil
}

// Match is Eval with every failure treated as false.
func (e *Expr) Match(env Env) bool {
	if e == nil {
		return false
	}
	ok, err := e.Eval(env)
	return err == nil && ok
}

// Evaluate compiles and matches src in one step. Conditions that fail to
// parse never match.
func Evaluate(src string, env Env) bool {
	expr, err := Compile(src)
	if err != nil {
		return false
	}
	return expr.Match(env)
}

type eventEnv struct {
	event domain.IntegrationEvent
}

// EventEnv exposes an integration event to conditions.
func EventEnv(event domain.IntegrationEvent) Env {
	return eventEnv{event: event}
}

func (e eventEnv) Resolve(name string, path []string) (any, bool) {
	switch name {
	case FieldEventType:
		return string(e.event.EventType), true
	case FieldSourceModule:
		return e.event.SourceModule, true
	case FieldSourceRecordType:
		return e.event.SourceRecordType, true
	case FieldSourceRecordID:
		return e.event.SourceRecordID, true
	case FieldEventData:
		return domain.LookupPath(e.event.EventData, strings.Join(path, "."))
	}
	return nil, false
}

// MapEnv resolves fields from a flat map keyed by the dotted reference,
// e.g. "eventData.finalAmount".
type MapEnv map[string]any

func (m MapEnv) Resolve(name string, path []string) (any, bool) {
	key := name
	if len(path) > 0 {
		key += "." + strings.Join(path, ".")
	}
	v, ok := m[key]
	return v, ok
}
