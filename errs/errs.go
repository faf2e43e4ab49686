// Package errs provides the structured error taxonomy used across the workflow kernel.
package errs

import (
	"sort"
	"strconv"
	"strings"
)

// Kind identifies which of the three kernel-level error categories an error belongs to.
type Kind string

const (
	// KindConfiguration marks static/build-time failures: unknown node type, duplicate id,
	// unresolved port, schema mismatch on a connection, malformed config shape, missing
	// required config field.
	KindConfiguration Kind = "configuration_error"
	// KindNodeExecution marks dynamic failures raised inside a node's execute/run during
	// the sequential phase.
	KindNodeExecution Kind = "node_execution_error"
	// KindWorkflow marks engine-state misuse: start when running, execute without start,
	// stop when not started.
	KindWorkflow Kind = "workflow_error"
)

// E captures a structured kernel error: its kind, the node it concerns (if any), a
// human-readable message, and an optional wrapped cause.
type E struct {
	Kind     Kind
	NodeID   string
	Message  string
	Metadata map[string]string

	cause error
}

// Option configures an error envelope.
type Option func(*E)

// New constructs an error envelope of the given kind.
func New(kind Kind, message string, opts ...Option) *E {
	e := &E{
		Kind:    kind,
		Message: strings.TrimSpace(message),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// WithNodeID records the node the error concerns.
func WithNodeID(nodeID string) Option {
	trimmed := strings.TrimSpace(nodeID)
	return func(e *E) {
		e.NodeID = trimmed
	}
}

// WithCause sets the underlying cause error.
func WithCause(err error) Option {
	return func(e *E) {
		e.cause = err
	}
}

// WithMetadata merges the provided metadata into the error envelope.
func WithMetadata(meta map[string]string) Option {
	return func(e *E) {
		if len(meta) == 0 {
			return
		}
		if e.Metadata == nil {
			e.Metadata = make(map[string]string, len(meta))
		}
		for k, v := range meta {
			key := strings.TrimSpace(k)
			if key == "" {
				continue
			}
			e.Metadata[key] = v
		}
	}
}

// WithField appends a single metadata key/value pair.
func WithField(key, value string) Option {
	return func(e *E) {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" {
			return
		}
		if e.Metadata == nil {
			e.Metadata = make(map[string]string, 1)
		}
		e.Metadata[trimmedKey] = value
	}
}

func (e *E) Error() string {
	if e == nil {
		return "<nil>"
	}
	parts := make([]string, 0, 6)

	kind := strings.TrimSpace(string(e.Kind))
	if kind == "" {
		kind = "unknown"
	}
	parts = append(parts, "kind="+kind)

	if e.NodeID != "" {
		parts = append(parts, "node="+e.NodeID)
	}
	if e.Message != "" {
		parts = append(parts, "message="+strconv.Quote(e.Message))
	}
	if len(e.Metadata) > 0 {
		keys := make([]string, 0, len(e.Metadata))
		for k := range e.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		pairs := make([]string, 0, len(keys))
		for _, k := range keys {
			pairs = append(pairs, k+"="+strconv.Quote(e.Metadata[k]))
		}
		parts = append(parts, "fields="+strings.Join(pairs, ","))
	}
	if e.cause != nil {
		parts = append(parts, "cause="+strconv.Quote(e.cause.Error()))
	}

	return strings.Join(parts, " ")
}

func (e *E) Unwrap() error { return e.cause }

// Is reports whether err is an *E of the given kind, looking through wrapped causes.
func Is(err error, kind Kind) bool {
	for err != nil {
		if e, ok := err.(*E); ok {
			if e.Kind == kind {
				return true
			}
			err = e.cause
			continue
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// Configuration builds a ConfigurationError.
func Configuration(message string, opts ...Option) *E {
	return New(KindConfiguration, message, opts...)
}

// NodeExecution builds a NodeExecutionError for nodeID wrapping cause.
func NodeExecution(nodeID string, cause error) *E {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return New(KindNodeExecution, msg, WithNodeID(nodeID), WithCause(cause))
}

// Workflow builds a WorkflowException describing an invalid engine-state transition.
func Workflow(message string, opts ...Option) *E {
	return New(KindWorkflow, message, opts...)
}
