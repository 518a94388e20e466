package domain

import (
	"errors"
	"fmt"
)

// Upstream operations reported in UpstreamError.Op.
const (
	OpEmbed        = "embed"
	OpVectorSearch = "vector_search"
	OpLLM          = "llm"
)

// ErrReadOnly is returned by stores opened for query traffic only.
var ErrReadOnly = errors.New("vector store is read-only")

// ValidationError reports a malformed request. Reason is safe to show to callers.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// UpstreamError wraps a failure of the embedding client, the vector backend
// or the language model. Transient marks failures worth one more attempt.
type UpstreamError struct {
	Op        string
	Err       error
	Transient bool
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// ConfigurationError reports a missing or invalid setting; the process must not serve.
type ConfigurationError struct {
	Setting string
	Reason  string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration %s: %s", e.Setting, e.Reason)
}

// IsTransient reports whether err is an UpstreamError flagged as transient.
func IsTransient(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue) && ue.Transient
}
