package models

import "fmt"

// Status is the processing lifecycle of a document. The Spanish values are
// canonical on the wire and in the database; legacy English aliases from the
// first frontend are still accepted on input.
type Status string

const (
	StatusPending    Status = "pendiente"
	StatusProcessing Status = "procesando"
	StatusProcessed  Status = "procesado"
	StatusError      Status = "error"
)

var statusAliases = map[string]Status{
	"pendiente":  StatusPending,
	"procesando": StatusProcessing,
	"procesado":  StatusProcessed,
	"error":      StatusError,
	// legacy aliases
	"pending":    StatusPending,
	"processing": StatusProcessing,
	"completed":  StatusProcessed,
	"processed":  StatusProcessed,
	"failed":     StatusError,
}

// ParseStatus maps a stored or client-supplied value onto the closed set.
func ParseStatus(s string) (Status, error) {
	if st, ok := statusAliases[s]; ok {
		return st, nil
	}
	return "", fmt.Errorf("unknown processing status %q", s)
}

func (s Status) String() string { return string(s) }

// Terminal reports whether a pipeline run ends in this status.
func (s Status) Terminal() bool {
	return s == StatusProcessed || s == StatusError
}

// English returns the presentation label used by English locales.
func (s Status) English() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusProcessing:
		return "processing"
	case StatusProcessed:
		return "processed"
	case StatusError:
		return "error"
	}
	return string(s)
}
