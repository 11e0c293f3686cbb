package model

import "fmt"

// Failure reasons recorded for files that could not be included in the
// aggregate output.
const (
	ReasonNotAuthorized = "not authorized"
	ReasonFileNotFound  = "file not found"
	ReasonNoAliquot     = "no aliquot found"
)

// IDKind names the kind of identifier a caller requested.
type IDKind string

const (
	IDKindCase IDKind = "case_id"
	IDKindFile IDKind = "file_id"
)

// FailureRecord is one row of the failure report. CaseID or FileID is empty
// when it does not apply to the failure.
type FailureRecord struct {
	CaseID string `json:"case_id,omitempty"`
	FileID string `json:"file_id,omitempty"`
	Reason string `json:"reason"`
}

// UncaughtStatusReason is the reason recorded for an unexpected HTTP status.
func UncaughtStatusReason(status int) string {
	return fmt.Sprintf("uncaught error code: %d", status)
}

// RequestFailedReason is the reason recorded when a download could not be
// performed at all.
func RequestFailedReason(err error) string {
	return fmt.Sprintf("request failed: %v", err)
}

// NotFoundReason is the reason recorded for a requested identifier that the
// metadata query did not return.
func NotFoundReason(kind IDKind) string {
	return fmt.Sprintf("%s not found", kind)
}

// NewNotFoundRecord builds the failure record for a missing identifier.
func NewNotFoundRecord(kind IDKind, id string) FailureRecord {
	rec := FailureRecord{Reason: NotFoundReason(kind)}
	switch kind {
	case IDKindCase:
		rec.CaseID = id
	case IDKindFile:
		rec.FileID = id
	}
	return rec
}
