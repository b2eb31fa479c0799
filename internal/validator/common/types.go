package common

import "time"

// Issue types
const (
	IssueOK    = "ok"
	IssueWarn  = "warn"
	IssueError = "error"
)

// ValidationIssue represents a single validation issue
type ValidationIssue struct {
	Type    string `json:"type"` // "ok", "warn", "error"
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// FileResult represents validation result for a single file
type FileResult struct {
	File   string            `json:"file"`
	Issues []ValidationIssue `json:"issues"`
}

// Status collapses the issues of a file to ok, warn or error
func (f FileResult) Status() string {
	status := IssueOK
	for _, issue := range f.Issues {
		switch issue.Type {
		case IssueError:
			return IssueError
		case IssueWarn:
			status = IssueWarn
		}
	}
	return status
}

// ValidationResult represents the complete validation result
type ValidationResult struct {
	Version     int          `json:"version"`
	GeneratedAt string       `json:"generated_at"`
	Files       []FileResult `json:"files"`
	Summary     Summary      `json:"summary"`
}

// Summary contains validation statistics
type Summary struct {
	Files int `json:"files"`
	OK    int `json:"ok"`
	Warn  int `json:"warn"`
	Error int `json:"error"`
}

// NewValidationResult creates a new validation result
func NewValidationResult(now time.Time) *ValidationResult {
	return &ValidationResult{
		Version:     1,
		GeneratedAt: now.UTC().Format(time.RFC3339Nano),
		Files:       []FileResult{},
	}
}

// AddFileResult adds a file result and updates summary
func (vr *ValidationResult) AddFileResult(fileResult FileResult) {
	vr.Files = append(vr.Files, fileResult)
	vr.Summary.Files++

	switch fileResult.Status() {
	case IssueError:
		vr.Summary.Error++
	case IssueWarn:
		vr.Summary.Warn++
	default:
		vr.Summary.OK++
	}
}
