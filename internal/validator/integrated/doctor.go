package integrated

import (
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/afero"

	"github.com/YoshitsuguKoike/deestage/internal/domain/session"
	"github.com/YoshitsuguKoike/deestage/internal/infra/fs"
	"github.com/YoshitsuguKoike/deestage/internal/infrastructure/repository"
	"github.com/YoshitsuguKoike/deestage/internal/validator/common"
	stateValidator "github.com/YoshitsuguKoike/deestage/internal/validator/state"
	timelineValidator "github.com/YoshitsuguKoike/deestage/internal/validator/timeline"
)

// IntegratedReport is the validation report over every session under a root
type IntegratedReport struct {
	Version     int                                 `json:"version"`
	GeneratedAt string                              `json:"generated_at"`
	Sessions    map[string]*common.ValidationResult `json:"sessions"`
	Summary     IntegratedSummary                   `json:"summary"`
}

// IntegratedSummary contains aggregated validation statistics
type IntegratedSummary struct {
	Sessions int `json:"sessions"`
	Files    int `json:"files"`
	OK       int `json:"ok"`
	Warn     int `json:"warn"`
	Error    int `json:"error"`
}

// DoctorConfig contains configuration for doctor validation
type DoctorConfig struct {
	Fs           afero.Fs
	SessionsRoot string
	EventTypes   timelineValidator.EventTypes
	SessionID    string // empty validates every session
	Now          func() time.Time
}

// RunIntegratedValidation validates the documents of each session
func RunIntegratedValidation(config *DoctorConfig) (*IntegratedReport, error) {
	now := time.Now
	if config.Now != nil {
		now = config.Now
	}
	report := &IntegratedReport{
		Version:     1,
		GeneratedAt: now().UTC().Format(time.RFC3339Nano),
		Sessions:    make(map[string]*common.ValidationResult),
	}

	ids, err := sessionIDs(config)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		result := common.NewValidationResult(now())
		dir := filepath.Join(config.SessionsRoot, id)

		result.AddFileResult(validateDocument(config.Fs, filepath.Join(dir, repository.WorkflowFile), true, func(data []byte) common.FileResult {
			return stateValidator.ValidateWorkflow(id, data)
		}))
		result.AddFileResult(validateDocument(config.Fs, filepath.Join(dir, repository.LoopFile), false, stateValidator.ValidateLoop))
		result.AddFileResult(validateTimeline(config, filepath.Join(dir, repository.TimelineFile)))

		report.Sessions[id] = result
	}

	report.Summary = calculateIntegratedSummary(report.Sessions)
	return report, nil
}

func sessionIDs(config *DoctorConfig) ([]string, error) {
	if config.SessionID != "" {
		if err := session.ValidateID(config.SessionID); err != nil {
			return nil, err
		}
		return []string{config.SessionID}, nil
	}
	entries, err := afero.ReadDir(config.Fs, config.SessionsRoot)
	if err != nil {
		if fs.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() && session.ValidateID(e.Name()) == nil {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// validateDocument reads one JSON document; a missing required document is an error
func validateDocument(afs afero.Fs, path string, required bool, validate func([]byte) common.FileResult) common.FileResult {
	data, err := afero.ReadFile(afs, path)
	if err != nil {
		result := common.FileResult{File: filepath.Base(path)}
		switch {
		case fs.IsNotExist(err) && required:
			result.Issues = []common.ValidationIssue{{Type: common.IssueError, Message: "file not found"}}
		case fs.IsNotExist(err):
			result.Issues = []common.ValidationIssue{{Type: common.IssueOK, Message: "not started"}}
		default:
			result.Issues = []common.ValidationIssue{{Type: common.IssueError, Message: fmt.Sprintf("cannot read file: %v", err)}}
		}
		return result
	}
	return withOK(validate(data))
}

func validateTimeline(config *DoctorConfig, path string) common.FileResult {
	file, err := config.Fs.Open(path)
	if err != nil {
		result := common.FileResult{File: filepath.Base(path)}
		if fs.IsNotExist(err) {
			result.Issues = []common.ValidationIssue{{Type: common.IssueWarn, Message: "file not found"}}
		} else {
			result.Issues = []common.ValidationIssue{{Type: common.IssueError, Message: fmt.Sprintf("cannot read file: %v", err)}}
		}
		return result
	}
	defer file.Close()

	result, err := timelineValidator.NewValidator(config.EventTypes).ValidateFile(file)
	if err != nil {
		result.Issues = append(result.Issues, common.ValidationIssue{Type: common.IssueError, Message: err.Error()})
	}
	return withOK(result)
}

func withOK(result common.FileResult) common.FileResult {
	if len(result.Issues) == 0 {
		result.Issues = []common.ValidationIssue{{Type: common.IssueOK, Message: "valid"}}
	}
	return result
}

func calculateIntegratedSummary(sessions map[string]*common.ValidationResult) IntegratedSummary {
	summary := IntegratedSummary{Sessions: len(sessions)}
	for _, r := range sessions {
		summary.Files += r.Summary.Files
		summary.OK += r.Summary.OK
		summary.Warn += r.Summary.Warn
		summary.Error += r.Summary.Error
	}
	return summary
}

// Status returns "error", "warn" or "ok" for the whole report
func (r *IntegratedReport) Status() string {
	if r.Summary.Error > 0 {
		return common.IssueError
	} else if r.Summary.Warn > 0 {
		return common.IssueWarn
	}
	return common.IssueOK
}
