package timeline

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/YoshitsuguKoike/deestage/internal/validator/common"
	"github.com/YoshitsuguKoike/deestage/internal/workflow"
)

// EventTypes is the registry lookup used to check type and category
type EventTypes interface {
	EventType(eventType string) (workflow.EventTypeDefinition, error)
}

// Validator checks a timeline.ndjson log line by line
type Validator struct {
	types   EventTypes
	lastSeq int64
}

// NewValidator creates a new timeline validator
func NewValidator(types EventTypes) *Validator {
	return &Validator{types: types}
}

// ValidateFile validates every line of the log; issue fields name the line
func (v *Validator) ValidateFile(reader io.Reader) (common.FileResult, error) {
	result := common.FileResult{File: "timeline.ndjson"}
	var issues common.Issues

	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		v.validateLine(line, fmt.Sprintf("/line/%d", lineNumber), &issues)
	}
	if err := scanner.Err(); err != nil {
		return result, fmt.Errorf("error reading timeline: %w", err)
	}
	result.Issues = issues
	return result, nil
}

func (v *Validator) validateLine(line, field string, issues *common.Issues) {
	var raw map[string]interface{}
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		// readers skip such lines
		issues.Warnf(field, "invalid JSON: %v", err)
		return
	}

	var lineIssues common.Issues
	common.ValidateRequiredKeys(raw, []string{"id", "seq", "ts", "type", "category"}, &lineIssues)
	if ts, ok := raw["ts"]; ok {
		common.ValidateTimestampUTC(ts, "ts", &lineIssues)
	}
	if seq, ok := raw["seq"]; ok {
		v.validateSeq(seq, &lineIssues)
	}
	if t, ok := raw["type"].(string); ok {
		v.validateType(t, raw["category"], &lineIssues)
	}

	for _, is := range lineIssues {
		is.Field = strings.TrimSuffix(field+"/"+is.Field, "/")
		*issues = append(*issues, is)
	}
}

// validateSeq requires strictly increasing sequence numbers
func (v *Validator) validateSeq(value interface{}, issues *common.Issues) {
	n, ok := value.(float64)
	if !ok || n < 1 || n != float64(int64(n)) {
		issues.Errorf("seq", "seq must be a positive integer")
		return
	}
	seq := int64(n)
	if v.lastSeq > 0 && seq <= v.lastSeq {
		issues.Errorf("seq", "seq %d does not follow %d (non-monotonic)", seq, v.lastSeq)
	}
	v.lastSeq = seq
}

func (v *Validator) validateType(eventType string, category interface{}, issues *common.Issues) {
	if v.types == nil {
		return
	}
	def, err := v.types.EventType(eventType)
	if err != nil {
		issues.Errorf("type", "unregistered event type %s", eventType)
		return
	}
	if c, _ := category.(string); c != def.Category {
		issues.Warnf("category", "category %q does not match registry category %q", c, def.Category)
	}
}
