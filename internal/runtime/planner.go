package runtime

import (
	"regexp"
	"strings"
)

// PlannerLines is the parsed result of scanning a planner-mode model
// response for its ATTEMPT/RESULT/LESSON lines, per spec.md §4.7's planner
// output contract.
type PlannerLines struct {
	Attempts []string
	Results  []PlannerResult
	Lessons  []PlannerLesson
}

// PlannerResult is one parsed RESULT line: success/failure plus free text.
type PlannerResult struct {
	Success bool
	Text    string
	Metric  string
}

// PlannerLesson is one parsed LESSON line: an optional topic plus free text.
type PlannerLesson struct {
	Topic string
	Text  string
}

// Line prefixes matched case-sensitively at the start of a trimmed line,
// following the teacher's regex-first, fallback-estimate parsing idiom
// (internal/cost/tokens.go's ExtractTokenUsage).
var (
	attemptRe = regexp.MustCompile(`^ATTEMPT:\s*(.+)$`)
	resultRe  = regexp.MustCompile(`^RESULT:\s*(success|failure)(?:\s*\[metric=([^\]]*)\])?\s*(.*)$`)
	lessonRe  = regexp.MustCompile(`^LESSON(?:\[topic=([^\]]*)\])?:\s*(.+)$`)
)

// ParsePlannerOutput scans output line by line for ATTEMPT/RESULT/LESSON
// markers. Lines that match none of the three prefixes are plain reasoning
// and are not returned — callers that want the full transcript still have
// the raw output string.
func ParsePlannerOutput(output string) PlannerLines {
	var lines PlannerLines
	for _, raw := range strings.Split(output, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		if m := attemptRe.FindStringSubmatch(line); m != nil {
			lines.Attempts = append(lines.Attempts, strings.TrimSpace(m[1]))
			continue
		}
		if m := resultRe.FindStringSubmatch(line); m != nil {
			lines.Results = append(lines.Results, PlannerResult{
				Success: m[1] == "success",
				Metric:  m[2],
				Text:    strings.TrimSpace(m[3]),
			})
			continue
		}
		if m := lessonRe.FindStringSubmatch(line); m != nil {
			lines.Lessons = append(lines.Lessons, PlannerLesson{
				Topic: m[1],
				Text:  strings.TrimSpace(m[2]),
			})
			continue
		}
	}
	return lines
}
