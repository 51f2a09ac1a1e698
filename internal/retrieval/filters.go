package retrieval

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Filters is the enumerated filter set accepted by Query and Render.
// Zero values mean "unconstrained" for that dimension.
type Filters struct {
	Type          string
	Topic         string
	TextSubstring string
	Session       string
	Source        string
	Choice        string // choice/status
	Since         time.Time
	Until         time.Time
	Scope         string
	ChatID        string
	Role          string
	Visibility    string
	Project       string
	TaskID        string
	Importance    string
	Recent        string // raw "<N><h|d|w|m>" token
}

// allowedFilterKeys is the enumerated set from spec.md §4.2; ParseFilters
// rejects any key outside it.
var allowedFilterKeys = map[string]bool{
	"type": true, "topic": true, "text": true, "session": true, "source": true,
	"choice": true, "status": true, "since": true, "until": true, "scope": true,
	"chat_id": true, "role": true, "visibility": true, "project": true,
	"task_id": true, "importance": true, "recent": true,
}

// ParseFilters builds a Filters from a raw key/value map (the shape a CLI or
// runtime action payload naturally produces), rejecting unknown keys with a
// clear error as required by spec.md §4.2's edge cases.
func ParseFilters(raw map[string]string) (Filters, error) {
	var f Filters
	for k := range raw {
		if !allowedFilterKeys[k] {
			return Filters{}, fmt.Errorf("retrieval: unknown filter key %q", k)
		}
	}

	f.Type = raw["type"]
	f.Topic = raw["topic"]
	f.TextSubstring = raw["text"]
	f.Session = raw["session"]
	f.Source = raw["source"]
	if v, ok := raw["choice"]; ok {
		f.Choice = v
	} else {
		f.Choice = raw["status"]
	}
	f.Scope = raw["scope"]
	f.ChatID = raw["chat_id"]
	f.Role = raw["role"]
	f.Visibility = raw["visibility"]
	f.Project = raw["project"]
	f.TaskID = raw["task_id"]
	f.Importance = raw["importance"]
	f.Recent = raw["recent"]

	if s, ok := raw["since"]; ok && s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return Filters{}, fmt.Errorf("retrieval: parse since: %w", err)
		}
		f.Since = t
	}
	if s, ok := raw["until"]; ok && s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return Filters{}, fmt.Errorf("retrieval: parse until: %w", err)
		}
		f.Until = t
	}

	return f, nil
}

// ParseRecent parses the "<N><h|d|w|m>" token per spec.md §4.2's tie-break
// rules: w=7d, m=30d.
func ParseRecent(token string, now time.Time) (time.Time, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return time.Time{}, nil
	}
	if len(token) < 2 {
		return time.Time{}, fmt.Errorf("retrieval: invalid recent token %q", token)
	}
	unit := token[len(token)-1]
	n, err := strconv.Atoi(token[:len(token)-1])
	if err != nil {
		return time.Time{}, fmt.Errorf("retrieval: invalid recent token %q: %w", token, err)
	}
	var d time.Duration
	switch unit {
	case 'h':
		d = time.Duration(n) * time.Hour
	case 'd':
		d = time.Duration(n) * 24 * time.Hour
	case 'w':
		d = time.Duration(n) * 7 * 24 * time.Hour
	case 'm':
		d = time.Duration(n) * 30 * 24 * time.Hour
	default:
		return time.Time{}, fmt.Errorf("retrieval: invalid recent unit %q", string(unit))
	}
	return now.Add(-d), nil
}

// importanceRank orders importance bands H < M < L < (unset) for the
// importance-primary sort used by Query when Importance is requested as an
// ordering hint, and by Task Registry list ordering.
func importanceRank(importance string) int {
	switch importance {
	case "H", "critical":
		return 0
	case "M":
		return 1
	case "L":
		return 2
	default:
		return 3
	}
}

// buildWhere constructs the WHERE clause and args for f against the glyphs
// table, always constraining to active rows, following the teacher's
// condition/args-slice accretion pattern in store/lessons.go.
func (f Filters) buildWhere(now time.Time) (string, []any, error) {
	conditions := []string{"status = 'active'"}
	var args []any

	if f.Type != "" {
		conditions = append(conditions, "type = ?")
		args = append(args, f.Type)
	}
	if f.Topic != "" {
		conditions = append(conditions, "topic = ?")
		args = append(args, f.Topic)
	}
	if f.TextSubstring != "" {
		conditions = append(conditions, "text LIKE ?")
		args = append(args, "%"+f.TextSubstring+"%")
	}
	if f.Session != "" {
		conditions = append(conditions, "session = ?")
		args = append(args, f.Session)
	}
	if f.Source != "" {
		conditions = append(conditions, "source = ?")
		args = append(args, f.Source)
	}
	if f.Choice != "" {
		conditions = append(conditions, "choice = ?")
		args = append(args, f.Choice)
	}
	if f.Scope != "" {
		conditions = append(conditions, "scope = ?")
		args = append(args, f.Scope)
	}
	if f.ChatID != "" {
		conditions = append(conditions, "chat_id = ?")
		args = append(args, f.ChatID)
	}
	if f.Role != "" {
		conditions = append(conditions, "agent_role = ?")
		args = append(args, f.Role)
	}
	if f.Visibility != "" {
		conditions = append(conditions, "visibility = ?")
		args = append(args, f.Visibility)
	}
	if f.Project != "" {
		conditions = append(conditions, "project = ?")
		args = append(args, f.Project)
	}
	if f.TaskID != "" {
		conditions = append(conditions, "task_id = ?")
		args = append(args, f.TaskID)
	}
	if f.Importance != "" {
		conditions = append(conditions, "importance = ?")
		args = append(args, f.Importance)
	}
	if !f.Since.IsZero() {
		conditions = append(conditions, "timestamp >= ?")
		args = append(args, f.Since)
	}
	if !f.Until.IsZero() {
		conditions = append(conditions, "timestamp <= ?")
		args = append(args, f.Until)
	}
	if f.Recent != "" {
		cutoff, err := ParseRecent(f.Recent, now)
		if err != nil {
			return "", nil, err
		}
		conditions = append(conditions, "timestamp >= ?")
		args = append(args, cutoff)
	}

	return strings.Join(conditions, " AND "), args, nil
}
