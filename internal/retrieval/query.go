package retrieval

import (
	"fmt"
	"strings"
	"time"

	"github.com/antigravity-dev/memoryos/internal/glyph"
)

// Query returns glyphs matching f, newest first unless f.Importance is set
// (importance band primary, timestamp secondary), per spec.md §4.2. Ties in
// timestamp break by id DESC.
func (e *Engine) Query(f Filters, limit int) ([]glyph.Glyph, error) {
	where, args, err := f.buildWhere(e.now())
	if err != nil {
		return nil, err
	}

	orderBy := "timestamp DESC, id DESC"
	results, err := e.store.QueryWhere(where, orderBy, 0, args...)
	if err != nil {
		return nil, fmt.Errorf("retrieval: query: %w", err)
	}

	if f.Importance != "" {
		sortByImportanceThenRecency(results)
	}
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func sortByImportanceThenRecency(glyphs []glyph.Glyph) {
	// Stable insertion sort: small N per query, and we want to preserve the
	// timestamp/id ordering already applied by the SQL ORDER BY within a band.
	for i := 1; i < len(glyphs); i++ {
		j := i
		for j > 0 && importanceRank(glyphs[j].Importance) < importanceRank(glyphs[j-1].Importance) {
			glyphs[j], glyphs[j-1] = glyphs[j-1], glyphs[j]
			j--
		}
	}
}

// Render returns Query's selection formatted as compact single-line
// prompt-injection records: [T][topic=X][ts=rel][attrs] content.
func (e *Engine) Render(f Filters, limit int) ([]string, error) {
	glyphs, err := e.Query(f, limit)
	if err != nil {
		return nil, err
	}
	now := e.now()
	lines := make([]string, 0, len(glyphs))
	for _, g := range glyphs {
		lines = append(lines, renderLine(g, now))
	}
	return lines, nil
}

func renderLine(g glyph.Glyph, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s]", typeTag(g.Type))
	if g.Topic != "" {
		fmt.Fprintf(&b, "[topic=%s]", g.Topic)
	}
	age := now.Sub(g.Timestamp)
	fmt.Fprintf(&b, "[ts=%s]", relativeAge(age))
	if age < time.Hour {
		b.WriteString("[FRESH]")
	}
	var attrs []string
	if g.Choice != "" {
		attrs = append(attrs, "choice="+g.Choice)
	}
	if g.Importance != "" {
		attrs = append(attrs, "importance="+g.Importance)
	}
	if g.TaskID != "" {
		attrs = append(attrs, "task_id="+g.TaskID)
	}
	if len(attrs) > 0 {
		fmt.Fprintf(&b, "[%s]", strings.Join(attrs, ","))
	}
	b.WriteString(" ")
	b.WriteString(g.Text)
	return b.String()
}

// typeTag uppercases task-centric types at the presentation layer only, per
// glyph.go's documented convention; core types render lowercase.
func typeTag(t string) string {
	for _, tt := range glyph.TaskTypes {
		if t == tt {
			return strings.ToUpper(t)
		}
	}
	return t
}

func relativeAge(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
