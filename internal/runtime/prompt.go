package runtime

import (
	"fmt"
	"strings"

	"github.com/antigravity-dev/memoryos/internal/retrieval"
	"github.com/antigravity-dev/memoryos/internal/tasks"
)

// Default prompt-assembly sizes, per spec.md §4.7's HUD/history budget.
const (
	DefaultHUDOpenTasks    = 5
	DefaultHUDMemories     = 5
	DefaultLessonsLimit    = 5
	DefaultHistoryLines    = 3
)

// PromptContext is everything AssemblePrompt needs to render one iteration's
// input: the HUD (open tasks + critical memories), scoped lessons for the
// task's topic, the last-N history entries for the task, and the current
// objective.
type PromptContext struct {
	Engine   *retrieval.Engine
	Registry *tasks.Registry

	Role      string
	ChatID    string
	Scope     string
	Topic     string
	TaskID    string
	Objective string

	HistoryLines int // default DefaultHistoryLines if zero
}

// AssemblePrompt renders the HUD, scoped memory, lessons, recent history and
// objective into the single text block handed to the model, following the
// teacher's Render-then-join composition in retrieval/query.go.
func AssemblePrompt(pc PromptContext) (string, error) {
	var b strings.Builder

	b.WriteString("== HUD ==\n")
	openTasks, err := pc.Registry.List(pc.Topic, "OPEN", DefaultHUDOpenTasks)
	if err != nil {
		return "", fmt.Errorf("runtime: assemble prompt: list open tasks: %w", err)
	}
	if len(openTasks) == 0 {
		b.WriteString("(no open tasks)\n")
	}
	for _, t := range openTasks {
		fmt.Fprintf(&b, "- [%s] %s: %s\n", t.TaskID, t.Type, t.Text)
	}

	criticalLines, err := pc.Engine.Render(retrieval.Filters{
		Scope:      pc.Scope,
		Role:       pc.Role,
		ChatID:     pc.ChatID,
		Importance: "critical",
	}, DefaultHUDMemories)
	if err != nil {
		return "", fmt.Errorf("runtime: assemble prompt: render critical memories: %w", err)
	}
	for _, line := range criticalLines {
		b.WriteString(line)
		b.WriteString("\n")
	}

	b.WriteString("\n== Scoped memory ==\n")
	scopedLines, err := pc.Engine.Render(retrieval.Filters{
		Scope:  pc.Scope,
		Role:   pc.Role,
		ChatID: pc.ChatID,
		Topic:  pc.Topic,
	}, DefaultHUDMemories)
	if err != nil {
		return "", fmt.Errorf("runtime: assemble prompt: render scoped memory: %w", err)
	}
	if len(scopedLines) == 0 {
		b.WriteString("(none)\n")
	}
	for _, line := range scopedLines {
		b.WriteString(line)
		b.WriteString("\n")
	}

	b.WriteString("\n== Lessons ==\n")
	lessonLines, err := pc.Engine.Render(retrieval.Filters{
		Type:  "lesson",
		Topic: pc.Topic,
	}, DefaultLessonsLimit)
	if err != nil {
		return "", fmt.Errorf("runtime: assemble prompt: render lessons: %w", err)
	}
	if len(lessonLines) == 0 {
		b.WriteString("(none)\n")
	}
	for _, line := range lessonLines {
		b.WriteString(line)
		b.WriteString("\n")
	}

	if pc.TaskID != "" {
		b.WriteString("\n== Recent history ==\n")
		history, err := pc.Registry.History(pc.TaskID)
		if err != nil {
			return "", fmt.Errorf("runtime: assemble prompt: history: %w", err)
		}
		n := pc.HistoryLines
		if n <= 0 {
			n = DefaultHistoryLines
		}
		if len(history) > n {
			history = history[len(history)-n:]
		}
		if len(history) == 0 {
			b.WriteString("(none)\n")
		}
		for _, g := range history {
			fmt.Fprintf(&b, "- [%s] %s\n", strings.ToUpper(g.Type), g.Text)
		}
	}

	b.WriteString("\n== Objective ==\n")
	b.WriteString(pc.Objective)
	b.WriteString("\n")

	return b.String(), nil
}
