package graph

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/venikman/ui-morn/pkg/domain"
)

// Step is one node of a task timeline: a run of consecutive events with the same label.
type Step struct {
	Label    string
	Kind     string
	Count    int
	FirstSeq int64
	LastSeq  int64
}

// Steps folds events into timeline steps. Data parts with a "type" field
// label their event by that type (and tool name), text events by their kind.
func Steps(events []domain.Event) []Step {
	var steps []Step
	for _, ev := range events {
		label := stepLabel(ev)
		if n := len(steps); n > 0 && steps[n-1].Label == label {
			steps[n-1].Count++
			steps[n-1].LastSeq = ev.Sequence
			continue
		}
		steps = append(steps, Step{Label: label, Kind: ev.Kind, Count: 1, FirstSeq: ev.Sequence, LastSeq: ev.Sequence})
	}
	return steps
}

func stepLabel(ev domain.Event) string {
	for _, p := range ev.Parts {
		if p.Data == nil {
			continue
		}
		var payload struct {
			Type string `json:"type"`
			Name string `json:"name"`
		}
		if json.Unmarshal(p.Data.Payload, &payload) != nil || payload.Type == "" {
			continue
		}
		if payload.Name != "" {
			return payload.Type + " " + payload.Name
		}
		return payload.Type
	}
	return ev.Kind
}

// GenerateMermaid produces a Mermaid flowchart of a task's timeline.
// Shapes follow the event kind:
// - terminal: ((Circle))
// - tool result: [[Subroutine]]
// - input-required: [/Parallelogram/]
// - default: [Rectangle]
// The last step is styled as current, or as failed when the task did not complete.
func GenerateMermaid(events []domain.Event) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	steps := Steps(events)
	for i, s := range steps {
		id := fmt.Sprintf("s%d", i)
		opener, closer := "[", "]"
		switch {
		case domain.IsTerminal(s.Kind):
			opener, closer = "((", "))"
		case strings.HasPrefix(s.Label, "tool_result"):
			opener, closer = "[[", "]]"
		case s.Kind == domain.KindInputRequired:
			opener, closer = "[/", "/]"
		}

		text := sanitizeLabel(s.Label)
		if s.Count > 1 {
			text = fmt.Sprintf("%s ×%d", text, s.Count)
		}
		seq := fmt.Sprintf("#%d", s.FirstSeq)
		if s.LastSeq != s.FirstSeq {
			seq = fmt.Sprintf("#%d-%d", s.FirstSeq, s.LastSeq)
		}
		sb.WriteString(fmt.Sprintf("    %s%s\"%s <br/> %s\"%s\n", id, opener, text, seq, closer))
		if i > 0 {
			sb.WriteString(fmt.Sprintf("    s%d --> %s\n", i-1, id))
		}
	}

	if n := len(steps); n > 0 {
		last := steps[n-1]
		sb.WriteString("\n    %% Overlay Styles\n")
		// Black text keeps contrast on both light and dark themes.
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")
		sb.WriteString("    classDef failed fill:#ffcdd2,stroke:#c62828,stroke-width:4px,color:#000;\n")
		class := "current"
		if domain.IsTerminal(last.Kind) && last.Kind != domain.KindCompleted {
			class = "failed"
		}
		sb.WriteString(fmt.Sprintf("    class s%d %s;\n", n-1, class))
	}

	return sb.String()
}

func sanitizeLabel(s string) string {
	return strings.NewReplacer("\"", "'", "\n", " ").Replace(s)
}
