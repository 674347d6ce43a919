package tui

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/muesli/termenv"
	"github.com/venikman/ui-morn/pkg/client"
	"github.com/venikman/ui-morn/pkg/domain"
	"golang.org/x/term"
)

// NewRenderer returns a function that renders markdown using glamour.
func NewRenderer() func(string) (string, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return func(markdown string) (string, error) { return markdown, nil }
	}
	return func(markdown string) (string, error) {
		return r.Render(markdown)
	}
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Printer writes task updates for a human reader. Text chunks stream as they
// arrive; on a terminal the accumulated markdown is rendered once the task ends.
type Printer struct {
	w        io.Writer
	out      *termenv.Output
	render   func(string) (string, error)
	markdown strings.Builder
}

// NewPrinter creates a Printer. Styling and markdown rendering are enabled
// only when w is a terminal.
func NewPrinter(w io.Writer) *Printer {
	p := &Printer{w: w, out: termenv.NewOutput(w, termenv.WithProfile(termenv.Ascii))}
	if IsTerminal(w) {
		p.out = termenv.NewOutput(w)
		p.render = NewRenderer()
	}
	return p
}

// Update prints one update.
func (p *Printer) Update(u client.Update) error {
	for _, part := range u.Parts {
		switch {
		case part.Text != "":
			text, err := domain.SanitizeText(part.Text, 0)
			if err != nil {
				return err
			}
			p.markdown.WriteString(text)
			if p.render == nil || !u.Terminal() {
				fmt.Fprint(p.w, text)
			}
		case part.Data != nil:
			fmt.Fprintln(p.w)
			fmt.Fprintln(p.w, p.describe(u.TaskID, part.Data))
		case part.File != nil:
			fmt.Fprintf(p.w, "\n[file] %s %s\n", part.File.Name, part.File.URL)
		}
	}
	if !u.Terminal() {
		return nil
	}
	return p.finish(u.Status)
}

func (p *Printer) finish(status string) error {
	if p.render != nil && p.markdown.Len() > 0 {
		rendered, err := p.render(p.markdown.String())
		if err != nil {
			return fmt.Errorf("render markdown: %w", err)
		}
		fmt.Fprint(p.w, "\n\n", rendered)
	}
	color := "#34d399"
	if status != domain.KindCompleted {
		color = "#f87171"
	}
	fmt.Fprintln(p.w)
	fmt.Fprintln(p.w, p.out.String("● "+status).Foreground(p.out.Color(color)).Bold())
	return nil
}

func (p *Printer) describe(taskID string, data *domain.DataPart) string {
	var payload struct {
		Type      string            `json:"type"`
		RequestID string            `json:"requestId"`
		Name      string            `json:"name"`
		IsError   bool              `json:"isError"`
		Tools     []json.RawMessage `json:"tools"`
		Content   []struct {
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(data.Payload, &payload); err != nil || payload.Type == "" {
		return string(data.Payload)
	}

	switch payload.Type {
	case "tool_catalog":
		return fmt.Sprintf("[catalog] %d tools available", len(payload.Tools))
	case "tool_proposal":
		names := make([]string, 0, len(payload.Tools))
		for _, raw := range payload.Tools {
			var item struct {
				Name string `json:"name"`
			}
			if json.Unmarshal(raw, &item) == nil {
				names = append(names, item.Name)
			}
		}
		head := p.out.String("[approval required]").Foreground(p.out.Color("#fbbf24")).Bold()
		return fmt.Sprintf("%s %s\n  approve: uimorn approve %s %s\n  deny:    uimorn approve --deny %s %s",
			head, strings.Join(names, ", "), taskID, payload.RequestID, taskID, payload.RequestID)
	case "tool_result":
		texts := make([]string, 0, len(payload.Content))
		for _, c := range payload.Content {
			texts = append(texts, c.Text)
		}
		mark := "ok"
		if payload.IsError {
			mark = "error"
		}
		return fmt.Sprintf("[tool %s] %s: %s", mark, payload.Name, strings.Join(texts, " "))
	}
	return fmt.Sprintf("[%s] %s", payload.Type, data.Payload)
}
