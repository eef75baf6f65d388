package turns

import (
	"fmt"
	"io"
	"strings"
)

// PrettyPrinter renders turns in a configurable human-friendly way.
type PrettyPrinter struct {
	IncludeIDs      bool
	IncludeProgress bool
	IncludeSources  bool
	IndentSpaces    int
	MaxTextLines    int // 0 => unlimited
}

// PrintOption configures a PrettyPrinter.
type PrintOption func(*PrettyPrinter)

// WithIDs toggles inclusion of turn IDs.
func WithIDs(include bool) PrintOption { return func(p *PrettyPrinter) { p.IncludeIDs = include } }

// WithProgress toggles printing of intermediate status turns.
func WithProgress(include bool) PrintOption {
	return func(p *PrettyPrinter) { p.IncludeProgress = include }
}

// WithSources toggles printing of citations.
func WithSources(include bool) PrintOption {
	return func(p *PrettyPrinter) { p.IncludeSources = include }
}

// WithIndent sets the number of spaces used for indentation.
func WithIndent(spaces int) PrintOption { return func(p *PrettyPrinter) { p.IndentSpaces = spaces } }

// WithMaxTextLines limits how many lines of text to print for message bodies (0 = unlimited).
func WithMaxTextLines(n int) PrintOption { return func(p *PrettyPrinter) { p.MaxTextLines = n } }

func NewPrettyPrinter(opts ...PrintOption) *PrettyPrinter {
	p := &PrettyPrinter{
		IncludeProgress: true,
		IncludeSources:  true,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// FprintTurns prints the turns using an ephemeral PrettyPrinter configured via options.
func FprintTurns(w io.Writer, ts []Turn, opts ...PrintOption) {
	pp := NewPrettyPrinter(opts...)
	for i := range ts {
		pp.FprintTurn(w, &ts[i])
	}
}

func (p *PrettyPrinter) FprintTurn(w io.Writer, t *Turn) {
	if t == nil {
		return
	}
	if t.IsProgress() && !p.IncludeProgress {
		return
	}
	pad := strings.Repeat(" ", p.IndentSpaces)
	head := pad + string(t.Role) + ":"
	if t.Kind != "" && t.Kind != KindMessage {
		head = fmt.Sprintf("%s%s(%s):", pad, t.Role, t.Kind)
	}
	if p.IncludeIDs && t.ID != "" {
		head = fmt.Sprintf("%s[%s] %s", pad, t.ID, strings.TrimLeft(head, " "))
	}

	for _, part := range t.Parts {
		if part.IsText() {
			p.fprintText(w, head, part.Text())
			continue
		}
		m, _ := part.Media()
		if m.URI != "" {
			fmt.Fprintf(w, "%s <%s %s>\n", head, m.MIMEType, m.URI)
		} else {
			fmt.Fprintf(w, "%s <%s, %d bytes>\n", head, m.MIMEType, len(m.Data))
		}
	}

	if p.IncludeSources {
		for i, c := range t.Sources {
			fmt.Fprintf(w, "%s  [%d] %s: %s (%s)\n", pad, i+1, c.Kind, c.Title, c.URI)
		}
	}
}

func (p *PrettyPrinter) fprintText(w io.Writer, head string, text string) {
	if p.MaxTextLines <= 0 {
		fmt.Fprintf(w, "%s %s\n", head, text)
		return
	}
	lines := strings.Split(text, "\n")
	if len(lines) <= p.MaxTextLines {
		fmt.Fprintf(w, "%s %s\n", head, text)
		return
	}
	trimmed := strings.Join(lines[:p.MaxTextLines], "\n")
	fmt.Fprintf(w, "%s %s\n", head, trimmed)
}
