// Package render draws chat exchanges on a terminal.
package render

import (
	"fmt"
	"html"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/korylprince/redbox-chat/chatbot"
	"github.com/microcosm-cc/bluemonday"
)

var (
	bannerStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	routeStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	noteStyle     = lipgloss.NewStyle().Faint(true)
	citationStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
)

// Options configure a Renderer
type Options struct {
	// Markdown renders the finished answer through glamour instead of streaming plain text
	Markdown bool
	// Style is a glamour standard style name; empty picks one from the terminal background
	Style string
	Width int
}

// Renderer creates terminal sinks that share one writer
type Renderer struct {
	mu       sync.Mutex
	w        io.Writer
	markdown *glamour.TermRenderer
	policy   *bluemonday.Policy
}

// NewRenderer creates a new Renderer writing to w
func NewRenderer(w io.Writer, opts Options) (*Renderer, error) {
	r := &Renderer{w: w, policy: bluemonday.StrictPolicy()}
	if !opts.Markdown {
		return r, nil
	}

	width := opts.Width
	if width <= 0 {
		width = 80
	}
	style := glamour.WithAutoStyle()
	if opts.Style != "" {
		style = glamour.WithStandardStyle(opts.Style)
	}
	md, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(width))
	if err != nil {
		return nil, fmt.Errorf("could not create markdown renderer: %w", err)
	}
	r.markdown = md
	return r, nil
}

// Sink returns a chatbot.Sink for one exchange
func (r *Renderer) Sink(message string) chatbot.Sink {
	return &Sink{r: r}
}

// Banner prints a sanitized one-line notice
func (r *Renderer) Banner(text string) {
	r.printf("%s\n", bannerStyle.Render(r.clean(text)))
}

// Note prints a sanitized faint line
func (r *Renderer) Note(text string) {
	r.printf("%s\n", noteStyle.Render(r.clean(text)))
}

// clean strips markup from server-supplied text for plain display
func (r *Renderer) clean(s string) string {
	return html.UnescapeString(r.policy.Sanitize(s))
}

func (r *Renderer) printf(format string, args ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.w, format, args...)
}

func (r *Renderer) render(text string) string {
	out, err := r.markdown.Render(text)
	if err != nil {
		return text
	}
	return out
}

// Sink renders one exchange. Plain text streams as it arrives; markdown is
// rendered once the response completes.
type Sink struct {
	r *Renderer

	mu         sync.Mutex
	printed    string
	display    string
	sources    []chatbot.Source
	activities int
}

// Update prints what is new in text. A text that does not extend the
// previous one replaces it on a fresh line.
func (s *Sink) Update(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.display = text
	if s.r.markdown != nil {
		return
	}
	if strings.HasPrefix(text, s.printed) {
		s.r.printf("%s", text[len(s.printed):])
	} else {
		s.r.printf("\n%s", text)
	}
	s.printed = text
}

// SetSources stores the citation list shown by ShowCitations
func (s *Sink) SetSources(sources []chatbot.Source) {
	s.mu.Lock()
	s.sources = sources
	s.mu.Unlock()
}

func (s *Sink) ShowRoute(route string) {
	s.r.printf("%s\n", routeStyle.Render("["+s.r.clean(route)+"]"))
}

// SetActivities prints the lines not yet shown
func (s *Sink) SetActivities(lines []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, line := range lines[min(s.activities, len(lines)):] {
		s.r.printf("%s\n", noteStyle.Render("· "+s.r.clean(line)))
	}
	s.activities = len(lines)
}

func (s *Sink) ShowInfo(text string) {
	s.r.printf("%s\n", noteStyle.Render(s.r.clean(text)))
}

func (s *Sink) ShowCitations(messageID string, hasSources bool) {
	s.mu.Lock()
	sources := s.sources
	s.mu.Unlock()

	if !hasSources {
		return
	}
	var b strings.Builder
	b.WriteString("\nSources:\n")
	for i, src := range sources {
		name := s.r.clean(src.FileName)
		if src.URL != "" {
			name += " (" + src.URL + ")"
		}
		fmt.Fprintf(&b, "  [%d] %s\n", i+1, citationStyle.Render(name))
	}
	s.r.printf("%s", b.String())
}

func (s *Sink) ShowFeedback(messageID string) {
	s.r.printf("%s\n", noteStyle.Render("message "+messageID))
}

func (s *Sink) ShowError(message string) {
	s.r.Banner(message)
}

// Complete finishes the answer and prints label
func (s *Sink) Complete(label string) {
	s.mu.Lock()
	display := s.display
	s.mu.Unlock()

	if s.r.markdown != nil {
		s.r.printf("%s", s.r.render(display))
	} else {
		s.r.printf("\n")
	}
	s.r.printf("%s\n", noteStyle.Render(label))
}
