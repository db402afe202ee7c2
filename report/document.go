package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/hazyhaar/repro/event"
)

// Document renders r as a Markdown bug report.
func (r *Report) Document() string {
	var sb strings.Builder
	r.WriteTo(&sb)
	return sb.String()
}

// WriteTo writes the Markdown bug report to w.
func (r *Report) WriteTo(w io.Writer) (int64, error) {
	cw := &countWriter{w: w}
	heading := r.Title
	if heading == "" {
		heading = "Page state"
	}
	fmt.Fprintf(cw, "# %s\n\n", heading)
	if r.RecordingID != "" {
		fmt.Fprintf(cw, "- Recording: `%s`\n", r.RecordingID)
	}
	if r.URL != "" {
		fmt.Fprintf(cw, "- URL: %s\n", r.URL)
	}
	fmt.Fprintf(cw, "- At: %s of %s\n", ms(r.At), ms(r.Duration))
	fmt.Fprintf(cw, "- Pointer: (%.0f, %.0f) %s\n", r.Interaction.Pointer.X, r.Interaction.Pointer.Y, pointerState(r.Interaction.PointerState))
	fmt.Fprintf(cw, "- Viewport: %.0fx%.0f\n", r.Interaction.Viewport.X, r.Interaction.Viewport.Y)

	if len(r.Console) > 0 {
		fmt.Fprint(cw, "\n## Console\n\n```\n")
		for _, m := range r.Console {
			fmt.Fprintf(cw, "[%s] %s\n", m.Level, strings.Join(m.Parts, " "))
		}
		fmt.Fprint(cw, "```\n")
	}

	if len(r.Network) > 0 {
		fmt.Fprint(cw, "\n## Network\n\n| Method | URL | Outcome |\n|---|---|---|\n")
		for _, x := range r.Network {
			fmt.Fprintf(cw, "| %s | %s | %s |\n", x.Method, x.URL, outcome(x))
		}
	}

	if r.Markdown != "" {
		fmt.Fprintf(cw, "\n## Page\n\n%s\n", r.Markdown)
	}
	return cw.n, cw.err
}

func ms(v uint32) string { return fmt.Sprintf("%d.%03ds", v/1000, v%1000) }

func pointerState(s event.PointerState) string {
	switch s {
	case event.PointerStateDown:
		return "down"
	case event.PointerStateUp:
		return "up"
	}
	return ""
}

func outcome(x Exchange) string {
	switch {
	case x.Pending:
		return "pending"
	case x.Reason != "":
		return "failed: " + x.Reason
	}
	return fmt.Sprintf("HTTP %d", x.Status)
}

type countWriter struct {
	w   io.Writer
	n   int64
	err error
}

func (c *countWriter) Write(p []byte) (int, error) {
	if c.err != nil {
		return 0, c.err
	}
	n, err := c.w.Write(p)
	c.n += int64(n)
	c.err = err
	return n, err
}
