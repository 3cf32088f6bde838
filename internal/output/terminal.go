package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/lorenzotomasdiez/summarize/internal/cookies"
	"github.com/lorenzotomasdiez/summarize/internal/refresh"
)

const prefix = "Refresh Free: "

// Reporter prints user-facing progress. Progress and warnings go to errOut,
// results to out. Styling follows the terminal behind errOut, so pipes and
// buffers get plain text.
type Reporter struct {
	out    io.Writer
	errOut io.Writer

	label  lipgloss.Style
	good   lipgloss.Style
	warn   lipgloss.Style
	dim    lipgloss.Style
	strong lipgloss.Style
}

func NewReporter(out, errOut io.Writer) *Reporter {
	r := lipgloss.NewRenderer(errOut)
	return &Reporter{
		out:    out,
		errOut: errOut,
		label:  r.NewStyle().Bold(true).Foreground(lipgloss.AdaptiveColor{Light: "#2980b9", Dark: "#3498db"}),
		good:   r.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#16a085", Dark: "#1abc9c"}),
		warn:   r.NewStyle().Bold(true).Foreground(lipgloss.AdaptiveColor{Light: "#d35400", Dark: "#f1c40f"}),
		dim:    r.NewStyle().Faint(true),
		strong: r.NewStyle().Bold(true),
	}
}

// Found reports the candidate count before probing. rounds is runs+1.
func (r *Reporter) Found(candidates, rounds int, minParams string) {
	fmt.Fprintf(r.errOut, "%sfound %d :free models; testing (runs=%d, min-params=%s)\n",
		r.label.Render(prefix), candidates, rounds, minParams)
}

// Refining is printed when the extra rounds start.
func (r *Reporter) Refining(candidates, extraRuns int) {
	fmt.Fprintf(r.errOut, "%srefining %d models with %d extra runs\n",
		r.label.Render(prefix), candidates, extraRuns)
}

// Validated prints the summary line and the rule order.
func (r *Reporter) Validated(result *refresh.Result, candidates int) {
	fmt.Fprintf(r.errOut, "%svalidated %s of %d\n",
		r.label.Render(prefix), r.strong.Render(fmt.Sprint(len(result.Validated))), candidates)
	for i, v := range result.Validated {
		fmt.Fprintf(r.errOut, "  %d. %s %s\n", i+1, r.good.Render(v.ModelID),
			r.dim.Render(fmt.Sprintf("(%d/%d)", v.SuccessCount, v.Attempts)))
	}
}

// Rejected lists candidates that never succeeded, with their last error.
func (r *Reporter) Rejected(result *refresh.Result) {
	for _, v := range result.Rejected {
		reason := v.LastError
		if reason == "" {
			reason = "no successful probe"
		}
		fmt.Fprintf(r.errOut, "  - %s %s\n", v.ModelID, r.dim.Render(truncate(reason, 120)))
	}
}

func (r *Reporter) Warn(format string, args ...any) {
	fmt.Fprintf(r.errOut, "%s %s\n", r.warn.Render("Warning:"), fmt.Sprintf(format, args...))
}

// Wrote reports the persisted path on stdout.
func (r *Reporter) Wrote(path string) {
	fmt.Fprintf(r.out, "Wrote %s\n", path)
}

// DryRun prints the rule that would have been written.
func (r *Reporter) DryRun(path string, ids []string) {
	fmt.Fprintf(r.out, "Dry run: would write %d candidates to %s\n", len(ids), path)
	for _, id := range ids {
		fmt.Fprintf(r.out, "  %s\n", id)
	}
}

// Cookies prints the outcome of cookie resolution. Token values are never
// printed.
func (r *Reporter) Cookies(res cookies.Result) {
	source := res.Cookies.Source
	if source == "" {
		source = "none"
	}
	header := "missing"
	if res.Cookies.CookieHeader != "" {
		header = r.good.Render("present")
	}
	fmt.Fprintf(r.out, "Source: %s\n", source)
	fmt.Fprintf(r.out, "Cookie header: %s\n", header)
	for _, w := range res.Warnings {
		r.Warn("%s", w)
	}
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
