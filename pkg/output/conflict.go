// Package output renders human-facing diagnostics for the CLI.
// Styling lives here so the data packages stay presentation-free.
package output

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"

	"github.com/YunHsiao/crysknife/pkg/conflict"
)

// Adaptive colors keep the diff readable on light and dark terminals.
var (
	headingColor = lipgloss.AdaptiveColor{
		Light: "#212529",
		Dark:  "#F8F9FA",
	}
	addedColor = lipgloss.AdaptiveColor{
		Light: "#28A745", // Green
		Dark:  "#4CDD76",
	}
	removedColor = lipgloss.AdaptiveColor{
		Light: "#DC3545", // Red
		Dark:  "#FF6B7D",
	}
	mutedColor = lipgloss.AdaptiveColor{
		Light: "#6C757D",
		Dark:  "#ADB5BD",
	}
)

var (
	headingStyle = lipgloss.NewStyle().
			Foreground(headingColor).
			Bold(true)

	addedStyle = lipgloss.NewStyle().
			Foreground(addedColor)

	removedStyle = lipgloss.NewStyle().
			Foreground(removedColor)

	contextStyle = lipgloss.NewStyle().
			Foreground(mutedColor)
)

// RenderConflict writes the three-part diff for an unmatched patch:
// "-" lines are what the target actually contains, "+" lines are what
// the stored record expected to find.
func RenderConflict(w io.Writer, c *conflict.Report) {
	if c == nil {
		return
	}

	header := fmt.Sprintf("%s: no candidate position found:", c.Target)
	if c.HasNearMiss {
		header = fmt.Sprintf("%s: closest candidate at line %d (score %.2f):",
			c.Target, c.Position+1, c.Score)
	}
	fmt.Fprintln(w, headingStyle.Render(header))

	for _, line := range c.Diff {
		switch line.Type {
		case conflict.LineAdded:
			fmt.Fprintln(w, addedStyle.Render("+ "+line.Content))
		case conflict.LineRemoved:
			fmt.Fprintln(w, removedStyle.Render("- "+line.Content))
		default:
			fmt.Fprintln(w, contextStyle.Render("  "+line.Content))
		}
	}
}
