package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/nexushub/portal/internal/domain"
	"github.com/nexushub/portal/internal/plan"
)

var (
	styleGray     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	styleBold     = lipgloss.NewStyle().Bold(true)
	styleBoldCyan = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	styleGreen    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	styleError    = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	styleCard     = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("8")).
			Padding(0, 1)
)

// categoryMarks tag preview steps the way the browser colours them.
var categoryMarks = map[plan.Category]string{
	plan.CategoryAgentCall:   "[agent]",
	plan.CategoryFinalAnswer: "[answer]",
	plan.CategoryGenericTool: "[tool]",
}

// renderPreview draws a plan awaiting approval.
func renderPreview(p plan.Preview) string {
	var b strings.Builder
	b.WriteString(styleBoldCyan.Render("Execution plan"))
	if p.Prompt != "" {
		b.WriteString(styleGray.Render("  for: " + p.Prompt))
	}
	b.WriteString("\n")
	for _, step := range p.Steps {
		fmt.Fprintf(&b, "%s %s %s\n", styleGray.Render(fmt.Sprintf("%d.", step.Index)), categoryMarks[step.Category], styleBold.Render(step.Title))
		fmt.Fprintf(&b, "   %s\n", step.Description)
		if step.Expandable && step.Details != "" {
			for _, line := range strings.Split(step.Details, "\n") {
				b.WriteString("   " + styleGray.Render(line) + "\n")
			}
		}
	}
	return styleCard.Render(strings.TrimRight(b.String(), "\n"))
}

// renderAgent draws one directory card.
func renderAgent(a domain.Agent) string {
	title := styleBold.Render(a.Name)
	if a.Verified {
		title += " " + styleGreen.Render("verified")
	}
	lines := []string{
		title,
		styleGray.Render(a.ID + " · " + a.Category + " · by " + a.Author),
	}
	if a.Description != "" {
		lines = append(lines, a.Description)
	}
	if len(a.Capabilities) > 0 {
		lines = append(lines, styleGray.Render("capabilities: "+strings.Join(a.Capabilities, ", ")))
	}
	if a.Endpoint != "" {
		lines = append(lines, styleGray.Render(a.Endpoint))
	}
	return styleCard.Render(strings.Join(lines, "\n"))
}

// renderMessage draws one transcript entry.
func renderMessage(m domain.ChatMessage) string {
	switch m.Role {
	case domain.RoleUser:
		return styleBold.Render("you") + ": " + m.Content
	case domain.RoleSystem:
		return styleGray.Render(m.Content)
	default:
		return styleBoldCyan.Render("orchestrator") + ": " + m.Content
	}
}

func renderError(msg string) string {
	return styleError.Render("error: " + msg)
}
