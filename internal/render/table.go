package render

import (
	"fmt"
	"strings"
	"unicode/utf8"

	humanize "github.com/dustin/go-humanize"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/selectstar/dbt-impact-report-action/internal/model"
)

const maxPathWidth = 48

// StyledText applies a lipgloss style to text when colors are enabled.
// When colors are disabled, it returns the plain text unchanged.
func StyledText(text string, style lipgloss.Style) string {
	if ColorsEnabled() {
		return style.Render(text)
	}
	return text
}

// truncate shortens a string to maxLen runes, appending an ellipsis if truncated.
func truncate(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

// EmptyState renders a styled empty-state message with an optional contextual hint.
// When colors are enabled the message is rendered in dim gray and the hint is italic.
// When quiet is true the hint is suppressed.
func EmptyState(message, hint string, quiet bool) string {
	if !ColorsEnabled() {
		if quiet || hint == "" {
			return message
		}
		return message + "\n" + hint
	}

	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	hintStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Italic(true)

	result := dimStyle.Render(message)
	if !quiet && hint != "" {
		result += "\n" + hintStyle.Render(hint)
	}
	return result
}

// catalogLabel describes how a model resolved against the catalog.
func catalogLabel(m *model.ChangedModel) string {
	switch {
	case !m.Resolved():
		return "not found"
	case m.FirstMapping() == nil || m.FirstMapping().Table == nil:
		return "no warehouse table"
	default:
		return m.FirstMapping().Table.Location()
	}
}

func summaryRow(m *model.ChangedModel, r *Reporter) []string {
	status := string(m.Status)
	if status == "" {
		status = "-"
	}
	return []string{
		truncate(m.Path, maxPathWidth),
		status,
		catalogLabel(m),
		humanize.Comma(int64(r.ImpactCount(m))),
	}
}

// Summary renders the run summary: one row per changed model with its
// change status, catalog resolution and impact count under r's variant.
func Summary(models []*model.ChangedModel, r *Reporter) string {
	if len(models) == 0 {
		return EmptyState("No changed dbt models.", "Only files matching the model path pattern are reported.", false)
	}

	if !ColorsEnabled() {
		return renderPlainSummary(models, r)
	}

	headers := []string{"Model", "Status", "Warehouse Table", "Impact"}

	rows := make([][]string, 0, len(models))
	for _, m := range models {
		rows = append(rows, summaryRow(m, r))
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("8"))).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			s := lipgloss.NewStyle().PaddingLeft(1).PaddingRight(1)

			if row == table.HeaderRow {
				return s.Bold(true).Foreground(lipgloss.Color("15"))
			}

			if row < 0 || row >= len(models) {
				return s
			}

			m := models[row]
			switch col {
			case 0: // Model
				return s.Bold(true)
			case 2: // Warehouse Table
				if !m.Resolved() {
					return s.Foreground(lipgloss.Color("9"))
				}
				return s.Foreground(lipgloss.Color("8"))
			case 3: // Impact
				if r.ImpactCount(m) > 0 {
					return s.Foreground(lipgloss.Color("11"))
				}
				return s.Foreground(lipgloss.Color("10"))
			default:
				return s
			}
		})

	total := lipgloss.NewStyle().Bold(true).Render(
		fmt.Sprintf("Total potential impact: %s", humanize.Comma(int64(r.Total(models)))))
	return t.Render() + "\n" + total
}

func renderPlainSummary(models []*model.ChangedModel, r *Reporter) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%-48s %-10s %-40s %s\n", "Model", "Status", "Warehouse Table", "Impact")
	fmt.Fprintf(&b, "%s\n", strings.Repeat("-", 108))

	for _, m := range models {
		row := summaryRow(m, r)
		fmt.Fprintf(&b, "%-48s %-10s %-40s %s\n", row[0], row[1], row[2], row[3])
	}

	fmt.Fprintf(&b, "Total potential impact: %s\n", humanize.Comma(int64(r.Total(models))))
	return b.String()
}
