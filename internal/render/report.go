package render

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	humanize "github.com/dustin/go-humanize"

	"github.com/selectstar/dbt-impact-report-action/internal/model"
)

const (
	blockSeparator = "\n<br/>"
	tableHeader    = "| # | Data Source Type | Object Type | Name |\n|--------|--------|--------|--------|\n"
)

// Reporter renders the impact report document posted on the pull request.
type Reporter struct {
	webURL       string
	deduplicated bool
}

// ReportOption configures a Reporter.
type ReportOption func(*Reporter)

// WithDeduplicated selects the deduplicated impact set (the default) or the
// raw concatenation of own and mapped-table edges.
func WithDeduplicated(on bool) ReportOption {
	return func(r *Reporter) { r.deduplicated = on }
}

// NewReporter returns a Reporter whose links point at webURL.
func NewReporter(webURL string, opts ...ReportOption) *Reporter {
	r := &Reporter{
		webURL:       strings.TrimRight(webURL, "/"),
		deduplicated: true,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type block struct {
	impact int
	text   string
}

// Report renders the full document for models. The output depends only on
// its inputs.
func (r *Reporter) Report(models []*model.ChangedModel) string {
	blocks := make([]block, 0, len(models))
	total := 0
	for _, m := range models {
		if !m.Resolved() {
			blocks = append(blocks, block{text: r.notFound(m)})
			continue
		}
		rows := r.rows(m)
		total += len(rows)
		blocks = append(blocks, block{impact: len(rows), text: r.modelBlock(m, rows)})
	}

	slices.SortStableFunc(blocks, func(a, b block) int {
		return cmp.Compare(b.impact, a.impact)
	})

	texts := make([]string, len(blocks))
	for i, b := range blocks {
		texts[i] = b.text
	}

	return r.header(total, len(models)) + strings.Join(texts, blockSeparator)
}

// ImpactCount is the number of report rows for m under the reporter's
// variant. Unresolved models count zero.
func (r *Reporter) ImpactCount(m *model.ChangedModel) int {
	if !m.Resolved() {
		return 0
	}
	return len(r.rows(m))
}

// Total sums ImpactCount over models.
func (r *Reporter) Total(models []*model.ChangedModel) int {
	total := 0
	for _, m := range models {
		total += r.ImpactCount(m)
	}
	return total
}

// rows returns the consumers listed for m, unsorted.
func (r *Reporter) rows(m *model.ChangedModel) []model.ImpactEntry {
	if r.deduplicated {
		return m.Impacts
	}
	raw := make([]model.ImpactEntry, 0, len(m.Downstream)+len(m.MappedDownstream()))
	for _, c := range m.Downstream {
		raw = append(raw, model.ImpactEntry{Consumer: c})
	}
	for _, c := range m.MappedDownstream() {
		raw = append(raw, model.ImpactEntry{Consumer: c})
	}
	return raw
}

func (r *Reporter) header(total, models int) string {
	return fmt.Sprintf("# <img src='%s/images/logoSmall.svg' width='25' height='25'> Select Star Impact Report\n"+
		"Total Potential Impact: %s **%s** direct downstream objects for the **%s** changed dbt models.<br/><br/><br/>",
		r.webURL, impactEmoji(total), humanize.Comma(int64(total)), humanize.Comma(int64(models)))
}

func (r *Reporter) notFound(m *model.ChangedModel) string {
	return "### - " + m.Path + "\nModel not found in Select Star database."
}

func (r *Reporter) modelBlock(m *model.ChangedModel, rows []model.ImpactEntry) string {
	var b strings.Builder

	linksTo := " has no linked warehouse table"
	if mapping := m.FirstMapping(); mapping != nil && mapping.Table != nil {
		linksTo = fmt.Sprintf(" links to [%s](%s)", mapping.Table.Location(), r.objectURL(mapping.Table.GUID))
	}
	fmt.Fprintf(&b, "%s [%s](%s)%s\n", r.icon(model.DataSourceTypeDBT), m.DisplayName(), r.objectURL(m.GUID()), linksTo)

	if len(rows) == 0 {
		b.WriteString("Potential Impact: :white_check_mark: No direct downstream objects.\n")
		return b.String()
	}
	fmt.Fprintf(&b, "Potential Impact: :warning: %s direct downstream objects.\n", humanize.Comma(int64(len(rows))))

	b.WriteString(tableHeader)
	for i, e := range sortedRows(rows) {
		c := e.Consumer
		source := r.icon(c.DataSourceType) + " " + c.DataSourceType
		if e.SecondaryDataSourceType != "" {
			source += " (also in " + e.SecondaryDataSourceType + ")"
		}
		fmt.Fprintf(&b, "|%d|%s|%s|[%s](%s)|\n", i+1, source, c.Type, c.Name, r.objectURL(c.GUID))
	}
	return b.String()
}

// sortedRows orders rows by data-source type, then object type, then name.
// Equal keys keep their input order.
func sortedRows(rows []model.ImpactEntry) []model.ImpactEntry {
	out := slices.Clone(rows)
	slices.SortStableFunc(out, func(a, b model.ImpactEntry) int {
		return cmp.Or(
			cmp.Compare(a.Consumer.DataSourceType, b.Consumer.DataSourceType),
			cmp.Compare(a.Consumer.Type, b.Consumer.Type),
			cmp.Compare(a.Consumer.Name, b.Consumer.Name),
		)
	})
	return out
}

func (r *Reporter) objectURL(guid string) string {
	return r.webURL + "/tables/" + guid + "/overview"
}

func (r *Reporter) icon(dataSourceType string) string {
	return fmt.Sprintf("<img src='%s/icons/%s.svg' width='15' height='15'>", r.webURL, dataSourceType)
}

func impactEmoji(n int) string {
	if n > 0 {
		return ":warning:"
	}
	return ":white_check_mark:"
}
