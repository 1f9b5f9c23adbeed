package render

import (
	"strings"
	"testing"

	"github.com/selectstar/dbt-impact-report-action/internal/impact"
	"github.com/selectstar/dbt-impact-report-action/internal/model"
)

const testWebURL = "https://app.example.com"

func resolvedModel(t *testing.T, path, guid string) *model.ChangedModel {
	t.Helper()
	m, err := model.NewChangedModel(path, model.StatusModified)
	if err != nil {
		t.Fatalf("NewChangedModel: %v", err)
	}
	if guid != "" {
		m.SetGUID(guid)
	}
	return m
}

func consumer(guid, name, typ, ds string, linked ...string) model.DownstreamConsumer {
	if linked == nil {
		linked = []string{}
	}
	return model.DownstreamConsumer{GUID: guid, Name: name, Type: typ, DataSourceType: ds, LinkedObjects: linked}
}

func ordersTable(downstream ...model.DownstreamConsumer) model.WarehouseMapping {
	return model.WarehouseMapping{
		GUID: "t1",
		Table: &model.WarehousePhysicalTable{
			GUID:       "t1",
			Name:       "orders",
			Database:   model.Database{Name: "analytics", DataSource: model.DataSource{Type: "snowflake"}},
			Schema:     model.Schema{Name: "core"},
			Downstream: downstream,
		},
	}
}

func TestReportFullDocument(t *testing.T) {
	m := resolvedModel(t, "models/core/orders.sql", "m1")
	m.Downstream = []model.DownstreamConsumer{consumer("d1", "stg", "model", "dbt")}
	m.Mappings = []model.WarehouseMapping{ordersTable(consumer("d2", "Sales", "dashboard", "tableau", "d1"))}
	impact.Merge(m)

	got := NewReporter(testWebURL).Report([]*model.ChangedModel{m})

	want := "# <img src='https://app.example.com/images/logoSmall.svg' width='25' height='25'> Select Star Impact Report\n" +
		"Total Potential Impact: :warning: **1** direct downstream objects for the **1** changed dbt models.<br/><br/><br/>" +
		"<img src='https://app.example.com/icons/dbt.svg' width='15' height='15'> [models/core/orders](https://app.example.com/tables/m1/overview)" +
		" links to [snowflake/analytics/core/orders](https://app.example.com/tables/t1/overview)\n" +
		"Potential Impact: :warning: 1 direct downstream objects.\n" +
		"| # | Data Source Type | Object Type | Name |\n|--------|--------|--------|--------|\n" +
		"|1|<img src='https://app.example.com/icons/dbt.svg' width='15' height='15'> dbt (also in tableau)|model|[stg](https://app.example.com/tables/d1/overview)|\n"

	if got != want {
		t.Errorf("report mismatch\ngot:\n%s\nwant:\n%s", got, want)
	}
}

func TestReportModelNotFound(t *testing.T) {
	m := resolvedModel(t, "models/core/missing.sql", "")

	got := NewReporter(testWebURL).Report([]*model.ChangedModel{m})

	if !strings.Contains(got, "Total Potential Impact: :white_check_mark: **0** direct downstream objects for the **1** changed dbt models.") {
		t.Errorf("expected zero total in header, got:\n%s", got)
	}
	if !strings.HasSuffix(got, "### - models/core/missing.sql\nModel not found in Select Star database.") {
		t.Errorf("expected not-found block, got:\n%s", got)
	}
}

func TestReportNoMapping(t *testing.T) {
	m := resolvedModel(t, "models/core/orders.sql", "m1")
	m.Downstream = []model.DownstreamConsumer{
		consumer("d1", "zeta", "dashboard", "tableau"),
		consumer("d2", "alpha", "view", "looker"),
	}
	impact.Merge(m)

	got := NewReporter(testWebURL).Report([]*model.ChangedModel{m})

	if !strings.Contains(got, "**2** direct downstream objects") {
		t.Errorf("expected total 2, got:\n%s", got)
	}
	if !strings.Contains(got, "[models/core/orders](https://app.example.com/tables/m1/overview) has no linked warehouse table\n") {
		t.Errorf("expected no-mapping note, got:\n%s", got)
	}
	if !strings.Contains(got, "Potential Impact: :warning: 2 direct downstream objects.\n") {
		t.Errorf("expected impact line, got:\n%s", got)
	}
}

func TestReportNoDownstream(t *testing.T) {
	m := resolvedModel(t, "models/core/orders.sql", "m1")
	impact.Merge(m)

	got := NewReporter(testWebURL).Report([]*model.ChangedModel{m})

	if !strings.HasSuffix(got, "Potential Impact: :white_check_mark: No direct downstream objects.\n") {
		t.Errorf("expected no-impact line, got:\n%s", got)
	}
	if strings.Contains(got, "| # |") {
		t.Errorf("expected no table for a model without impact, got:\n%s", got)
	}
}

func TestReportRowOrder(t *testing.T) {
	m := resolvedModel(t, "models/core/orders.sql", "m1")
	m.Downstream = []model.DownstreamConsumer{
		consumer("d1", "z", "table", "dbt"),
		consumer("d2", "a", "table", "dbt"),
		consumer("d3", "b", "dashboard", "dbt"),
		consumer("d4", "a", "dashboard", "looker"),
	}
	impact.Merge(m)

	got := NewReporter(testWebURL).Report([]*model.ChangedModel{m})

	wantOrder := []string{
		"|1|<img src='https://app.example.com/icons/dbt.svg' width='15' height='15'> dbt|dashboard|[b]",
		"|2|<img src='https://app.example.com/icons/dbt.svg' width='15' height='15'> dbt|table|[a]",
		"|3|<img src='https://app.example.com/icons/dbt.svg' width='15' height='15'> dbt|table|[z]",
		"|4|<img src='https://app.example.com/icons/looker.svg' width='15' height='15'> looker|dashboard|[a]",
	}
	last := -1
	for _, row := range wantOrder {
		idx := strings.Index(got, row)
		if idx < 0 {
			t.Fatalf("missing row %q in:\n%s", row, got)
		}
		if idx < last {
			t.Errorf("row %q out of order", row)
		}
		last = idx
	}
}

func TestReportBlocksByDescendingImpact(t *testing.T) {
	quiet := resolvedModel(t, "models/core/quiet.sql", "m1")
	busy := resolvedModel(t, "models/core/busy.sql", "m2")
	busy.Downstream = []model.DownstreamConsumer{
		consumer("d1", "a", "table", "dbt"),
		consumer("d2", "b", "table", "dbt"),
	}
	missing := resolvedModel(t, "models/core/missing.sql", "")
	impact.MergeAll([]*model.ChangedModel{quiet, busy, missing})

	got := NewReporter(testWebURL).Report([]*model.ChangedModel{quiet, missing, busy})

	iBusy := strings.Index(got, "[models/core/busy]")
	iQuiet := strings.Index(got, "[models/core/quiet]")
	iMissing := strings.Index(got, "### - models/core/missing.sql")
	if iBusy < 0 || iQuiet < 0 || iMissing < 0 {
		t.Fatalf("missing block in:\n%s", got)
	}
	if iBusy >= iQuiet || iQuiet >= iMissing {
		t.Errorf("blocks out of order: busy=%d quiet=%d missing=%d", iBusy, iQuiet, iMissing)
	}
	if strings.Count(got, "\n<br/>") != 2 {
		t.Errorf("expected 2 block separators, got %d", strings.Count(got, "\n<br/>"))
	}
	if !strings.Contains(got, "**2** direct downstream objects for the **3** changed dbt models") {
		t.Errorf("unexpected header totals:\n%s", got)
	}
}

func TestReportDeterministic(t *testing.T) {
	m := resolvedModel(t, "models/core/orders.sql", "m1")
	m.Downstream = []model.DownstreamConsumer{
		consumer("d1", "same", "table", "dbt"),
		consumer("d2", "same", "table", "dbt"),
	}
	m.Mappings = []model.WarehouseMapping{ordersTable(consumer("d3", "dash", "dashboard", "mode"))}
	impact.Merge(m)

	r := NewReporter(testWebURL)
	first := r.Report([]*model.ChangedModel{m})
	second := r.Report([]*model.ChangedModel{m})
	if first != second {
		t.Errorf("report is not byte-identical across runs")
	}
}

func TestReportRawCounts(t *testing.T) {
	m := resolvedModel(t, "models/core/orders.sql", "m1")
	m.Downstream = []model.DownstreamConsumer{consumer("d1", "stg", "model", "dbt")}
	m.Mappings = []model.WarehouseMapping{ordersTable(consumer("d2", "Sales", "dashboard", "tableau", "d1"))}
	impact.Merge(m)

	dedup := NewReporter(testWebURL)
	raw := NewReporter(testWebURL, WithDeduplicated(false))

	if got := dedup.ImpactCount(m); got != 1 {
		t.Errorf("deduplicated count = %d, want 1", got)
	}
	if got := raw.ImpactCount(m); got != 2 {
		t.Errorf("raw count = %d, want 2", got)
	}

	out := raw.Report([]*model.ChangedModel{m})
	if strings.Contains(out, "(also in") {
		t.Errorf("raw variant must not carry secondary tags:\n%s", out)
	}
	if !strings.Contains(out, "[Sales](https://app.example.com/tables/d2/overview)") {
		t.Errorf("raw variant must list mapped-table consumers:\n%s", out)
	}
}

func TestReporterTrimsWebURL(t *testing.T) {
	m := resolvedModel(t, "models/core/orders.sql", "m1")
	got := NewReporter(testWebURL + "/").Report([]*model.ChangedModel{m})
	if strings.Contains(got, ".com//") {
		t.Errorf("expected trailing slash trimmed, got:\n%s", got)
	}
}

func TestReporterTotal(t *testing.T) {
	a := resolvedModel(t, "models/core/a.sql", "m1")
	a.Downstream = []model.DownstreamConsumer{consumer("d1", "x", "table", "dbt")}
	b := resolvedModel(t, "models/core/b.sql", "")
	impact.MergeAll([]*model.ChangedModel{a, b})

	if got := NewReporter(testWebURL).Total([]*model.ChangedModel{a, b}); got != 1 {
		t.Errorf("Total = %d, want 1", got)
	}
}
