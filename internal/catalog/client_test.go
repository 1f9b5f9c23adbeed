package catalog_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/selectstar/dbt-impact-report-action/internal/catalog"
	"github.com/selectstar/dbt-impact-report-action/internal/lineage"
	"github.com/selectstar/dbt-impact-report-action/internal/model"
)

var _ lineage.Catalog = (*catalog.Client)(nil)

func newServer(t *testing.T, handler http.HandlerFunc) *catalog.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return catalog.NewClient(srv.URL+"/", "secret", "ds-guid", catalog.WithHTTPClient(srv.Client()))
}

func TestFindTables(t *testing.T) {
	client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/tables/", r.URL.Path)
		assert.Equal(t, "Token secret", r.Header.Get("Authorization"))
		assert.Equal(t, model.UserAgent, r.Header.Get("User-Agent"))

		q := r.URL.Query()
		assert.Equal(t, "orders.sql,customers.sql", q.Get("filename"))
		assert.Equal(t, "ds-guid", q.Get("datasources"))
		assert.Equal(t, "{guid,extra,table_type}", q.Get("query"))

		_, _ = w.Write([]byte(`{"results": [
			{"guid": "t1", "extra": {"path": "models/marts/orders.sql"}, "table_type": "model"},
			{"guid": "t2", "extra": {"path": "models/marts/customers.sql"}, "table_type": "model"}
		]}`))
	})

	tables, err := client.FindTables(context.Background(), []string{"orders.sql", "customers.sql"})
	require.NoError(t, err)
	require.Len(t, tables, 2)
	assert.Equal(t, "t1", tables[0].GUID)
	assert.True(t, tables[0].Matches("orders.sql"))
}

func TestWarehouseMappingsAcceptsListAndPage(t *testing.T) {
	bodies := map[string]string{
		"/v1/dbt/warehouse-link/list/": `[{"warehouse_table": {"guid": "p1"}}]`,
		"/v1/dbt/warehouse-link/page/": `{"results": [{"warehouse_table": {"guid": "p2"}}, {"warehouse_table": {"guid": "p3"}}]}`,
	}
	client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		body, ok := bodies[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(body))
	})

	list, err := client.WarehouseMappings(context.Background(), "list")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "p1", list[0].GUID)

	page, err := client.WarehouseMappings(context.Background(), "page")
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "p3", page[1].GUID)
}

func TestPhysicalTable(t *testing.T) {
	client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/tables/p1/" {
			http.NotFound(w, r)
			return
		}
		assert.Contains(t, r.URL.Query().Get("query"), "data_source{guid,name,type}")
		_, _ = w.Write([]byte(`{
			"guid": "p1", "name": "orders", "data_type": "table",
			"database": {"guid": "d", "name": "analytics", "data_source": {"guid": "s", "name": "prod", "type": "bigquery"}},
			"schema": {"guid": "sc", "name": "marts"}
		}`))
	})

	tbl, err := client.PhysicalTable(context.Background(), "p1")
	require.NoError(t, err)
	require.NotNil(t, tbl)
	assert.Equal(t, "bigquery/analytics/marts/orders", tbl.Location())

	missing, err := client.PhysicalTable(context.Background(), "gone")
	require.NoError(t, err, "404 is a not-found outcome, not an error")
	assert.Nil(t, missing)
}

func TestDownstream(t *testing.T) {
	client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/lineage/m1/", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "1", q.Get("max_depth"))
		assert.Equal(t, "right", q.Get("direction"))
		assert.Equal(t, "true", q.Get("include_borderline_edges"))
		assert.Equal(t, "true", q.Get("tableau_table_lineage"))

		_, _ = w.Write([]byte(`{"table_lineage": [
			{"guid": "c1", "name": "orders_daily", "data_type": "view", "data_source_type": "dbt", "linked_objs": []},
			{"guid": "c2", "name": "Sales", "data_source_type": "tableau", "linked_objs": ["c1"], "popularity": {"popularity": 0.5, "view_count": 40, "user_count": 4}}
		]}`))
	})

	got, err := client.Downstream(context.Background(), "m1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "view", got[0].Type)
	assert.Equal(t, "-", got[1].Type)
	require.NotNil(t, got[1].Popularity)
	assert.Equal(t, 40, got[1].Popularity.Count)
}

func TestDownstreamSkipsEntriesWithoutGUID(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"table_lineage": [
			{"name": "orphan", "data_source_type": "looker"},
			{"guid": "c1", "name": "orders_daily", "data_source_type": "dbt"}
		]}`))
	}))
	t.Cleanup(srv.Close)
	client := catalog.NewClient(srv.URL, "secret", "ds-guid",
		catalog.WithHTTPClient(srv.Client()), catalog.WithLogger(zap.New(core)))

	got, err := client.Downstream(context.Background(), "m1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "c1", got[0].GUID)
	assert.Equal(t, 1, logs.FilterMessage("skipping lineage entry without guid").Len())
}

func TestDownstreamRejectsMalformedEntry(t *testing.T) {
	client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"table_lineage": [{"guid": "c1", "popularity": "high"}]}`))
	})

	_, err := client.Downstream(context.Background(), "m1")
	var perr *model.ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "popularity", perr.Field)
}

func TestNonSuccessIsAPIError(t *testing.T) {
	client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"detail": "bad token"}`))
	})

	_, err := client.Downstream(context.Background(), "m1")
	require.Error(t, err)

	var apiErr *catalog.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
	assert.Contains(t, apiErr.URL, "/v1/lineage/m1/")
	assert.Contains(t, apiErr.Error(), "bad token")
}

func TestLineageNotFoundIsFatal(t *testing.T) {
	client := newServer(t, http.NotFound)

	_, err := client.Downstream(context.Background(), "m1")
	var apiErr *catalog.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
}
