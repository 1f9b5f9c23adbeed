package model

import (
	"encoding/json"
	"strings"
)

// CatalogTable is a table-like object returned by the catalog identity lookup.
type CatalogTable struct {
	GUID      string `json:"guid"`
	Path      string `json:"path"`
	TableType string `json:"table_type"`
}

type catalogTableJSON struct {
	GUID  string `json:"guid"`
	Extra *struct {
		Path string `json:"path"`
	} `json:"extra"`
	TableType string `json:"table_type"`
}

// ParseCatalogTable parses one entry of an identity lookup response.
// A missing extra.path is tolerated: the table simply never matches a model.
func ParseCatalogTable(raw json.RawMessage) (CatalogTable, error) {
	var j catalogTableJSON
	if err := json.Unmarshal(raw, &j); err != nil {
		return CatalogTable{}, &ParseError{Entity: "catalog table", Err: err}
	}
	if j.GUID == "" {
		return CatalogTable{}, missing("catalog table", "guid")
	}
	t := CatalogTable{GUID: j.GUID, TableType: j.TableType}
	if j.Extra != nil {
		t.Path = j.Extra.Path
	}
	return t, nil
}

// Matches reports whether filename occurs within the table's catalogued path.
// Matching is by substring, not by exact path.
func (t CatalogTable) Matches(filename string) bool {
	return filename != "" && t.Path != "" && strings.Contains(t.Path, filename)
}

// MatchesFile reports whether the catalogued path names filename itself,
// rather than a file whose name merely contains it.
func (t CatalogTable) MatchesFile(filename string) bool {
	return filename != "" && (t.Path == filename || strings.HasSuffix(t.Path, "/"+filename))
}

// DataSource is the data source owning a warehouse database.
type DataSource struct {
	GUID string `json:"guid"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// Database is a warehouse database.
type Database struct {
	GUID       string     `json:"guid"`
	Name       string     `json:"name"`
	DataSource DataSource `json:"data_source"`
}

// Schema is a warehouse schema.
type Schema struct {
	GUID string `json:"guid"`
	Name string `json:"name"`
}

// WarehousePhysicalTable is a physical table in a data source.
type WarehousePhysicalTable struct {
	GUID     string   `json:"guid"`
	Name     string   `json:"name"`
	DataType string   `json:"data_type,omitempty"`
	Database Database `json:"database"`
	Schema   Schema   `json:"schema"`

	// Downstream holds the table's own one-hop downstream consumers.
	Downstream []DownstreamConsumer `json:"downstream"`
}

type physicalTableJSON struct {
	GUID     string `json:"guid"`
	Name     string `json:"name"`
	DataType string `json:"data_type"`
	Database *struct {
		GUID       string      `json:"guid"`
		Name       string      `json:"name"`
		DataSource *DataSource `json:"data_source"`
	} `json:"database"`
	Schema *Schema `json:"schema"`
}

// ParsePhysicalTable parses a physical table detail document. The table is
// either fully populated or rejected.
func ParsePhysicalTable(raw json.RawMessage) (*WarehousePhysicalTable, error) {
	const entity = "physical table"

	var j physicalTableJSON
	if err := json.Unmarshal(raw, &j); err != nil {
		return nil, &ParseError{Entity: entity, Err: err}
	}
	switch {
	case j.GUID == "":
		return nil, missing(entity, "guid")
	case j.Database == nil:
		return nil, missing(entity, "database")
	case j.Database.DataSource == nil:
		return nil, missing(entity, "database.data_source")
	case j.Schema == nil:
		return nil, missing(entity, "schema")
	}

	return &WarehousePhysicalTable{
		GUID:     j.GUID,
		Name:     j.Name,
		DataType: j.DataType,
		Database: Database{
			GUID:       j.Database.GUID,
			Name:       j.Database.Name,
			DataSource: *j.Database.DataSource,
		},
		Schema: *j.Schema,
	}, nil
}

// Location returns the "type/database/schema/table" form of the table.
func (t *WarehousePhysicalTable) Location() string {
	return strings.Join([]string{t.Database.DataSource.Type, t.Database.Name, t.Schema.Name, t.Name}, "/")
}

// WarehouseMapping links a dbt model to the physical table it materializes into.
type WarehouseMapping struct {
	GUID  string                  `json:"guid"`
	Table *WarehousePhysicalTable `json:"table"`
}

type warehouseMappingJSON struct {
	WarehouseTable *struct {
		GUID string `json:"guid"`
	} `json:"warehouse_table"`
}

// ParseWarehouseMapping parses one warehouse-link entry. The physical table
// is left nil; it is fetched separately.
func ParseWarehouseMapping(raw json.RawMessage) (WarehouseMapping, error) {
	var j warehouseMappingJSON
	if err := json.Unmarshal(raw, &j); err != nil {
		return WarehouseMapping{}, &ParseError{Entity: "warehouse mapping", Err: err}
	}
	if j.WarehouseTable == nil || j.WarehouseTable.GUID == "" {
		return WarehouseMapping{}, missing("warehouse mapping", "warehouse_table.guid")
	}
	return WarehouseMapping{GUID: j.WarehouseTable.GUID}, nil
}
