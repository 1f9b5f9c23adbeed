// Package model holds the entities of an impact run: changed models, catalog
// tables, warehouse mappings and downstream consumers.
package model

// UserAgent is sent with every request to the catalog and source control.
const UserAgent = "Select Star Dbt Impact Report"
