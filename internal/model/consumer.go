package model

import "encoding/json"

// DataSourceTypeDBT tags consumers that come from the dbt catalog graph.
// Consumers carrying this tag are authoritative during deduplication.
const DataSourceTypeDBT = "dbt"

// unknownObjectType is shown when the lineage edge carries no data type.
const unknownObjectType = "-"

// PopularityMetric is the usage signal attached to a downstream consumer.
type PopularityMetric struct {
	Popularity float64 `json:"popularity"`
	Count      int     `json:"count"`
	UsersCount int     `json:"users_count"`
}

type popularityJSON struct {
	Popularity *float64 `json:"popularity"`
	QueryCount *int     `json:"query_count"`
	ViewCount  *int     `json:"view_count"`
	UserCount  *int     `json:"user_count"`
}

// ParsePopularity parses a popularity document. The count is the query
// count, else the view count, else zero.
func ParsePopularity(raw json.RawMessage) (*PopularityMetric, error) {
	var j popularityJSON
	if err := json.Unmarshal(raw, &j); err != nil {
		return nil, &ParseError{Entity: "popularity", Err: err}
	}

	p := &PopularityMetric{}
	if j.Popularity != nil {
		p.Popularity = *j.Popularity
	}
	switch {
	case j.QueryCount != nil && *j.QueryCount != 0:
		p.Count = *j.QueryCount
	case j.ViewCount != nil:
		p.Count = *j.ViewCount
	}
	if j.UserCount != nil {
		p.UsersCount = *j.UserCount
	}
	return p, nil
}

// DownstreamConsumer is one immediate downstream object of a lineage edge.
type DownstreamConsumer struct {
	GUID           string            `json:"guid"`
	Name           string            `json:"name"`
	Type           string            `json:"type"`
	FullName       string            `json:"full_name,omitempty"`
	DataSourceType string            `json:"data_source_type"`
	LinkedObjects  []string          `json:"linked_objects"`
	Popularity     *PopularityMetric `json:"popularity,omitempty"`
}

type downstreamJSON struct {
	GUID           string          `json:"guid"`
	Name           string          `json:"name"`
	DataType       string          `json:"data_type"`
	FullName       string          `json:"full_name"`
	DataSourceType string          `json:"data_source_type"`
	LinkedObjs     []string        `json:"linked_objs"`
	Popularity     json.RawMessage `json:"popularity"`
}

// ParseDownstreamConsumer parses one entry of a table_lineage response.
func ParseDownstreamConsumer(raw json.RawMessage) (DownstreamConsumer, error) {
	const entity = "downstream consumer"

	var j downstreamJSON
	if err := json.Unmarshal(raw, &j); err != nil {
		return DownstreamConsumer{}, &ParseError{Entity: entity, Err: err}
	}
	if j.GUID == "" {
		return DownstreamConsumer{}, missing(entity, "guid")
	}

	c := DownstreamConsumer{
		GUID:           j.GUID,
		Name:           j.Name,
		Type:           j.DataType,
		FullName:       j.FullName,
		DataSourceType: j.DataSourceType,
		LinkedObjects:  j.LinkedObjs,
	}
	if c.Type == "" {
		c.Type = unknownObjectType
	}
	if c.LinkedObjects == nil {
		c.LinkedObjects = []string{}
	}

	if len(j.Popularity) > 0 && string(j.Popularity) != "null" {
		p, err := ParsePopularity(j.Popularity)
		if err != nil {
			return DownstreamConsumer{}, &ParseError{Entity: entity, Field: "popularity", Err: err}
		}
		c.Popularity = p
	}
	return c, nil
}

// IsCatalog reports whether the consumer comes from the dbt catalog graph.
func (c DownstreamConsumer) IsCatalog() bool {
	return c.DataSourceType == DataSourceTypeDBT
}

// ImpactEntry is one entry of a model's canonical impact set: the admitted
// consumer plus, when a BI or reporting tool surfaced the same object, that
// tool's data-source type.
type ImpactEntry struct {
	Consumer                DownstreamConsumer `json:"consumer"`
	SecondaryDataSourceType string             `json:"secondary_data_source_type,omitempty"`
}
