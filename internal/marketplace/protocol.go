// Package marketplace implements the gallery query protocol spoken by editor
// clients: request decoding, parameter extraction and the result envelope.
package marketplace

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonschema"

	"vsxreg/internal/errs"
	"vsxreg/internal/model"
)

// Criterion filter types.
const (
	FilterTag              = 1
	FilterExtensionID      = 4
	FilterCategory         = 5
	FilterExtensionName    = 7
	FilterTarget           = 8
	FilterFeatured         = 9
	FilterSearchText       = 10
	FilterExcludeWithFlags = 12
)

// Sort keys.
const (
	SortRelevance     = "relevance"
	SortDownloadCount = "downloadCount"
	SortTimestamp     = "timestamp"
	SortAverageRating = "averageRating"
)

// QueryRequest is the wire form of a gallery query.
type QueryRequest struct {
	Filters []QueryFilter `json:"filters"`
	Flags   uint32        `json:"flags"`
}

type QueryFilter struct {
	Criteria   []Criterion `json:"criteria"`
	PageNumber int         `json:"pageNumber"`
	PageSize   int         `json:"pageSize"`
	SortBy     int         `json:"sortBy"`
	SortOrder  int         `json:"sortOrder"`
}

type Criterion struct {
	FilterType int    `json:"filterType"`
	Value      string `json:"value"`
}

// Params is the decoded, validated form of a query.
type Params struct {
	ExtensionIDs   []string // public ids
	ExtensionNames []string // "namespace.name", lowercased
	Text           string
	Tags           []string
	Category       string
	TargetPlatform string // "" means any
	Offset         int
	Size           int
	SortBy         string
	SortAscending  bool
	Options        Options
}

//go:embed schema/query.json
var querySchema []byte

var compiledQuerySchema = mustCompile(querySchema)

func mustCompile(data []byte) *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	schema, err := compiler.Compile(data)
	if err != nil {
		panic(fmt.Sprintf("compile query schema: %v", err))
	}
	return schema
}

// DecodeRequest validates a JSON request body against the query schema and
// decodes it.
func DecodeRequest(data []byte) (*QueryRequest, error) {
	result := compiledQuerySchema.ValidateJSON(data)
	if !result.IsValid() {
		return nil, errs.InvalidInputf("query validation failed: %v", result.Errors)
	}
	var req QueryRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, errs.InvalidInputf("decoding query: %v", err)
	}
	return &req, nil
}

// ParseRequest extracts Params from the first filter of req. An unknown
// targetPlatform is treated as no platform filter.
func ParseRequest(req *QueryRequest, targetPlatform string, defaultPageSize, maxPageSize int) (Params, error) {
	p := Params{
		TargetPlatform: model.NormalizeTargetPlatform(targetPlatform),
		Size:           defaultPageSize,
		SortBy:         SortRelevance,
		Options:        OptionsFromFlags(req.Flags),
	}
	if len(req.Filters) == 0 {
		return p, nil
	}

	f := req.Filters[0]
	for _, c := range f.Criteria {
		value := strings.TrimSpace(c.Value)
		switch c.FilterType {
		case FilterTag:
			p.Tags = append(p.Tags, value)
		case FilterExtensionID:
			p.ExtensionIDs = append(p.ExtensionIDs, value)
		case FilterCategory:
			p.Category = value
		case FilterExtensionName:
			if !strings.Contains(value, ".") {
				return Params{}, errs.InvalidInputf("extension name must be namespace.name: %q", value)
			}
			p.ExtensionNames = append(p.ExtensionNames, strings.ToLower(value))
		case FilterSearchText:
			p.Text = value
		}
	}

	if f.PageSize > 0 {
		p.Size = f.PageSize
	}
	if maxPageSize > 0 && p.Size > maxPageSize {
		p.Size = maxPageSize
	}
	if f.PageNumber > 1 {
		p.Offset = (f.PageNumber - 1) * p.Size
	}

	switch f.SortBy {
	case 4:
		p.SortBy = SortDownloadCount
	case 5:
		p.SortBy = SortTimestamp
	case 6:
		p.SortBy = SortAverageRating
	}
	p.SortAscending = f.SortOrder == 1

	return p, nil
}

// QueryResult is the response envelope.
type QueryResult struct {
	Results []ResultSet `json:"results"`
}

type ResultSet struct {
	Extensions     []Extension      `json:"extensions"`
	ResultMetadata []ResultMetadata `json:"resultMetadata"`
}

type ResultMetadata struct {
	MetadataType  string         `json:"metadataType"`
	MetadataItems []MetadataItem `json:"metadataItems"`
}

type MetadataItem struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// NewQueryResult wraps a page of extensions and the total match count.
func NewQueryResult(extensions []Extension, total int) *QueryResult {
	if extensions == nil {
		extensions = []Extension{}
	}
	return &QueryResult{
		Results: []ResultSet{{
			Extensions: extensions,
			ResultMetadata: []ResultMetadata{{
				MetadataType:  "ResultCount",
				MetadataItems: []MetadataItem{{Name: "TotalCount", Count: total}},
			}},
		}},
	}
}

// TotalCount returns the count from the first result set, or 0.
func (r *QueryResult) TotalCount() int {
	if len(r.Results) == 0 || len(r.Results[0].ResultMetadata) == 0 {
		return 0
	}
	items := r.Results[0].ResultMetadata[0].MetadataItems
	if len(items) == 0 {
		return 0
	}
	return items[0].Count
}

type Extension struct {
	ExtensionID      string      `json:"extensionId"`
	ExtensionName    string      `json:"extensionName"`
	DisplayName      string      `json:"displayName"`
	ShortDescription string      `json:"shortDescription"`
	Publisher        Publisher   `json:"publisher"`
	Flags            string      `json:"flags"`
	Versions         []Version   `json:"versions,omitempty"`
	Statistics       []Statistic `json:"statistics,omitempty"`
	Tags             []string    `json:"tags,omitempty"`
	Categories       []string    `json:"categories,omitempty"`
}

type Publisher struct {
	PublisherID   string `json:"publisherId"`
	PublisherName string `json:"publisherName"`
	DisplayName   string `json:"displayName"`
}

type Version struct {
	Version          string     `json:"version"`
	TargetPlatform   string     `json:"targetPlatform,omitempty"`
	Flags            string     `json:"flags"`
	LastUpdated      string     `json:"lastUpdated"`
	Files            []File     `json:"files,omitempty"`
	Properties       []Property `json:"properties,omitempty"`
	AssetURI         string     `json:"assetUri,omitempty"`
	FallbackAssetURI string     `json:"fallbackAssetUri,omitempty"`
}

type File struct {
	AssetType string `json:"assetType"`
	Source    string `json:"source"`
}

type Property struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type Statistic struct {
	StatisticName string  `json:"statisticName"`
	Value         float64 `json:"value"`
}
