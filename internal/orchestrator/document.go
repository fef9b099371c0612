package orchestrator

import "github.com/fyrsmithlabs/specforge/internal/normalize"

// ExtractionMetadata records how and when a specification was produced.
type ExtractionMetadata struct {
	Timestamp   string   `json:"extraction_timestamp"`
	Codebase    string   `json:"codebase"`
	Type        string   `json:"extraction_type"`
	Collections []string `json:"collections_searched"`
	FilesCount  int      `json:"total_files_processed"`
	TotalErrors int      `json:"total_errors"`
}

// DatabaseOverview is the category-level database rollup merged across
// every retrieved chunk: raw queries, table names, and connection
// strings, deduplicated in first-seen order. It complements the
// normalized table structure in Database Information.
type DatabaseOverview struct {
	Queries     []string `json:"queries"`
	Tables      []string `json:"tables"`
	Connections []string `json:"connections"`
}

// Statistics counts what one extraction run found per area.
type Statistics struct {
	DatabaseQueries     int `json:"database_queries"`
	DatabaseTables      int `json:"database_tables"`
	DatabaseConnections int `json:"database_connections"`
	ServerEntries       int `json:"server_entries"`
	APIEndpoints        int `json:"api_endpoints"`
	Dependencies        int `json:"dependencies"`
}

// Coverage reports which extraction areas produced any data.
type Coverage struct {
	Percentage float64         `json:"percentage"`
	AreasFound int             `json:"areas_found"`
	TotalAreas int             `json:"total_areas"`
	Areas      map[string]bool `json:"areas"`
}

// Summary is the run-level rollup attached to every specification.
type Summary struct {
	DocumentsProcessed int        `json:"documents_processed"`
	Statistics         Statistics `json:"statistics"`
	Status             string     `json:"status"`
	Coverage           Coverage   `json:"coverage"`
}

// Specification is the final extraction document for one codebase.
type Specification struct {
	Metadata         ExtractionMetadata              `json:"extraction_metadata"`
	Application      any                             `json:"Application"`
	Servers          []map[string]any                `json:"Server Information"`
	Database         normalize.DatabaseSpecification `json:"Database Information"`
	DatabaseOverview DatabaseOverview                `json:"Database Overview"`
	APIEndpoints     []string                        `json:"API Endpoints"`
	Dependencies     []string                        `json:"Dependencies"`
	Summary          Summary                         `json:"Summary"`
}

// buildSummary derives statistics and coverage from an assembled
// specification.
func buildSummary(spec *Specification, docCount int) Summary {
	stats := Statistics{
		DatabaseQueries:     len(spec.Database.SQLQueries),
		DatabaseTables:      len(spec.Database.TableInformation),
		DatabaseConnections: len(spec.DatabaseOverview.Connections),
		ServerEntries:       len(spec.Servers),
		APIEndpoints:        len(spec.APIEndpoints),
		Dependencies:        len(spec.Dependencies),
	}

	overview := spec.DatabaseOverview
	areas := map[string]bool{
		"database": stats.DatabaseQueries > 0 || stats.DatabaseTables > 0 ||
			len(overview.Queries) > 0 || len(overview.Tables) > 0,
		"server":       stats.ServerEntries > 0,
		"api":          stats.APIEndpoints > 0,
		"dependencies": stats.Dependencies > 0,
	}
	found := 0
	for _, ok := range areas {
		if ok {
			found++
		}
	}

	status := "completed"
	if docCount == 0 {
		status = "no_documents"
	}

	return Summary{
		DocumentsProcessed: docCount,
		Statistics:         stats,
		Status:             status,
		Coverage: Coverage{
			Percentage: float64(found) / float64(len(areas)) * 100,
			AreasFound: found,
			TotalAreas: len(areas),
			Areas:      areas,
		},
	}
}
