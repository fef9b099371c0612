// Package normalize converts heterogeneous extraction records into the
// canonical database specification shape. Extraction output is
// schema-less: different LLM calls name the same concept differently
// (table vs schema vs entity), so normalization works off key-name
// heuristics plus the original source text of each chunk.
package normalize

import (
	"fmt"
	"sort"
	"strings"

	"github.com/fyrsmithlabs/specforge/internal/retrieval"
)

// FieldInfo describes one column of a table.
type FieldInfo struct {
	ColumnName string `json:"column_name"`
	DataType   string `json:"data_type"`
	CRUD       string `json:"CRUD"`
}

// TableDetail holds the per-table field list.
type TableDetail struct {
	Fields []FieldInfo `json:"Field Information"`
}

// TableEntry maps a source file to the tables found in it. Tables are
// keyed per file so the same table name appearing in two files stays
// distinct.
type TableEntry map[string]map[string]TableDetail

// InvalidQuery is a query that failed the structural check, kept for
// audit instead of being dropped.
type InvalidQuery struct {
	SourceFile string `json:"source_file"`
	Query      string `json:"query"`
	Reason     string `json:"reason"`
}

// DatabaseSpecification is the canonical output shape.
type DatabaseSpecification struct {
	TableInformation []TableEntry   `json:"Table Information"`
	SQLQueries       []string       `json:"SQL_QUERIES"`
	InvalidQueries   []InvalidQuery `json:"Invalid_SQL_Queries"`
}

var (
	tableKeywords  = []string{"table", "schema", "model", "entity"}
	columnKeywords = []string{"column", "field", "attribute"}
	sqlKeywords    = []string{"select", "insert", "update", "delete", "create", "drop"}
)

// Normalize builds the canonical specification from extraction records.
// Record i corresponds positionally to chunks[i]; an explicit source_file
// key in the record wins over the positional match. Normalize is a pure
// function: the same inputs always produce the same specification.
func Normalize(records []map[string]any, chunks []retrieval.Chunk) DatabaseSpecification {
	spec := DatabaseSpecification{
		TableInformation: []TableEntry{},
		SQLQueries:       []string{},
		InvalidQueries:   []InvalidQuery{},
	}

	seenQueries := make(map[string]bool)
	seenInvalid := make(map[string]bool)

	addValid := func(query string) {
		if !seenQueries[query] {
			seenQueries[query] = true
			spec.SQLQueries = append(spec.SQLQueries, query)
		}
	}
	addInvalid := func(source, query, reason string) {
		key := source + "\x00" + query
		if !seenInvalid[key] {
			seenInvalid[key] = true
			spec.InvalidQueries = append(spec.InvalidQueries, InvalidQuery{
				SourceFile: source,
				Query:      query,
				Reason:     reason,
			})
		}
	}

	for i, record := range records {
		if record == nil {
			continue
		}

		source := sourceFor(record, chunks, i)
		original := ""
		if i < len(chunks) {
			original = chunks[i].Content
		}

		if entry := tableEntry(record, source, original); entry != nil {
			spec.TableInformation = append(spec.TableInformation, entry)
		}

		// SQL from record values.
		for _, value := range stringValues(record) {
			if !containsSQLKeyword(value) {
				continue
			}
			query := strings.TrimSpace(value)
			if ok, reason := ValidateSQL(query); ok {
				addValid(query)
			} else {
				addInvalid(source, query, reason)
			}
		}

		// SQL from the raw source text.
		for _, query := range ExtractSQL(original) {
			if ok, reason := ValidateSQL(query); ok {
				addValid(query)
			} else {
				addInvalid(source, query, reason)
			}
		}
	}

	return spec
}

// sourceFor resolves a record's originating file: explicit key first,
// positional chunk second, synthetic name last.
func sourceFor(record map[string]any, chunks []retrieval.Chunk, i int) string {
	if s, ok := record["source_file"].(string); ok && s != "" {
		return s
	}
	if i < len(chunks) && chunks[i].SourcePath != "" {
		return chunks[i].SourcePath
	}
	return fmt.Sprintf("extracted_data_%d.unknown", i+1)
}

// tableEntry extracts the per-file table map from one record, or nil when
// the record names no tables.
func tableEntry(record map[string]any, source, original string) TableEntry {
	tables := make(map[string]TableDetail)
	columns := columnNames(record)

	for key, value := range record {
		if !keyMatches(key, tableKeywords) {
			continue
		}
		for _, name := range stringOrList(value) {
			tables[name] = TableDetail{Fields: fieldsFor(key, name, columns, original)}
		}
	}

	if len(tables) == 0 {
		return nil
	}
	return TableEntry{source: tables}
}

// fieldsFor builds the field list for one table. Explicitly named columns
// win; without any, a single placeholder field records which key the
// table name came from.
func fieldsFor(tableKey, tableName string, columns []string, original string) []FieldInfo {
	crud := InferCRUD(original, tableName)
	if len(columns) > 0 {
		fields := make([]FieldInfo, 0, len(columns))
		for _, col := range columns {
			fields = append(fields, FieldInfo{
				ColumnName: col,
				DataType:   InferDataType(col, col),
				CRUD:       crud,
			})
		}
		return fields
	}
	return []FieldInfo{{
		ColumnName: "extracted_from_" + tableKey,
		DataType:   InferDataType(tableKey, tableName),
		CRUD:       crud,
	}}
}

// columnNames collects column identifiers from the record's column-like
// keys, in key-sorted order for stable output.
func columnNames(record map[string]any) []string {
	var out []string
	for _, key := range sortedKeys(record) {
		if !keyMatches(key, columnKeywords) {
			continue
		}
		out = append(out, stringOrList(record[key])...)
	}
	return out
}

// typeIndicators maps lexical hints to data types, checked in order.
var typeIndicators = []struct {
	dataType   string
	indicators []string
}{
	{"string", []string{"name", "title", "description", "text", "varchar", "char"}},
	{"integer", []string{"id", "count", "number", "int", "age", "year"}},
	{"boolean", []string{"is_", "has_", "active", "enabled", "bool"}},
	{"datetime", []string{"date", "time", "created", "updated", "timestamp"}},
	{"decimal", []string{"price", "amount", "rate", "decimal", "float"}},
	{"json", []string{"config", "settings", "data", "json"}},
}

// InferDataType maps a key/value pair to a data type by lexical
// indicators, defaulting to string.
func InferDataType(key, value string) string {
	keyLower := strings.ToLower(key)
	valueLower := strings.ToLower(value)

	for _, entry := range typeIndicators {
		for _, ind := range entry.indicators {
			if strings.Contains(keyLower, ind) || strings.Contains(valueLower, ind) {
				return entry.dataType
			}
		}
	}
	return "string"
}

// InferCRUD scans the original source text for SQL verbs and ORM method
// calls on the table. Defaults to READ when the text mentions nothing;
// returns UNKNOWN only when there is no text to scan at all.
func InferCRUD(original, tableName string) string {
	if original == "" {
		return "UNKNOWN"
	}

	text := strings.ToLower(original)
	table := strings.ToLower(tableName)
	ops := make(map[string]bool)

	if strings.Contains(text, "insert into "+table) || strings.Contains(text, table+".create") || strings.Contains(text, table+".save") {
		ops["CREATE"] = true
	}
	if (strings.Contains(text, "select") && strings.Contains(text, table)) || strings.Contains(text, table+".find") {
		ops["READ"] = true
	}
	if strings.Contains(text, "update "+table) || strings.Contains(text, table+".update") {
		ops["UPDATE"] = true
	}
	if strings.Contains(text, "delete from "+table) || strings.Contains(text, table+".delete") {
		ops["DELETE"] = true
	}

	if len(ops) == 0 {
		return "READ"
	}

	var found []string
	for _, op := range []string{"CREATE", "DELETE", "READ", "UPDATE"} {
		if ops[op] {
			found = append(found, op)
		}
	}
	return strings.Join(found, ",")
}

func keyMatches(key string, keywords []string) bool {
	keyLower := strings.ToLower(key)
	for _, kw := range keywords {
		if strings.Contains(keyLower, kw) {
			return true
		}
	}
	return false
}

// stringOrList flattens a string or list-of-strings value into trimmed,
// non-empty strings.
func stringOrList(value any) []string {
	switch v := value.(type) {
	case string:
		if s := strings.TrimSpace(v); s != "" {
			return []string{s}
		}
	case []any:
		var out []string
		for _, item := range v {
			if s, ok := item.(string); ok {
				if s = strings.TrimSpace(s); s != "" {
					out = append(out, s)
				}
			}
		}
		return out
	case []string:
		var out []string
		for _, s := range v {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// stringValues yields every string value in the record, including string
// elements of list values, in key-sorted order.
func stringValues(record map[string]any) []string {
	var out []string
	for _, key := range sortedKeys(record) {
		switch v := record[key].(type) {
		case string:
			out = append(out, v)
		case []any:
			for _, item := range v {
				if s, ok := item.(string); ok {
					out = append(out, s)
				}
			}
		}
	}
	return out
}

func sortedKeys(record map[string]any) []string {
	keys := make([]string, 0, len(record))
	for key := range record {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func containsSQLKeyword(s string) bool {
	lower := strings.ToLower(s)
	for _, kw := range sqlKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
