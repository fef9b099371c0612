package normalize

import (
	"regexp"
	"strings"
)

// Statement patterns for scanning raw source text. Statements run to the
// next semicolon; cleanup and the structural check do the rest.
var sqlPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?is)\bSELECT\s+[^;]+?\bFROM\s+[^;]+`),
	regexp.MustCompile(`(?is)\bINSERT\s+INTO\s+[^;]+`),
	regexp.MustCompile(`(?is)\bUPDATE\s+\w+\s+SET\s+[^;]+`),
	regexp.MustCompile(`(?is)\bDELETE\s+FROM\s+[^;]+`),
	regexp.MustCompile(`(?is)\bCREATE\s+TABLE\s+[^;]+`),
}

const minExtractedQueryLen = 15

// ExtractSQL pulls SQL statements out of raw source text. Matches are
// whitespace-collapsed and deduplicated; structural validity is the
// caller's concern.
func ExtractSQL(text string) []string {
	if text == "" {
		return nil
	}

	var queries []string
	seen := make(map[string]bool)
	for _, pattern := range sqlPatterns {
		for _, match := range pattern.FindAllString(text, -1) {
			cleaned := strings.Join(strings.Fields(match), " ")
			if len(cleaned) <= minExtractedQueryLen || seen[cleaned] {
				continue
			}
			seen[cleaned] = true
			queries = append(queries, cleaned)
		}
	}
	return queries
}

// ValidateSQL runs the minimal structural check on a query. It returns
// false with a reason for queries that are syntactically incomplete, for
// example a SELECT with no FROM.
func ValidateSQL(query string) (bool, string) {
	q := strings.ToLower(strings.TrimSpace(query))

	if len(q) <= 10 {
		return false, "query too short"
	}

	switch {
	case strings.HasPrefix(q, "select"):
		if !strings.Contains(q, "from") {
			return false, "SELECT without FROM clause"
		}
		return true, ""
	case strings.HasPrefix(q, "insert"):
		if !strings.Contains(q, "into") {
			return false, "INSERT without INTO clause"
		}
		if !strings.Contains(q, "values") && !strings.Contains(q, "select") {
			return false, "INSERT without VALUES or SELECT"
		}
		return true, ""
	case strings.HasPrefix(q, "update"):
		if !strings.Contains(q, "set") {
			return false, "UPDATE without SET clause"
		}
		return true, ""
	case strings.HasPrefix(q, "delete"):
		if !strings.Contains(q, "from") {
			return false, "DELETE without FROM clause"
		}
		return true, ""
	case strings.HasPrefix(q, "create"), strings.HasPrefix(q, "drop"), strings.HasPrefix(q, "alter"):
		if len(q) <= 15 {
			return false, "DDL statement too short"
		}
		return true, ""
	}
	return false, "does not start with a recognized SQL statement"
}
