package extract

import (
	"regexp"
	"strings"
)

// Regex-based extraction used when the LLM path yields nothing usable.
// Lower fidelity than a model pass but deterministic, hence the reduced
// confidence score attached by the caller.

var sqlStatementPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?is)\bSELECT\s+[^;]+`),
	regexp.MustCompile(`(?is)\bINSERT\s+INTO\s+\w+[^;]*`),
	regexp.MustCompile(`(?is)\bUPDATE\s+\w+\s+SET[^;]*`),
	regexp.MustCompile(`(?is)\bDELETE\s+FROM\s+\w+[^;]*`),
	regexp.MustCompile(`(?is)\bCREATE\s+TABLE\s+\w+[^;]*`),
}

var sqlTablePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)FROM\s+(\w+)`),
	regexp.MustCompile(`(?i)INTO\s+(\w+)`),
	regexp.MustCompile(`(?i)UPDATE\s+(\w+)`),
	regexp.MustCompile(`(?i)TABLE\s+(\w+)`),
}

var (
	hostPattern     = regexp.MustCompile(`(?i)(?:host|server|endpoint)["\s]*[=:]["\s]*([^"\s,;}{]+)`)
	portPattern     = regexp.MustCompile(`(?i)port["\s]*[=:]["\s]*(\d+)`)
	endpointPattern = regexp.MustCompile(`https?://[^/\s"'><}{]+`)
	databasePattern = regexp.MustCompile(`(?i)database["\s]*[=:]["\s]*([^"\s,;}{]+)`)
)

var apiRoutePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)@(?:Get|Post|Put|Delete|Patch)Mapping\(["']([^"']+)["']`),
	regexp.MustCompile(`(?i)app\.(?:get|post|put|delete|patch)\(["']([^"']+)["']`),
	regexp.MustCompile(`(?i)router\.(?:get|post|put|delete|patch)\(["']([^"']+)["']`),
	regexp.MustCompile(`(?i)Route\(["']([^"']+)["']`),
	regexp.MustCompile(`(?:GET|POST|PUT|DELETE|PATCH)\s+([/\w\-{}]+)`),
	regexp.MustCompile(`(?i)@RequestMapping\(["']([^"']+)["']`),
	regexp.MustCompile(`(?i)@Path\(["']([^"']+)["']`),
}

var dependencyPatterns = []*regexp.Regexp{
	regexp.MustCompile(`import\s+([^;\n\s]+)`),
	regexp.MustCompile(`from\s+(\S+)\s+import`),
	regexp.MustCompile(`require\(["']([^"']+)["']`),
	regexp.MustCompile(`(?s)<dependency>.*?<groupId>([^<]+)</groupId>.*?<artifactId>([^<]+)</artifactId>`),
	regexp.MustCompile(`implementation\s+["']([^"']+)["']`),
	regexp.MustCompile(`compile\s+["']([^"']+)["']`),
}

// dependencyExcludes filters common false positives: bare constants, pure
// numbers, single letters, relative paths.
var dependencyExcludes = []*regexp.Regexp{
	regexp.MustCompile(`^[A-Z_]+$`),
	regexp.MustCompile(`^\d+$`),
	regexp.MustCompile(`^[a-z]$`),
	regexp.MustCompile(`^[./]+$`),
}

// regexFallback extracts category data from raw code with regular
// expressions. Returns (nil, false) when nothing was found.
func regexFallback(code string, category Category) (any, bool) {
	switch category {
	case CategorySQL:
		return sqlFallback(code)
	case CategoryServer:
		return serverFallback(code)
	case CategoryAPI:
		return apiFallback(code)
	case CategoryDependencies:
		return dependencyFallback(code)
	default:
		return nil, false
	}
}

func sqlFallback(code string) (any, bool) {
	var queries []string
	tables := make([]string, 0)

	for _, pattern := range sqlStatementPatterns {
		for _, match := range pattern.FindAllString(code, -1) {
			cleaned := strings.Join(strings.Fields(match), " ")
			if len(cleaned) <= 10 {
				continue
			}
			if len(cleaned) > 300 {
				cleaned = cleaned[:300]
			}
			queries = append(queries, cleaned)

			for _, tp := range sqlTablePatterns {
				for _, m := range tp.FindAllStringSubmatch(match, -1) {
					tables = append(tables, m[1])
				}
			}
		}
	}

	queries = uniqueStrings(queries)
	tables = uniqueStrings(tables)
	if len(queries) == 0 && len(tables) == 0 {
		return nil, false
	}
	return SQLData{Queries: queries, Tables: tables, Connections: []string{}}, true
}

func serverFallback(code string) (any, bool) {
	data := ServerData{
		Hosts:     []string{},
		Ports:     []string{},
		Endpoints: []string{},
		Config:    map[string]string{},
	}

	for _, m := range hostPattern.FindAllStringSubmatch(code, -1) {
		data.Hosts = append(data.Hosts, m[1])
	}
	for _, m := range portPattern.FindAllStringSubmatch(code, -1) {
		data.Ports = append(data.Ports, m[1])
	}
	data.Endpoints = append(data.Endpoints, endpointPattern.FindAllString(code, -1)...)
	for _, m := range databasePattern.FindAllStringSubmatch(code, -1) {
		data.Config["database"] = m[1]
	}

	data.Hosts = uniqueStrings(data.Hosts)
	data.Ports = uniqueStrings(data.Ports)
	data.Endpoints = uniqueStrings(data.Endpoints)

	if len(data.Hosts) == 0 && len(data.Ports) == 0 && len(data.Endpoints) == 0 && len(data.Config) == 0 {
		return nil, false
	}
	return data, true
}

func apiFallback(code string) (any, bool) {
	var endpoints []string
	for _, pattern := range apiRoutePatterns {
		for _, m := range pattern.FindAllStringSubmatch(code, -1) {
			endpoint := m[1]
			if strings.HasPrefix(endpoint, "/") || strings.HasPrefix(endpoint, "http") {
				endpoints = append(endpoints, endpoint)
			}
		}
	}

	endpoints = uniqueStrings(endpoints)
	if len(endpoints) == 0 {
		return nil, false
	}
	return endpoints, true
}

func dependencyFallback(code string) (any, bool) {
	var deps []string
	for _, pattern := range dependencyPatterns {
		for _, m := range pattern.FindAllStringSubmatch(code, -1) {
			switch len(m) {
			case 2:
				deps = append(deps, m[1])
			case 3:
				deps = append(deps, m[1]+":"+m[2])
			}
		}
	}

	var filtered []string
	for _, dep := range deps {
		if len(dep) <= 2 {
			continue
		}
		excluded := false
		for _, ex := range dependencyExcludes {
			if ex.MatchString(dep) {
				excluded = true
				break
			}
		}
		if !excluded {
			filtered = append(filtered, dep)
		}
	}

	filtered = uniqueStrings(filtered)
	if len(filtered) == 0 {
		return nil, false
	}
	return filtered, true
}

// uniqueStrings removes duplicates preserving first-seen order.
func uniqueStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
