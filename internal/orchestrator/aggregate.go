package orchestrator

import "github.com/fyrsmithlabs/specforge/internal/extract"

// aggregateServers folds server-category results into a single entry of
// deduplicated hosts, ports, and endpoints plus a merged configuration
// map. Later config values win on key collision. Returns nil when no
// chunk produced anything.
func aggregateServers(results []extract.Result) map[string]any {
	var hosts, ports, endpoints []string
	config := map[string]string{}

	for _, res := range results {
		if !res.Success {
			continue
		}
		data, ok := res.Data.(extract.ServerData)
		if !ok {
			continue
		}
		hosts = append(hosts, data.Hosts...)
		ports = append(ports, data.Ports...)
		endpoints = append(endpoints, data.Endpoints...)
		for k, v := range data.Config {
			config[k] = v
		}
	}

	if len(hosts) == 0 && len(ports) == 0 && len(endpoints) == 0 && len(config) == 0 {
		return nil
	}
	return map[string]any{
		"hosts":         uniqueOrdered(hosts),
		"ports":         uniqueOrdered(ports),
		"endpoints":     uniqueOrdered(endpoints),
		"configuration": config,
	}
}

// aggregateSQL merges sql-category results into the database overview,
// removing duplicates while preserving first-seen order.
func aggregateSQL(results []extract.Result) DatabaseOverview {
	var queries, tables, connections []string

	for _, res := range results {
		if !res.Success {
			continue
		}
		data, ok := res.Data.(extract.SQLData)
		if !ok {
			continue
		}
		queries = append(queries, data.Queries...)
		tables = append(tables, data.Tables...)
		connections = append(connections, data.Connections...)
	}

	return DatabaseOverview{
		Queries:     uniqueOrdered(queries),
		Tables:      uniqueOrdered(tables),
		Connections: uniqueOrdered(connections),
	}
}

// aggregateList flattens list-valued category results in first-seen
// order with duplicates removed.
func aggregateList(results []extract.Result) []string {
	var merged []string
	for _, res := range results {
		if !res.Success {
			continue
		}
		if list, ok := res.Data.([]string); ok {
			merged = append(merged, list...)
		}
	}
	return uniqueOrdered(merged)
}
