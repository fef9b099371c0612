package extract

import "encoding/json"

// Category identifies one structured-extraction pass over a chunk.
type Category string

const (
	CategorySQL          Category = "sql"
	CategoryServer       Category = "server"
	CategoryAPI          Category = "api"
	CategoryDependencies Category = "dependencies"
)

// Categories lists every extraction category in processing order.
func Categories() []Category {
	return []Category{CategorySQL, CategoryServer, CategoryAPI, CategoryDependencies}
}

// SQLData is the structured result of a sql-category extraction.
type SQLData struct {
	Queries     []string `json:"queries"`
	Tables      []string `json:"tables"`
	Connections []string `json:"connections"`
}

// ServerData is the structured result of a server-category extraction.
type ServerData struct {
	Hosts     []string          `json:"hosts"`
	Ports     []string          `json:"ports"`
	Endpoints []string          `json:"endpoints"`
	Config    map[string]string `json:"config"`
}

// Prompt pairs the system and user prompts for one category.
type Prompt struct {
	System string
	User   string
}

var categoryPrompts = map[Category]Prompt{
	CategorySQL: {
		System: `You are an expert database analyzer. Extract database-related information from code.
Focus on: SQL queries, table names, column names, database connections, ORM operations.
Be thorough but accurate - only extract what is actually present in the code.`,
		User: `Analyze this code for database information and return ONLY valid JSON in this exact format:
{
  "queries": ["actual SQL query 1", "actual SQL query 2"],
  "tables": ["table_name_1", "table_name_2"],
  "connections": ["connection_string_1", "connection_string_2"]
}

If no database information is found, return:
{"queries": [], "tables": [], "connections": []}

Do not include explanations, comments, or markdown formatting.`,
	},
	CategoryServer: {
		System: `You are an expert system configuration analyzer. Extract server and configuration information from code/config files.
Focus on: hosts, ports, URLs, service endpoints, environment variables, connection details.`,
		User: `Extract server information from this code and return ONLY valid JSON in this exact format:
{
  "hosts": ["hostname1", "hostname2"],
  "ports": ["8080", "3000"],
  "endpoints": ["http://localhost:8080/api", "https://api.example.com"],
  "config": {"key1": "value1", "key2": "value2"}
}

If no server information is found, return:
{"hosts": [], "ports": [], "endpoints": [], "config": {}}

Do not include explanations, comments, or markdown formatting.`,
	},
	CategoryAPI: {
		System: `You are an expert API analyzer. Extract API endpoints and routes from code.
Focus on: REST endpoints, GraphQL, RPC calls, route definitions, controller mappings.`,
		User: `Find all API endpoints in this code and return ONLY a valid JSON array:
["GET /api/users", "POST /api/orders", "/graphql", "PUT /api/products/{id}"]

Include the HTTP method if available. If no API endpoints found, return: []

Do not include explanations, comments, or markdown formatting.`,
	},
	CategoryDependencies: {
		System: `You are an expert dependency analyzer. Extract dependencies and imports from code.
Focus on: external libraries, frameworks, services, modules, packages.`,
		User: `Extract all dependencies from this code and return ONLY a valid JSON array:
["spring-boot-starter-web", "postgresql", "redis", "lombok", "jackson"]

Include library names, frameworks, and external services. If no dependencies found, return: []

Do not include explanations, comments, or markdown formatting.`,
	},
}

// Prompts returns the prompt pair for the category.
func (c Category) Prompts() Prompt {
	return categoryPrompts[c]
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	_, ok := categoryPrompts[c]
	return ok
}

// Empty returns the category's empty-but-valid data structure, used when
// every extraction strategy came up short.
func (c Category) Empty() any {
	switch c {
	case CategorySQL:
		return SQLData{Queries: []string{}, Tables: []string{}, Connections: []string{}}
	case CategoryServer:
		return ServerData{Hosts: []string{}, Ports: []string{}, Endpoints: []string{}, Config: map[string]string{}}
	case CategoryAPI, CategoryDependencies:
		return []string{}
	default:
		return map[string]any{}
	}
}

// decodeData converts a generically parsed JSON value into the category's
// typed shape. Returns false when the value does not fit.
func (c Category) decodeData(v any) (any, bool) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, false
	}
	switch c {
	case CategorySQL:
		var data SQLData
		if err := json.Unmarshal(raw, &data); err != nil {
			return nil, false
		}
		return data, true
	case CategoryServer:
		var data ServerData
		if err := json.Unmarshal(raw, &data); err != nil {
			return nil, false
		}
		return data, true
	case CategoryAPI, CategoryDependencies:
		var list []string
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, false
		}
		return list, true
	default:
		return nil, false
	}
}

// Result is the outcome of one category extraction over one chunk. An
// unsuccessful extraction still carries the category's empty structure so
// aggregation never sees nil data.
type Result struct {
	Success    bool     `json:"success"`
	Data       any      `json:"data"`
	Source     string   `json:"source"`
	Type       Category `json:"extraction_type"`
	Confidence float64  `json:"confidence"`
	Errors     []string `json:"errors,omitempty"`
}
