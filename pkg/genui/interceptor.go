package genui

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/unfazed-dev/genui/pkg/catalog"
	"github.com/unfazed-dev/genui/pkg/models"
)

// defaultSearchResults caps search_catalog responses when the model does
// not ask for a specific count.
const defaultSearchResults = 10

// Interceptor executes the two catalog tools locally so the model never
// round-trips to the network for them.
type Interceptor struct {
	index     *catalog.Index
	maxLoaded int

	mu     sync.Mutex
	loaded map[string]struct{}

	// OnLoad receives the schemas of newly loaded tools so the dispatcher
	// can advertise them on subsequent turns.
	OnLoad func(schemas []models.ToolSchema)
}

// NewInterceptor creates an interceptor over the given catalog index.
// maxLoaded bounds the per-session set of loaded tools; zero or negative
// means unbounded.
func NewInterceptor(index *catalog.Index, maxLoaded int) *Interceptor {
	return &Interceptor{
		index:     index,
		maxLoaded: maxLoaded,
		loaded:    make(map[string]struct{}),
	}
}

// Intercepts reports whether the named tool is handled locally.
func (i *Interceptor) Intercepts(name string) bool {
	return name == models.ToolSearchCatalog || name == models.ToolLoadTools
}

// Execute runs an intercepted tool call and returns the JSON tool result
// to feed back to the model. Calling Execute with a non-intercepted tool
// name is a programming error and reports handled=false.
func (i *Interceptor) Execute(name string, input json.RawMessage) (result string, handled bool) {
	switch name {
	case models.ToolSearchCatalog:
		return i.searchCatalog(input), true
	case models.ToolLoadTools:
		return i.loadTools(input), true
	default:
		return "", false
	}
}

type searchInput struct {
	Query      string   `json:"query"`
	Categories []string `json:"categories"`
	MaxResults int      `json:"max_results"`
}

type searchResultEntry struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Relevance   float64 `json:"relevance"`
}

type searchOutput struct {
	Results        []searchResultEntry `json:"results"`
	TotalAvailable int                 `json:"total_available"`
}

func (i *Interceptor) searchCatalog(input json.RawMessage) string {
	var in searchInput
	if err := json.Unmarshal(input, &in); err != nil {
		return errorResult("invalid search_catalog input: " + err.Error())
	}

	maxResults := in.MaxResults
	if maxResults <= 0 {
		maxResults = defaultSearchResults
	}

	// Search wide, then truncate, so total_available reflects the full
	// candidate set.
	all := i.index.Search(in.Query, i.index.Len())
	hits := all
	if len(hits) > maxResults {
		hits = hits[:maxResults]
	}

	out := searchOutput{
		Results:        make([]searchResultEntry, 0, len(hits)),
		TotalAvailable: len(all),
	}
	terms := queryTerms(in.Query)
	for _, hit := range hits {
		out.Results = append(out.Results, searchResultEntry{
			Name:        hit.Schema.Name,
			Description: hit.Schema.Description,
			Relevance:   relevance(terms, hit.Schema),
		})
	}

	payload, err := json.Marshal(out)
	if err != nil {
		return errorResult("failed to encode search results")
	}
	return string(payload)
}

// queryTerms tokenizes a query the same way descriptions are tokenized.
func queryTerms(query string) []string {
	return catalog.ExtractKeywords("", query, nil)
}

// relevance is the fraction of query terms matched against the tool's
// name and description.
func relevance(terms []string, schema models.ToolSchema) float64 {
	if len(terms) == 0 {
		return 0
	}
	haystack := strings.ToLower(schema.Name + " " + schema.Description)
	matched := 0
	for _, term := range terms {
		if strings.Contains(haystack, term) {
			matched++
		}
	}
	return float64(matched) / float64(len(terms))
}

type loadInput struct {
	ToolNames []string `json:"tool_names"`
}

type loadOutput struct {
	Loaded   []string `json:"loaded"`
	NotFound []string `json:"not_found"`
}

func (i *Interceptor) loadTools(input json.RawMessage) string {
	var in loadInput
	if err := json.Unmarshal(input, &in); err != nil {
		return errorResult("invalid load_tools input: " + err.Error())
	}

	out := loadOutput{Loaded: []string{}, NotFound: []string{}}
	var schemas []models.ToolSchema

	i.mu.Lock()
	for _, name := range in.ToolNames {
		item, ok := i.index.GetByName(name)
		if !ok {
			out.NotFound = append(out.NotFound, name)
			continue
		}
		if _, already := i.loaded[name]; already {
			out.Loaded = append(out.Loaded, name)
			continue
		}
		if i.maxLoaded > 0 && len(i.loaded) >= i.maxLoaded {
			out.NotFound = append(out.NotFound, name)
			continue
		}
		i.loaded[name] = struct{}{}
		out.Loaded = append(out.Loaded, name)
		schemas = append(schemas, item.Schema)
	}
	i.mu.Unlock()

	if len(schemas) > 0 && i.OnLoad != nil {
		i.OnLoad(schemas)
	}

	payload, err := json.Marshal(out)
	if err != nil {
		return errorResult("failed to encode load results")
	}
	return string(payload)
}

// LoadedCount returns the size of the per-session loaded set.
func (i *Interceptor) LoadedCount() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.loaded)
}

func errorResult(message string) string {
	payload, _ := json.Marshal(map[string]any{"error": message})
	return string(payload)
}
