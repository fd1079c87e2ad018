package catalog

import (
	"sort"
	"strings"
	"sync"

	"github.com/unfazed-dev/genui/pkg/models"
)

// IndexedItem wraps a tool schema with its extracted keyword set.
type IndexedItem struct {
	Schema   models.ToolSchema
	Keywords []string
}

// SearchResult is one scored hit from Index.Search.
type SearchResult struct {
	Schema models.ToolSchema
	Score  int
}

// Scoring weights: an exact keyword match counts three times as much as
// a prefix-only match.
const (
	exactMatchScore  = 3
	prefixMatchScore = 1
)

// Index is a dual index over tool schemas: name to item, and keyword to
// the set of names carrying it. Reads may run concurrently; add and clear
// are single-writer.
type Index struct {
	mu       sync.RWMutex
	items    map[string]*IndexedItem
	keywords map[string]map[string]struct{}
	order    []string // insertion order, for deterministic tie-breaks
}

// NewIndex creates an empty catalog index.
func NewIndex() *Index {
	return &Index{
		items:    make(map[string]*IndexedItem),
		keywords: make(map[string]map[string]struct{}),
	}
}

// Add indexes a schema. Adding a name that is already present is a no-op,
// so keyword extraction runs once per tool.
func (ix *Index) Add(schema models.ToolSchema) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if _, exists := ix.items[schema.Name]; exists {
		return
	}

	keywords := ExtractKeywords(schema.Name, schema.Description, schema.InputSchema)
	ix.items[schema.Name] = &IndexedItem{Schema: schema, Keywords: keywords}
	ix.order = append(ix.order, schema.Name)

	for _, kw := range keywords {
		set, ok := ix.keywords[kw]
		if !ok {
			set = make(map[string]struct{})
			ix.keywords[kw] = set
		}
		set[schema.Name] = struct{}{}
	}
}

// AddAll indexes a batch of schemas in order.
func (ix *Index) AddAll(schemas []models.ToolSchema) {
	for _, s := range schemas {
		ix.Add(s)
	}
}

// Search tokenizes the query with the free-text rule and returns up to
// maxResults schemas scored by 3 per exact keyword match plus 1 per
// prefix match, summed over query terms. Ties break by insertion order.
// An empty query, or one that tokenizes to nothing, returns nil.
func (ix *Index) Search(query string, maxResults int) []SearchResult {
	terms := tokenizeText(query)
	if len(terms) == 0 {
		return nil
	}
	if maxResults <= 0 {
		maxResults = 10
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	scores := make(map[string]int)
	for _, term := range terms {
		if names, ok := ix.keywords[term]; ok {
			for name := range names {
				scores[name] += exactMatchScore
			}
		}
		for kw, names := range ix.keywords {
			if kw != term && strings.HasPrefix(kw, term) {
				for name := range names {
					scores[name] += prefixMatchScore
				}
			}
		}
	}

	if len(scores) == 0 {
		return nil
	}

	rank := make(map[string]int, len(ix.order))
	for i, name := range ix.order {
		rank[name] = i
	}

	results := make([]SearchResult, 0, len(scores))
	for name, score := range scores {
		results = append(results, SearchResult{Schema: ix.items[name].Schema, Score: score})
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return rank[results[i].Schema.Name] < rank[results[j].Schema.Name]
	})

	if len(results) > maxResults {
		results = results[:maxResults]
	}
	return results
}

// GetByName returns the indexed item for a name.
func (ix *Index) GetByName(name string) (*IndexedItem, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	item, ok := ix.items[name]
	return item, ok
}

// GetByNames returns the items for the given names, silently skipping
// names that are not indexed.
func (ix *Index) GetByNames(names []string) []*IndexedItem {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	items := make([]*IndexedItem, 0, len(names))
	for _, name := range names {
		if item, ok := ix.items[name]; ok {
			items = append(items, item)
		}
	}
	return items
}

// Names returns the indexed tool names in insertion order.
func (ix *Index) Names() []string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	names := make([]string, len(ix.order))
	copy(names, ix.order)
	return names
}

// Len returns the number of indexed tools.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.items)
}

// Clear drops both maps.
func (ix *Index) Clear() {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.items = make(map[string]*IndexedItem)
	ix.keywords = make(map[string]map[string]struct{})
	ix.order = nil
}
