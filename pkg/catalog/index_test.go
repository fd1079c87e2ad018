package catalog

import (
	"testing"

	"github.com/unfazed-dev/genui/pkg/models"
)

func testSchemas() []models.ToolSchema {
	return []models.ToolSchema{
		{Name: "date_picker", Description: "Pick a calendar date"},
		{Name: "time_picker", Description: "Pick a time of day"},
		{Name: "data_table", Description: "Tabular data grid"},
		{Name: "button", Description: "Clickable button"},
	}
}

func TestIndex_Add(t *testing.T) {
	t.Run("indexes keywords both ways", func(t *testing.T) {
		ix := NewIndex()
		ix.Add(models.ToolSchema{Name: "date_picker", Description: "Pick a date"})

		item, ok := ix.GetByName("date_picker")
		if !ok {
			t.Fatal("expected item to be indexed")
		}
		for _, kw := range item.Keywords {
			names, ok := ix.keywords[kw]
			if !ok {
				t.Errorf("keyword %q missing from inverted index", kw)
				continue
			}
			if _, ok := names["date_picker"]; !ok {
				t.Errorf("keyword %q does not map back to the item", kw)
			}
		}
	})

	t.Run("is idempotent by name", func(t *testing.T) {
		ix := NewIndex()
		ix.Add(models.ToolSchema{Name: "button", Description: "first"})
		ix.Add(models.ToolSchema{Name: "button", Description: "second"})

		if ix.Len() != 1 {
			t.Errorf("expected 1 item, got %d", ix.Len())
		}
		item, _ := ix.GetByName("button")
		if item.Schema.Description != "first" {
			t.Error("re-add replaced the original item")
		}
	})
}

func TestIndex_Search(t *testing.T) {
	t.Run("empty query returns nothing", func(t *testing.T) {
		ix := NewIndex()
		ix.AddAll(testSchemas())
		if got := ix.Search("", 10); got != nil {
			t.Errorf("expected nil for empty query, got %v", got)
		}
		if got := ix.Search("the of and", 10); got != nil {
			// tokens survive stopword filtering at search time, but match nothing
			if len(got) != 0 {
				t.Errorf("expected no results for stopword query, got %v", got)
			}
		}
	})

	t.Run("indexed name is the first result for its own tokens", func(t *testing.T) {
		ix := NewIndex()
		ix.AddAll(testSchemas())
		results := ix.Search("date picker", 10)
		if len(results) == 0 {
			t.Fatal("expected results")
		}
		if results[0].Schema.Name != "date_picker" {
			t.Errorf("expected date_picker first, got %s", results[0].Schema.Name)
		}
	})

	t.Run("exact match outscores prefix match", func(t *testing.T) {
		ix := NewIndex()
		ix.AddAll(testSchemas())
		results := ix.Search("date", 10)
		if len(results) == 0 {
			t.Fatal("expected results")
		}
		if results[0].Schema.Name != "date_picker" {
			t.Errorf("expected date_picker first, got %s", results[0].Schema.Name)
		}
	})

	t.Run("both pickers rank above data_table for picker", func(t *testing.T) {
		ix := NewIndex()
		ix.AddAll(testSchemas())
		results := ix.Search("picker", 10)
		if len(results) < 2 {
			t.Fatalf("expected at least 2 results, got %d", len(results))
		}
		top := map[string]bool{
			results[0].Schema.Name: true,
			results[1].Schema.Name: true,
		}
		if !top["date_picker"] || !top["time_picker"] {
			t.Errorf("expected both pickers on top, got %v", results)
		}
		for _, r := range results[2:] {
			if r.Schema.Name == "data_table" && r.Score >= results[0].Score {
				t.Error("data_table should not outrank the pickers")
			}
		}
	})

	t.Run("ties break by insertion order", func(t *testing.T) {
		ix := NewIndex()
		ix.Add(models.ToolSchema{Name: "alpha_chart", Description: "chart"})
		ix.Add(models.ToolSchema{Name: "beta_chart", Description: "chart"})
		results := ix.Search("chart", 10)
		if len(results) != 2 {
			t.Fatalf("expected 2 results, got %d", len(results))
		}
		if results[0].Schema.Name != "alpha_chart" {
			t.Errorf("expected insertion-order tie break, got %s first", results[0].Schema.Name)
		}
	})

	t.Run("respects maxResults", func(t *testing.T) {
		ix := NewIndex()
		ix.AddAll(testSchemas())
		results := ix.Search("picker date time data", 2)
		if len(results) > 2 {
			t.Errorf("expected at most 2 results, got %d", len(results))
		}
	})
}

func TestIndex_GetByNames(t *testing.T) {
	ix := NewIndex()
	ix.AddAll(testSchemas())

	items := ix.GetByNames([]string{"button", "missing", "date_picker"})
	if len(items) != 2 {
		t.Fatalf("expected 2 items (missing skipped), got %d", len(items))
	}
	if items[0].Schema.Name != "button" || items[1].Schema.Name != "date_picker" {
		t.Errorf("unexpected items: %v, %v", items[0].Schema.Name, items[1].Schema.Name)
	}
}

func TestIndex_Clear(t *testing.T) {
	ix := NewIndex()
	ix.AddAll(testSchemas())
	ix.Clear()

	if ix.Len() != 0 {
		t.Errorf("expected empty index, got %d items", ix.Len())
	}
	if got := ix.Search("picker", 10); len(got) != 0 {
		t.Errorf("expected no results after clear, got %v", got)
	}
}
