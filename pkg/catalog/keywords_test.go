package catalog

import (
	"reflect"
	"sort"
	"testing"
)

func TestTokenizeName(t *testing.T) {
	cases := []struct {
		name string
		want []string
	}{
		{"date_picker", []string{"date", "picker"}},
		{"date-picker", []string{"date", "picker"}},
		{"datePicker", []string{"date", "Picker"}},
		{"HTTPClient", []string{"HTTP", "Client"}},
		{"parseHTTPResponse", []string{"parse", "HTTP", "Response"}},
		{"button", []string{"button"}},
		{"", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := tokenizeName(tc.name)
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("tokenizeName(%q) = %v, want %v", tc.name, got, tc.want)
			}
		})
	}
}

func TestTokenizeText(t *testing.T) {
	got := tokenizeText("Shows a Date, picker! (with range)")
	want := []string{"shows", "a", "date", "picker", "with", "range"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("tokenizeText = %v, want %v", got, want)
	}
}

func TestExtractKeywords(t *testing.T) {
	t.Run("is deterministic and sorted", func(t *testing.T) {
		schema := map[string]any{
			"type":        "object",
			"description": "Select a calendar date",
			"properties": map[string]any{
				"minDate": map[string]any{"type": "string"},
				"maxDate": map[string]any{"type": "string"},
			},
		}
		first := ExtractKeywords("date_picker", "A date selection widget", schema)
		second := ExtractKeywords("date_picker", "A date selection widget", schema)
		if !reflect.DeepEqual(first, second) {
			t.Error("extraction is not deterministic")
		}
		if !sort.StringsAreSorted(first) {
			t.Errorf("keywords not sorted: %v", first)
		}
	})

	t.Run("all keywords are lowercase, length >= 2, non-stopword", func(t *testing.T) {
		keywords := ExtractKeywords("HTTPClient", "The client for HTTP requests and a value of type object", nil)
		for _, kw := range keywords {
			if len(kw) < 2 {
				t.Errorf("keyword %q shorter than 2", kw)
			}
			if kw != sortedLower(kw) {
				t.Errorf("keyword %q not lowercase", kw)
			}
			if isStopword(kw) {
				t.Errorf("stopword %q leaked into keywords", kw)
			}
		}
	})

	t.Run("discards numeric tokens", func(t *testing.T) {
		keywords := ExtractKeywords("grid_2024", "version 12345 layout", nil)
		for _, kw := range keywords {
			if isNumeric(kw) {
				t.Errorf("numeric token %q leaked into keywords", kw)
			}
		}
	})

	t.Run("extracts enum values and property names from schema", func(t *testing.T) {
		schema := map[string]any{
			"type": "object",
			"properties": map[string]any{
				"alignment": map[string]any{
					"type": "string",
					"enum": []any{"leading", "trailing", "center"},
				},
				"rowData": map[string]any{
					"type":  "array",
					"items": map[string]any{"type": "object", "description": "cell contents"},
				},
			},
		}
		keywords := ExtractKeywords("data_table", "", schema)
		for _, want := range []string{"alignment", "leading", "trailing", "center", "row", "data", "cell", "contents", "table"} {
			if !contains(keywords, want) {
				t.Errorf("expected keyword %q in %v", want, keywords)
			}
		}
	})
}

func sortedLower(s string) string {
	out := []rune(s)
	for i, r := range out {
		if r >= 'A' && r <= 'Z' {
			out[i] = r + 32
		}
	}
	return string(out)
}

func contains(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}
