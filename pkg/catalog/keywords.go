// Package catalog indexes widget tool schemas for keyword search so that a
// large tool vocabulary can be exposed to the model without shipping every
// definition in every request.
package catalog

import (
	"sort"
	"strings"
	"unicode"
)

// stopwords are never indexed: common English filler, UI verbs, and JSON
// schema keywords that would match every tool.
var stopwords = map[string]struct{}{
	// articles, pronouns, conjunctions, prepositions
	"a": {}, "an": {}, "the": {}, "this": {}, "that": {}, "these": {}, "those": {},
	"it": {}, "its": {}, "he": {}, "she": {}, "they": {}, "them": {}, "you": {}, "your": {},
	"we": {}, "our": {}, "i": {}, "me": {}, "my": {},
	"and": {}, "or": {}, "but": {}, "nor": {}, "so": {}, "yet": {},
	"of": {}, "in": {}, "on": {}, "at": {}, "to": {}, "for": {}, "from": {}, "with": {},
	"by": {}, "as": {}, "into": {}, "onto": {}, "over": {}, "under": {}, "about": {},
	"between": {}, "through": {}, "during": {}, "before": {}, "after": {}, "above": {},
	"below": {}, "up": {}, "down": {}, "out": {}, "off": {}, "than": {}, "via": {},
	// common verbs
	"is": {}, "are": {}, "was": {}, "were": {}, "be": {}, "been": {}, "being": {},
	"has": {}, "have": {}, "had": {}, "do": {}, "does": {}, "did": {}, "will": {},
	"would": {}, "can": {}, "could": {}, "should": {}, "may": {}, "might": {}, "must": {},
	"get": {}, "gets": {}, "set": {}, "sets": {}, "use": {}, "uses": {}, "used": {},
	"show": {}, "shows": {}, "display": {}, "displays": {}, "render": {}, "renders": {},
	"allow": {}, "allows": {}, "make": {}, "makes": {}, "when": {}, "where": {}, "which": {},
	"what": {}, "how": {}, "all": {}, "any": {}, "each": {}, "some": {}, "no": {}, "not": {},
	"if": {}, "then": {}, "else": {}, "also": {}, "only": {}, "such": {}, "more": {},
	"other": {}, "one": {}, "two": {}, "new": {},
	// schema keywords
	"object": {}, "string": {}, "number": {}, "boolean": {}, "array": {}, "null": {},
	"true": {}, "false": {}, "optional": {}, "required": {}, "default": {}, "value": {},
	"type": {},
}

// isStopword reports whether a lowercase token is filtered from the index.
func isStopword(token string) bool {
	_, ok := stopwords[token]
	return ok
}

// isNumeric reports whether the token consists solely of digits.
func isNumeric(token string) bool {
	for _, r := range token {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(token) > 0
}

// tokenizeName splits an identifier on underscores, dashes, and case
// boundaries. A run of uppercase letters followed by a lowercase letter
// splits before the lowercase, so "HTTPClient" yields "HTTP", "Client".
func tokenizeName(name string) []string {
	var tokens []string
	var current []rune

	flush := func() {
		if len(current) > 0 {
			tokens = append(tokens, string(current))
			current = current[:0]
		}
	}

	runes := []rune(name)
	for i, r := range runes {
		switch {
		case r == '_' || r == '-':
			flush()
		case unicode.IsUpper(r):
			prevLower := i > 0 && unicode.IsLower(runes[i-1])
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			prevUpper := i > 0 && unicode.IsUpper(runes[i-1])
			if prevLower || (prevUpper && nextLower) {
				flush()
			}
			current = append(current, r)
		default:
			current = append(current, r)
		}
	}
	flush()
	return tokens
}

// tokenizeText lowercases free text, strips punctuation, and splits on
// whitespace. Used for descriptions and search queries.
func tokenizeText(text string) []string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			return unicode.ToLower(r)
		}
		return ' '
	}, text)
	return strings.Fields(cleaned)
}

// ExtractKeywords derives the sorted, deduplicated keyword set for a tool
// from its name, description, and input schema. Every keyword is lowercase,
// at least two characters, non-stopword, and non-numeric; the output is
// deterministic for a given input.
func ExtractKeywords(name, description string, schema map[string]any) []string {
	seen := make(map[string]struct{})

	admit := func(token string) {
		token = strings.ToLower(token)
		if len(token) < 2 || isStopword(token) || isNumeric(token) {
			return
		}
		seen[token] = struct{}{}
	}

	for _, tok := range tokenizeName(name) {
		admit(tok)
	}
	for _, tok := range tokenizeText(description) {
		admit(tok)
	}
	extractSchemaKeywords(schema, admit)

	keywords := make([]string, 0, len(seen))
	for k := range seen {
		keywords = append(keywords, k)
	}
	sort.Strings(keywords)
	return keywords
}

// extractSchemaKeywords walks a JSON schema collecting description text,
// enum string values, property names, and items schemas.
func extractSchemaKeywords(schema map[string]any, admit func(string)) {
	if schema == nil {
		return
	}

	if desc, ok := schema["description"].(string); ok {
		for _, tok := range tokenizeText(desc) {
			admit(tok)
		}
	}

	if enum, ok := schema["enum"].([]any); ok {
		for _, v := range enum {
			if s, ok := v.(string); ok && len(s) >= 2 {
				for _, tok := range tokenizeText(s) {
					admit(tok)
				}
			}
		}
	}

	if props, ok := schema["properties"].(map[string]any); ok {
		for propName, propSchema := range props {
			for _, tok := range tokenizeName(propName) {
				admit(tok)
			}
			if sub, ok := propSchema.(map[string]any); ok {
				extractSchemaKeywords(sub, admit)
			}
		}
	}

	if items, ok := schema["items"].(map[string]any); ok {
		extractSchemaKeywords(items, admit)
	}
}
