package search

import (
	"fmt"
	"strings"
	"unicode/utf8"

	lenserrors "github.com/Aman-CERP/chatlens/internal/errors"
)

// QueryKind selects how a query is answered.
type QueryKind string

const (
	// QuerySemantic is embedded and ranked by cosine similarity.
	QuerySemantic QueryKind = "semantic"
	// QueryExact is a case-insensitive substring match over titles and messages.
	QueryExact QueryKind = "exact"
)

// Query is a parsed search request: either Semantic(text) or Exact(text).
type Query struct {
	Kind QueryKind
	Text string
}

// Semantic returns a query answered by the similarity index.
func Semantic(text string) Query {
	return Query{Kind: QuerySemantic, Text: text}
}

// Exact returns a query answered by substring matching.
func Exact(text string) Query {
	return Query{Kind: QueryExact, Text: text}
}

// IsExact reports whether the query bypasses the embedding provider.
func (q Query) IsExact() bool {
	return q.Kind == QueryExact
}

// quotePairs are the accepted opening/closing quote characters.
var quotePairs = [][2]string{
	{`"`, `"`},
	{"“", "”"},
}

// ParseQuery turns raw user input into a Query. Input wrapped in a matched
// pair of double quotes becomes Exact with the quotes stripped; anything
// else is Semantic. minLen applies to the trimmed raw input, maxLen (0 for
// no limit) to the query text, both counted in runes.
func ParseQuery(raw string, minLen, maxLen int) (Query, error) {
	raw = strings.TrimSpace(raw)
	if n := utf8.RuneCountInString(raw); n < minLen || n == 0 {
		return Query{}, lenserrors.New(lenserrors.ErrCodeInvalidQuery,
			fmt.Sprintf("query must be at least %d characters", max(minLen, 1)), nil)
	}

	q := Semantic(raw)
	if text, ok := unquote(raw); ok {
		q = Exact(text)
		if strings.TrimSpace(text) == "" {
			return Query{}, lenserrors.New(lenserrors.ErrCodeInvalidQuery, "quoted query is empty", nil).
				WithSuggestion("Put the text to match between the quotes")
		}
	}

	if maxLen > 0 && utf8.RuneCountInString(q.Text) > maxLen {
		return Query{}, lenserrors.New(lenserrors.ErrCodeQueryTooLong,
			fmt.Sprintf("query exceeds %d characters", maxLen), nil)
	}
	return q, nil
}

func unquote(s string) (string, bool) {
	for _, p := range quotePairs {
		open, closing := p[0], p[1]
		if len(s) >= len(open)+len(closing) && strings.HasPrefix(s, open) && strings.HasSuffix(s, closing) {
			return s[len(open) : len(s)-len(closing)], true
		}
	}
	return "", false
}
