package chat

import (
	"context"
	"regexp"
	"strings"
)

// MaxRelevantResources caps how many curated resources accompany a reply.
const MaxRelevantResources = 3

// Resource is a snapshot of a curated educational resource.
type Resource struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	URL         string   `json:"url,omitempty"`
	Category    string   `json:"category"`
	Tags        []string `json:"tags,omitempty"`
}

// ResourceSearcher finds approved resources whose title, description or
// tags contain any of the keywords.
type ResourceSearcher interface {
	SearchApproved(ctx context.Context, keywords []string, limit int) ([]Resource, error)
}

var nonWord = regexp.MustCompile(`\W+`)

var stopWords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "are": {}, "but": {}, "not": {}, "you": {},
	"all": {}, "any": {}, "can": {}, "had": {}, "her": {}, "was": {}, "one": {},
	"our": {}, "out": {}, "has": {}, "have": {}, "his": {}, "how": {}, "its": {},
	"who": {}, "why": {}, "what": {}, "when": {}, "where": {}, "which": {},
	"with": {}, "this": {}, "that": {}, "from": {}, "they": {}, "them": {},
	"then": {}, "than": {}, "there": {}, "these": {}, "those": {}, "will": {},
	"would": {}, "should": {}, "could": {}, "about": {}, "into": {}, "your": {},
	"yours": {}, "been": {}, "being": {}, "does": {}, "did": {}, "doing": {},
	"just": {}, "some": {}, "such": {}, "only": {}, "very": {}, "also": {},
	"more": {}, "most": {}, "other": {}, "each": {}, "few": {}, "both": {},
	"here": {}, "over": {}, "under": {}, "again": {}, "once": {}, "because": {},
	"while": {}, "after": {}, "before": {}, "between": {}, "during": {},
	"through": {}, "above": {}, "below": {}, "need": {}, "want": {}, "know": {},
	"tell": {}, "please": {}, "help": {}, "get": {}, "got": {}, "much": {},
	"many": {}, "like": {}, "really": {}, "ok": {}, "okay": {},
}

// ExtractKeywords lower-cases query, splits it on non-word characters and
// keeps tokens longer than two characters that are not stop-words. Order is
// preserved and duplicates are dropped.
func ExtractKeywords(query string) []string {
	tokens := nonWord.Split(strings.ToLower(query), -1)
	keywords := make([]string, 0, len(tokens))
	seen := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		if len(token) <= 2 {
			continue
		}
		if _, stop := stopWords[token]; stop {
			continue
		}
		if _, dup := seen[token]; dup {
			continue
		}
		seen[token] = struct{}{}
		keywords = append(keywords, token)
	}
	return keywords
}

// ResourceMatcher looks up curated resources relevant to a chat message.
type ResourceMatcher struct {
	store ResourceSearcher
	limit int
}

func NewResourceMatcher(store ResourceSearcher) *ResourceMatcher {
	return &ResourceMatcher{store: store, limit: MaxRelevantResources}
}

// FindRelevant returns at most three resources for query. The slice is never
// nil; it is empty when the query has no usable keywords or nothing matches.
func (m *ResourceMatcher) FindRelevant(ctx context.Context, query string) ([]Resource, error) {
	keywords := ExtractKeywords(query)
	if len(keywords) == 0 || m == nil || m.store == nil {
		return []Resource{}, nil
	}
	found, err := m.store.SearchApproved(ctx, keywords, m.limit)
	if err != nil {
		return []Resource{}, err
	}
	if len(found) > m.limit {
		found = found[:m.limit]
	}
	result := make([]Resource, len(found))
	copy(result, found)
	return result, nil
}
