// Package classify holds the keyword heuristics shared by the fetchers and the
// upserter: category rules, tag vocabulary, keyword extraction, image fallbacks.
package classify

import "strings"

// Rule maps any of its keywords to a category. Keywords are matched as
// case-insensitive substrings.
type Rule struct {
	Category string
	Keywords []string
}

// Classifier assigns a category to text. Implementations other than the
// ordered rule list can be swapped in by the fetchers.
type Classifier interface {
	Classify(text string) string
}

// RuleSet is an ordered first-match classifier.
type RuleSet struct {
	Rules    []Rule
	Fallback string
}

func (rs RuleSet) Classify(text string) string {
	lower := strings.ToLower(text)
	for _, r := range rs.Rules {
		for _, kw := range r.Keywords {
			if strings.Contains(lower, kw) {
				return r.Category
			}
		}
	}
	return rs.Fallback
}

// VideoRules is the rule set used for channel uploads.
var VideoRules = RuleSet{
	Rules: []Rule{
		{Category: "Dynasty", Keywords: []string{"dynasty"}},
		{Category: "Waiver Wire", Keywords: []string{"waiver", "pickup", "adds and drops"}},
		{Category: "Start/Sit", Keywords: []string{"start/sit", "start or sit", "start sit", "start 'em", "sit 'em"}},
		{Category: "Rookies", Keywords: []string{"rookie"}},
		{Category: "Trades", Keywords: []string{"trade"}},
		{Category: "Rankings", Keywords: []string{"ranking", "tier"}},
		{Category: "Draft", Keywords: []string{"mock draft", "draft strategy", "adp", "sleeper"}},
		{Category: "News", Keywords: []string{"injury", "breaking", "news"}},
	},
	Fallback: "Analysis",
}

// ArticleRules is the rule set used for feed entries.
var ArticleRules = RuleSet{
	Rules: []Rule{
		{Category: "Waiver Wire", Keywords: []string{"waiver", "pickup", "streamer"}},
		{Category: "Start/Sit", Keywords: []string{"start/sit", "start or sit", "start sit", "start 'em", "sit 'em"}},
		{Category: "Trade Analysis", Keywords: []string{"trade"}},
		{Category: "Rookies", Keywords: []string{"rookie"}},
		{Category: "Dynasty", Keywords: []string{"dynasty", "keeper"}},
		{Category: "Rankings", Keywords: []string{"ranking", "tier", "top 10", "top 25"}},
		{Category: "Analysis", Keywords: []string{"analysis", "breakdown", "film", "deep dive"}},
		{Category: "Podcast", Keywords: []string{"podcast", "episode"}},
	},
	Fallback: "News",
}
