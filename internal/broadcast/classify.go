// Package broadcast streams crew subprocess output to subscribers with
// classification, deduplication, and operation grouping.
package broadcast

import (
	"regexp"
	"strings"

	"github.com/kdkiss/CrewAI-Command-Center/internal/domain"
)

// categoryKeywords is an ordered priority list; the first matching category
// wins. Search/analysis/decision keywords are deliberately checked before
// error keywords: "thinking" categories must open operations before errors
// are seen as standalone, so a line like "search failed" classifies SEARCH.
var categoryKeywords = []struct {
	category domain.Category
	terms    []string
}{
	{domain.CategorySearch, []string{"search", "query", "looking for", "find"}},
	{domain.CategoryAnalysis, []string{"analyz", "process", "evaluat", "assess"}},
	{domain.CategoryDecision, []string{"decid", "select", "choose", "determin"}},
	{domain.CategoryResult, []string{"result", "found", "complet", "finish"}},
	{domain.CategoryError, []string{"error", "fail", "exception", "issue"}},
	{domain.CategoryAction, []string{"execut", "perform", "run", "start"}},
}

// Categorize classifies a log line by keyword substring match.
func Categorize(message string) domain.Category {
	lower := strings.ToLower(message)
	for _, entry := range categoryKeywords {
		for _, term := range entry.terms {
			if strings.Contains(lower, term) {
				return entry.category
			}
		}
	}
	return domain.CategoryInfo
}

// agentPatterns are tried in order; the first match wins.
var agentPatterns = []*regexp.Regexp{
	regexp.MustCompile(`Agent\s+["']?([^"':\n]+)["']?:`),
	regexp.MustCompile(`From\s+["']?([^"':\n]+)["']?:`),
	regexp.MustCompile(`\[([^\[\]]+)\]`),
	regexp.MustCompile(`@([a-zA-Z0-9_-]+)`),
	regexp.MustCompile(`<([a-zA-Z0-9_-]+)>`),
}

// ExtractAgent pulls an agent name out of a log line, falling back to
// defaultAgent when no marker matches.
func ExtractAgent(message, defaultAgent string) string {
	for _, pattern := range agentPatterns {
		if m := pattern.FindStringSubmatch(message); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	return defaultAgent
}
