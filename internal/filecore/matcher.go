package filecore

import (
	"fmt"
	"strings"
)

// matchRange is a byte-offset span in a haystack string.
type matchRange struct {
	start  int
	length int
}

func (r matchRange) end() int { return r.start + r.length }

// matchResult is a resolved match: where it is and the exact text that was
// matched (which can differ from the caller's search string once a fuzzy
// strategy has kicked in).
type matchResult struct {
	rng         matchRange
	matchedText string
}

// strategyChain lists the nine strategies in the exact fallback order the
// engine must try them in. Order matters: it goes from "no room for
// ambiguity" to "most lenient", so a search string that legitimately has an
// exact match is never accidentally fuzzy-matched against the wrong block.
var strategyChain = []matchStrategy{
	simpleStrategy{},
	lineTrimmedStrategy{},
	blockAnchorStrategy{},
	whitespaceNormalizedStrategy{},
	indentationFlexibleStrategy{},
	escapeNormalizedStrategy{},
	trimmedBoundaryStrategy{},
	contextAwareStrategy{},
	multiOccurrenceStrategy{},
}

// NoMatchError is returned when none of the nine strategies located search
// in content.
type NoMatchError struct{ Search string }

func (e *NoMatchError) Error() string {
	return fmt.Sprintf("could not find match for search text: %q. File may have changed externally, consider reading the file again.", e.Search)
}

// MultipleMatchesError is returned by Replace (not ReplaceAll) when the
// matched text occurs more than once in the file.
type MultipleMatchesError struct{ Search string }

func (e *MultipleMatchesError) Error() string {
	return fmt.Sprintf("multiple matches found for search text: %q. Either provide a more specific search pattern or use ReplaceAll to replace all occurrences.", e.Search)
}

// NoSwapTargetError is returned by Swap when its target text (the content
// argument) cannot be located in the file.
type NoSwapTargetError struct{ Target string }

func (e *NoSwapTargetError) Error() string {
	return fmt.Sprintf("could not find swap target text: %s", e.Target)
}

// tryStrategy runs one strategy and resolves its candidate matches into a
// single matchResult, honoring the replaceAll/single-match distinction: a
// non-replaceAll call that produces more than one candidate is treated as
// "this strategy didn't settle it" and falls through to the next strategy,
// exactly like the original engine.
func tryStrategy(s matchStrategy, content, search string, replaceAll bool) (*matchResult, bool) {
	matches := s.findMatches(content, search)
	if len(matches) == 0 {
		return nil, false
	}
	if !replaceAll && len(matches) != 1 {
		return nil, false
	}
	matchedText := matches[0]
	pos := strings.Index(content, matchedText)
	if pos < 0 {
		return nil, false
	}
	return &matchResult{rng: matchRange{start: pos, length: len(matchedText)}, matchedText: matchedText}, true
}

// findMatch runs every strategy in strategyChain in order and returns the
// first one that settles on a match.
func findMatch(content, search string, replaceAll bool) (*matchResult, error) {
	for _, s := range strategyChain {
		if result, ok := tryStrategy(s, content, search, replaceAll); ok {
			return result, nil
		}
	}
	return nil, &NoMatchError{Search: search}
}
