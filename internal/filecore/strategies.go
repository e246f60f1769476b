// Package filecore implements the file-mutation core: snapshot-backed
// writes and a multi-strategy fuzzy patch engine that locates a search
// block in a file's content even when the model's copy of it has drifted
// slightly from what's on disk (re-indented, rewrapped, whitespace-
// collapsed, escape-sequence-mangled, and so on).
package filecore

import "strings"

// matchStrategy finds every occurrence of search in content under one
// fuzzy-matching rule, returning the literal substrings that were judged to
// match. A nil slice means the strategy found nothing and the matcher
// should fall through to the next strategy in the chain.
type matchStrategy interface {
	findMatches(content, search string) []string
}

// simpleStrategy: strategy 1, exact substring containment.
type simpleStrategy struct{}

func (simpleStrategy) findMatches(content, search string) []string {
	if strings.Contains(content, search) {
		return []string{search}
	}
	return nil
}

// lineTrimmedStrategy: strategy 2, compares lines after trimming whitespace
// from both sides of every line.
type lineTrimmedStrategy struct{}

func (lineTrimmedStrategy) findMatches(content, search string) []string {
	searchLines := splitLines(search)
	if len(searchLines) == 0 {
		return nil
	}
	contentLines := splitLines(content)
	var results []string
	for i := 0; i+len(searchLines) <= len(contentLines); i++ {
		window := contentLines[i : i+len(searchLines)]
		if allTrimmedEqual(window, searchLines) {
			results = append(results, strings.Join(window, "\n"))
		}
	}
	return results
}

func allTrimmedEqual(window, search []string) bool {
	for i := range window {
		if strings.TrimSpace(window[i]) != strings.TrimSpace(search[i]) {
			return false
		}
	}
	return true
}

// blockAnchorStrategy: strategy 3, anchors on the first and last line of a
// 3+ line search block and allows the middle lines to drift up to a
// Levenshtein budget of total_middle_chars/4.
type blockAnchorStrategy struct{}

func (blockAnchorStrategy) findMatches(content, search string) []string {
	searchLines := splitLines(search)
	if len(searchLines) < 3 {
		return nil
	}
	firstLine := strings.TrimSpace(searchLines[0])
	lastLine := strings.TrimSpace(searchLines[len(searchLines)-1])
	middleLines := searchLines[1 : len(searchLines)-1]

	contentLines := splitLines(content)
	var results []string
	for i := 0; i < len(contentLines); i++ {
		if strings.TrimSpace(contentLines[i]) != firstLine {
			continue
		}
		for j := i + 2; j < len(contentLines); j++ {
			if strings.TrimSpace(contentLines[j]) != lastLine {
				continue
			}
			candidateMiddle := contentLines[i+1 : j]
			if len(candidateMiddle) != len(middleLines) {
				continue
			}
			dist := 0
			totalChars := 0
			for k, ml := range middleLines {
				dist += levenshtein(strings.TrimSpace(candidateMiddle[k]), strings.TrimSpace(ml))
				totalChars += len(ml)
			}
			if dist < totalChars/4 {
				results = append(results, strings.Join(contentLines[i:j+1], "\n"))
			}
		}
	}
	return results
}

// whitespaceNormalizedStrategy: strategy 4, collapses all runs of
// whitespace to a single space on both sides before comparing, then maps
// the match position back onto the original (unnormalized) content.
type whitespaceNormalizedStrategy struct{}

func (whitespaceNormalizedStrategy) findMatches(content, search string) []string {
	normSearch := normalizeWhitespace(search)
	normContent := normalizeWhitespace(content)

	pos := strings.Index(normContent, normSearch)
	if pos < 0 {
		return nil
	}
	if original := findOriginalMatch(content, search, pos); original != "" {
		return []string{original}
	}
	return nil
}

func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// findOriginalMatch approximates the original-text window corresponding to
// a match found in normalized content, by locating which source line the
// approximate character offset falls on and taking a same-sized window of
// lines from there. This mirrors the original's deliberately approximate
// line-based remapping rather than precise character offsets.
func findOriginalMatch(source, search string, approxPos int) string {
	sourceLines := splitLines(source)
	searchLines := splitLines(search)

	charCount := 0
	startLine := 0
	for i, line := range sourceLines {
		if charCount+len(line) >= approxPos {
			startLine = i
			if startLine > 0 {
				startLine--
			}
			break
		}
		charCount += len(line) + 1
	}

	windowSize := len(searchLines)
	if startLine+windowSize <= len(sourceLines) {
		return strings.Join(sourceLines[startLine:startLine+windowSize], "\n")
	}
	return ""
}

// indentationFlexibleStrategy: strategy 5, ignores leading indentation on
// every line (but keeps trailing whitespace differences significant).
type indentationFlexibleStrategy struct{}

func (indentationFlexibleStrategy) findMatches(content, search string) []string {
	searchLines := splitLines(search)
	if len(searchLines) == 0 {
		return nil
	}
	contentLines := splitLines(content)
	var results []string
	for i := 0; i+len(searchLines) <= len(contentLines); i++ {
		window := contentLines[i : i+len(searchLines)]
		matches := true
		for k := range window {
			if strings.TrimLeft(window[k], " \t") != strings.TrimLeft(searchLines[k], " \t") {
				matches = false
				break
			}
		}
		if matches {
			results = append(results, strings.Join(window, "\n"))
		}
	}
	return results
}

// escapeNormalizedStrategy: strategy 6, unescapes common backslash escape
// sequences in search (as if it had been copied out of a JSON/string
// literal) before comparing.
type escapeNormalizedStrategy struct{}

func unescape(s string) string {
	r := strings.NewReplacer(`\n`, "\n", `\t`, "\t", `\r`, "\r", `\"`, `"`, `\'`, `'`)
	return r.Replace(s)
}

func (escapeNormalizedStrategy) findMatches(content, search string) []string {
	unescapedSearch := unescape(search)
	if strings.Contains(content, unescapedSearch) {
		return []string{unescapedSearch}
	}

	searchLines := splitLines(search)
	for i := range searchLines {
		searchLines[i] = unescape(searchLines[i])
	}
	contentLines := splitLines(content)
	for i := 0; i+len(searchLines) <= len(contentLines); i++ {
		window := contentLines[i : i+len(searchLines)]
		matches := true
		for k := range window {
			if window[k] != searchLines[k] {
				matches = false
				break
			}
		}
		if matches {
			return []string{strings.Join(window, "\n")}
		}
	}
	return nil
}

// trimmedBoundaryStrategy: strategy 7, trims leading/trailing whitespace
// off the whole search block before an exact-substring check.
type trimmedBoundaryStrategy struct{}

func (trimmedBoundaryStrategy) findMatches(content, search string) []string {
	trimmed := strings.TrimSpace(search)
	if strings.Contains(content, trimmed) {
		return []string{trimmed}
	}
	return nil
}

// contextAwareStrategy: strategy 8, the same anchored-block shape as
// blockAnchorStrategy but scored by fraction of matching middle lines
// (>= 50%) instead of a Levenshtein budget — the most lenient strategy
// before falling back to raw multi-occurrence matching.
type contextAwareStrategy struct{}

func (contextAwareStrategy) findMatches(content, search string) []string {
	searchLines := splitLines(search)
	if len(searchLines) < 3 {
		return nil
	}
	firstLine := strings.TrimSpace(searchLines[0])
	lastLine := strings.TrimSpace(searchLines[len(searchLines)-1])
	middleLines := searchLines[1 : len(searchLines)-1]

	contentLines := splitLines(content)
	var results []string
	for i := 0; i < len(contentLines); i++ {
		if strings.TrimSpace(contentLines[i]) != firstLine {
			continue
		}
		for j := i + 2; j < len(contentLines); j++ {
			if strings.TrimSpace(contentLines[j]) != lastLine {
				continue
			}
			candidateMiddle := contentLines[i+1 : j]
			if len(candidateMiddle) != len(middleLines) {
				continue
			}
			matching := 0
			for k, ml := range middleLines {
				if strings.TrimSpace(candidateMiddle[k]) == strings.TrimSpace(ml) {
					matching++
				}
			}
			if matching >= len(middleLines)/2 {
				results = append(results, strings.Join(contentLines[i:j+1], "\n"))
			}
		}
	}
	return results
}

// multiOccurrenceStrategy: strategy 9, the final fallback — finds every
// literal occurrence of search in content. On its own this never
// disambiguates; it exists so replace_all has something to act on even
// when none of the fuzzier strategies above produced exactly one match.
type multiOccurrenceStrategy struct{}

func (multiOccurrenceStrategy) findMatches(content, search string) []string {
	var results []string
	start := 0
	for {
		idx := strings.Index(content[start:], search)
		if idx < 0 {
			break
		}
		results = append(results, search)
		start += idx + len(search)
	}
	return results
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

// levenshtein computes edit distance between a and b. This is a small,
// self-contained utility (not a matching *strategy* in its own right, just
// arithmetic the block-anchor strategy needs) — no third-party Go
// Levenshtein implementation appears anywhere in the reference pack, so it
// stays a plain function here rather than reaching for an unvetted module.
func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			del := prev[j] + 1
			ins := curr[j-1] + 1
			sub := prev[j-1] + cost
			m := del
			if ins < m {
				m = ins
			}
			if sub < m {
				m = sub
			}
			curr[j] = m
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}
