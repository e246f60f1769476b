package filecore

import "strings"

// Operation names one of the five ways FsPatch can apply content relative
// to a located search block.
type Operation int

const (
	// OpPrepend inserts content immediately before the matched block.
	OpPrepend Operation = iota
	// OpAppend inserts content, on its own line, immediately after the
	// matched block.
	OpAppend
	// OpReplace replaces the single matched block with content. It is an
	// error for the matched text to occur more than once in the file.
	OpReplace
	// OpReplaceAll replaces every literal occurrence of the matched text
	// with content.
	OpReplaceAll
	// OpSwap exchanges the matched block with another block located by
	// fuzzy-matching content itself against the file.
	OpSwap
)

// ApplyReplacement applies operation to haystack. search is the text the
// caller believes is present in haystack (nil/empty means "no anchor" — see
// below); content is the operation's payload.
//
// When search is empty, the operation degrades to a search-less form: Append
// appends content on a new line, Prepend prepends it, Replace/ReplaceAll
// discard haystack entirely and become content, and Swap is a no-op (there
// is nothing to swap without an anchor).
func ApplyReplacement(haystack string, search *string, operation Operation, content string) (string, error) {
	needle := ""
	if search != nil {
		needle = *search
	}
	if needle == "" {
		switch operation {
		case OpAppend:
			return haystack + "\n" + content, nil
		case OpPrepend:
			return content + haystack, nil
		case OpReplace, OpReplaceAll:
			return content, nil
		case OpSwap:
			return haystack, nil
		}
		return haystack, nil
	}

	replaceAll := operation == OpReplaceAll
	match, err := findMatch(haystack, needle, replaceAll)
	if err != nil {
		return "", err
	}
	rng := match.rng
	matchedText := match.matchedText

	switch operation {
	case OpPrepend:
		return haystack[:rng.start] + content + haystack[rng.start:], nil

	case OpReplaceAll:
		return strings.ReplaceAll(haystack, matchedText, content), nil

	case OpAppend:
		return haystack[:rng.end()] + "\n" + content + haystack[rng.end():], nil

	case OpReplace:
		if strings.Count(haystack, matchedText) > 1 {
			return "", &MultipleMatchesError{Search: needle}
		}
		return haystack[:rng.start] + content + haystack[rng.end():], nil

	case OpSwap:
		targetMatch, err := findMatch(haystack, content, false)
		if err != nil {
			return "", &NoSwapTargetError{Target: content}
		}
		targetRng := targetMatch.rng
		targetText := targetMatch.matchedText

		overlap := (rng.start <= targetRng.start && rng.end() > targetRng.start) ||
			(targetRng.start <= rng.start && targetRng.end() > rng.start)
		if overlap {
			return haystack[:rng.start] + targetText + haystack[rng.end():], nil
		}

		if rng.start < targetRng.start {
			return haystack[:rng.start] + targetText + haystack[rng.end():targetRng.start] + matchedText + haystack[targetRng.end():], nil
		}
		return haystack[:targetRng.start] + matchedText + haystack[targetRng.end():rng.start] + targetText + haystack[rng.end():], nil
	}

	return "", &NoMatchError{Search: needle}
}
