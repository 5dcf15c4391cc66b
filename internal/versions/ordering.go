package versions

import (
	"sort"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/mod/semver"
)

// CompareTags orders release tags. Valid semantic versions use semantic
// precedence with build metadata as a numeric tiebreak; everything else falls
// back to a digit-run aware comparison so v2.10 sorts above v2.9.
func CompareTags(first string, second string) int {
	if semver.IsValid(first) && semver.IsValid(second) {
		if comparison := semver.Compare(first, second); comparison != 0 {
			return comparison
		}
		if comparison := compareNatural(semver.Build(first), semver.Build(second)); comparison != 0 {
			return comparison
		}
	}
	return compareNatural(first, second)
}

// SortTags sorts tags in ascending release order.
func SortTags(tags []string) {
	sort.SliceStable(tags, func(firstIndex int, secondIndex int) bool {
		return CompareTags(tags[firstIndex], tags[secondIndex]) < 0
	})
}

func compareNatural(first string, second string) int {
	firstChunks := splitDigitRuns(first)
	secondChunks := splitDigitRuns(second)
	for index := 0; index < len(firstChunks) && index < len(secondChunks); index++ {
		if comparison := compareChunk(firstChunks[index], secondChunks[index]); comparison != 0 {
			return comparison
		}
	}
	switch {
	case len(firstChunks) < len(secondChunks):
		return -1
	case len(firstChunks) > len(secondChunks):
		return 1
	default:
		return 0
	}
}

func compareChunk(first string, second string) int {
	firstNumber, firstError := strconv.ParseUint(first, 10, 64)
	secondNumber, secondError := strconv.ParseUint(second, 10, 64)
	if firstError == nil && secondError == nil {
		switch {
		case firstNumber < secondNumber:
			return -1
		case firstNumber > secondNumber:
			return 1
		}
		// 01 and 1 are numerically equal; keep a stable textual order.
		return strings.Compare(first, second)
	}
	return strings.Compare(first, second)
}

func splitDigitRuns(value string) []string {
	chunks := []string{}
	var current strings.Builder
	currentIsDigit := false
	for index, character := range value {
		isDigit := unicode.IsDigit(character)
		if index > 0 && isDigit != currentIsDigit {
			chunks = append(chunks, current.String())
			current.Reset()
		}
		current.WriteRune(character)
		currentIsDigit = isDigit
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}
