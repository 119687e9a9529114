package textutil

import (
	"regexp"
	"strings"
)

var whitespaceRegex = regexp.MustCompile(`\s+`)

func NormalizeTitle(title string) string {
	title = strings.ToLower(title)
	title = strings.Trim(title, " \n\t")
	title = whitespaceRegex.ReplaceAllString(title, "")
	return title
}

func MatchesAny(title string, candidates []string) bool {
	title = NormalizeTitle(title)
	for _, c := range candidates {
		if title == NormalizeTitle(c) {
			return true
		}
	}
	return false
}
