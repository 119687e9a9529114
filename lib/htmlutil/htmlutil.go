package htmlutil

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// LastPathSegment returns the final path component of an href, the
// conventional place bgm.tv keeps ids and tokens.
func LastPathSegment(href string) string {
	href = strings.TrimRight(href, "/")
	idx := strings.LastIndexByte(href, '/')
	if idx < 0 {
		return href
	}
	return href[idx+1:]
}

// CheckedValues returns the value attributes of the checked inputs in the
// selection, in document order.
func CheckedValues(sel *goquery.Selection) []string {
	var values []string
	sel.Find("input").Each(func(i int, input *goquery.Selection) {
		if _, ok := input.Attr("checked"); !ok {
			return
		}
		value, ok := input.Attr("value")
		if !ok {
			return
		}
		values = append(values, value)
	})
	return values
}
