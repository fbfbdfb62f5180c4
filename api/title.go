package api

import (
	"strings"
	"unicode/utf8"
)

//TitleWords is the number of words of the first message used as a session title
const TitleWords = 6

//FallbackTitle returns the first TitleWords words of message, truncated to max bytes
func FallbackTitle(message string, max int) string {
	words := strings.Fields(message)
	if len(words) > TitleWords {
		words = words[:TitleWords]
	}
	title := strings.Join(words, " ")
	if max <= 0 || len(title) <= max {
		return title
	}

	//don't split a rune
	for max > 0 && !utf8.RuneStart(title[max]) {
		max--
	}
	return strings.TrimSpace(title[:max])
}
