package format

import "strings"

const mdV2Specials = "_*[]()~`>#+-=|{}.!"

var mdV2Replacer = buildReplacer(mdV2Specials)

func buildReplacer(specials string) *strings.Replacer {
	pairs := make([]string, 0, len(specials)*2)
	for _, r := range specials {
		pairs = append(pairs, string(r), `\`+string(r))
	}
	return strings.NewReplacer(pairs...)
}

// EscapeMarkdownV2 escapes the characters Telegram treats as MarkdownV2 syntax.
// Use it on user- or API-supplied fragments embedded into formatted messages.
func EscapeMarkdownV2(text string) string {
	return mdV2Replacer.Replace(text)
}
