package datasets

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

var quoteReplacer = strings.NewReplacer(
	"’", "'", // right single quotation mark
	"‘", "'", // left single quotation mark
	"“", `"`, // left double quotation mark
	"”", `"`, // right double quotation mark
	"„", `"`, // low double quotation mark (German opening quote)
	"«", `"`, // guillemets
	"»", `"`,
)

// CleanSentence normalizes a verse before tokenization: NFC normalization,
// typographic quotes folded to ASCII, and whitespace collapsed. The language
// tag selects language-specific fixups.
func CleanSentence(text, language string) string {
	text = norm.NFC.String(text)
	text = quoteReplacer.Replace(text)
	if language == "en" {
		// Detokenizers leave a space before clitics in some English corpora.
		text = strings.ReplaceAll(text, " n't", "n't")
		text = strings.ReplaceAll(text, " 's", "'s")
	}
	return strings.Join(strings.Fields(text), " ")
}
