package hftokenizer

import "strings"

// GPT-2 style byte-level BPE maps every byte to a printable unicode rune so
// the vocabulary never contains raw control bytes.
var (
	byteToUnicode [256]rune
	unicodeToByte map[rune]byte
)

func init() {
	unicodeToByte = make(map[rune]byte, 256)
	n := 0
	for b := 0; b < 256; b++ {
		if (b >= '!' && b <= '~') || (b >= 0xa1 && b <= 0xac) || (b >= 0xae && b <= 0xff) {
			byteToUnicode[b] = rune(b)
		} else {
			byteToUnicode[b] = rune(256 + n)
			n++
		}
		unicodeToByte[byteToUnicode[b]] = byte(b)
	}
}

// byteLevelPreTokenize splits text into words with any leading space attached
// to the following word, all bytes mapped through the byte-level alphabet.
func byteLevelPreTokenize(text string) []string {
	var tokens []string
	var current strings.Builder
	inWord := false
	for i := 0; i < len(text); i++ {
		b := text[i]
		if b == ' ' {
			if inWord {
				tokens = append(tokens, current.String())
				current.Reset()
				inWord = false
			}
			current.WriteRune(byteToUnicode[b])
			continue
		}
		inWord = true
		current.WriteRune(byteToUnicode[b])
	}
	if current.Len() > 0 {
		tokens = append(tokens, current.String())
	}
	return tokens
}

func byteLevelDecode(text string) string {
	var result []byte
	for _, r := range text {
		if b, ok := unicodeToByte[r]; ok {
			result = append(result, b)
		} else {
			result = append(result, []byte(string(r))...)
		}
	}
	return string(result)
}

// metaspace is the U+2581 space replacement used by sentencepiece-derived
// tokenizer.json files.
const metaspace = "▁"

func metaspacePreTokenize(text string, addPrefixSpace bool) []string {
	if addPrefixSpace && len(text) > 0 && text[0] != ' ' {
		text = " " + text
	}
	text = strings.ReplaceAll(text, " ", metaspace)

	var tokens []string
	var current strings.Builder
	for _, r := range text {
		if r == '▁' && current.Len() > 0 {
			tokens = append(tokens, current.String())
			current.Reset()
		}
		current.WriteRune(r)
	}
	if current.Len() > 0 {
		tokens = append(tokens, current.String())
	}
	return tokens
}

func metaspaceDecode(tokens []string) string {
	var result strings.Builder
	for _, token := range tokens {
		result.WriteString(strings.ReplaceAll(token, metaspace, " "))
	}
	return strings.TrimLeft(result.String(), " ")
}
