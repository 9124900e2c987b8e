package hftokenizer

import "strings"

// Decode converts a sequence of token ids back to text. Unknown ids are skipped.
func (t *Tokenizer) Decode(ids []int) string {
	tokens := make([]string, 0, len(ids))
	for _, id := range ids {
		if token, ok := t.idToToken[id]; ok {
			tokens = append(tokens, token)
		}
	}

	decoder := t.tokenizer.Decoder
	if decoder == nil {
		return t.wordPieceDecode(tokens, "")
	}
	switch decoder.Type {
	case "WordPiece":
		return t.wordPieceDecode(tokens, decoder.Prefix)
	case "ByteLevel":
		return byteLevelDecode(strings.Join(tokens, ""))
	case "Metaspace":
		return metaspaceDecode(tokens)
	case "BPEDecoder":
		return t.bpeDecode(tokens)
	default:
		return t.wordPieceDecode(tokens, "")
	}
}

// wordPieceDecode joins tokens with spaces, gluing continuation pieces
// (the "##"-prefixed ones) to their predecessor.
func (t *Tokenizer) wordPieceDecode(tokens []string, prefix string) string {
	if prefix == "" {
		prefix = t.tokenizer.Model.ContinuingSubwordPrefix
	}
	if prefix == "" {
		prefix = "##"
	}
	var result strings.Builder
	for i, token := range tokens {
		if continuation, ok := strings.CutPrefix(token, prefix); ok {
			result.WriteString(continuation)
			continue
		}
		if i > 0 {
			result.WriteString(" ")
		}
		result.WriteString(token)
	}
	return result.String()
}

// bpeDecode strips the end-of-word suffix, inserting spaces at word ends.
func (t *Tokenizer) bpeDecode(tokens []string) string {
	suffix := t.tokenizer.Model.EndOfWordSuffix
	var result strings.Builder
	for i, token := range tokens {
		word, endOfWord := token, false
		if suffix != "" {
			word, endOfWord = strings.CutSuffix(token, suffix)
		}
		result.WriteString(word)
		if endOfWord && i < len(tokens)-1 {
			result.WriteString(" ")
		}
	}
	return result.String()
}
