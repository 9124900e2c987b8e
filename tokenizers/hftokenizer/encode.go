package hftokenizer

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Encode converts text to a sequence of token ids: normalization,
// pre-tokenization, then per-word model tokenization.
func (t *Tokenizer) Encode(text string) []int {
	normalized := text
	if t.tokenizer.Normalizer != nil {
		normalized = t.applyNormalizer(text, t.tokenizer.Normalizer)
	}

	var words []string
	if t.tokenizer.PreTokenizer == nil {
		words = strings.Fields(normalized)
	} else {
		words = t.applyPreTokenizer(normalized, t.tokenizer.PreTokenizer)
	}

	var ids []int
	for _, word := range words {
		ids = append(ids, t.tokenizeWord(word)...)
	}
	return ids
}

func (t *Tokenizer) applyNormalizer(text string, n *Normalizer) string {
	switch n.Type {
	case "Lowercase":
		return strings.ToLower(text)
	case "NFC":
		return norm.NFC.String(text)
	case "NFD":
		return norm.NFD.String(text)
	case "NFKC":
		return norm.NFKC.String(text)
	case "NFKD":
		return norm.NFKD.String(text)
	case "StripAccents":
		return removeAccents(norm.NFD.String(text))
	case "BertNormalizer":
		result := cleanText(text)
		if n.Lowercase {
			result = strings.ToLower(result)
		}
		return result
	case "Replace":
		if n.Pattern != nil && n.Pattern.String != "" {
			return strings.ReplaceAll(text, n.Pattern.String, n.Content)
		}
		return text
	case "Sequence":
		for i := range n.Normalizers {
			text = t.applyNormalizer(text, &n.Normalizers[i])
		}
		return text
	default:
		return text
	}
}

func (t *Tokenizer) applyPreTokenizer(text string, pt *PreTokenizer) []string {
	switch pt.Type {
	case "BertPreTokenizer":
		return splitOn(text, func(r rune) splitClass {
			switch {
			case isWhitespace(r):
				return splitDrop
			case isPunctuation(r):
				return splitIsolate
			default:
				return splitKeep
			}
		})
	case "Punctuation":
		return splitOn(text, func(r rune) splitClass {
			if isPunctuation(r) {
				return splitIsolate
			}
			return splitKeep
		})
	case "ByteLevel":
		if pt.AddPrefixSpace && len(text) > 0 && text[0] != ' ' {
			text = " " + text
		}
		return byteLevelPreTokenize(text)
	case "Metaspace":
		return metaspacePreTokenize(text, pt.AddPrefixSpace)
	case "Sequence":
		result := []string{text}
		for i := range pt.PreTokenizers {
			var next []string
			for _, piece := range result {
				next = append(next, t.applyPreTokenizer(piece, &pt.PreTokenizers[i])...)
			}
			result = next
		}
		return result
	default: // Whitespace, WhitespaceSplit, Split
		return strings.Fields(text)
	}
}

// tokenizeWord tokenizes a single word according to the model type. Added
// tokens (the special and reserved ones included) match as whole words.
func (t *Tokenizer) tokenizeWord(word string) []int {
	if id, ok := t.addedTokens[word]; ok {
		return []int{id}
	}
	switch t.tokenizer.Model.Type {
	case "WordPiece":
		return t.wordPieceTokenize(word)
	case "BPE":
		return t.bpeTokenize(word)
	case "Unigram":
		return t.unigramTokenize(word)
	default:
		if id, ok := t.tokenizer.Model.Vocab[word]; ok {
			return []int{id}
		}
		return t.unknown()
	}
}

func (t *Tokenizer) unknown() []int {
	if t.unkID >= 0 {
		return []int{t.unkID}
	}
	return nil
}

// wordPieceTokenize is the greedy longest-match-first subword algorithm used
// by BERT. A word with no full cover collapses to a single unknown token.
func (t *Tokenizer) wordPieceTokenize(word string) []int {
	if word == "" {
		return nil
	}
	maxChars := t.tokenizer.Model.MaxInputCharsPerWord
	if maxChars == 0 {
		maxChars = 100
	}
	if len(word) > maxChars {
		return t.unknown()
	}
	prefix := t.tokenizer.Model.ContinuingSubwordPrefix
	if prefix == "" {
		prefix = "##"
	}

	var ids []int
	start := 0
	for start < len(word) {
		end := len(word)
		matched := -1
		for end > start {
			piece := word[start:end]
			if start > 0 {
				piece = prefix + piece
			}
			if id, ok := t.tokenizer.Model.Vocab[piece]; ok {
				matched = id
				break
			}
			end--
		}
		if matched < 0 {
			return t.unknown()
		}
		ids = append(ids, matched)
		start = end
	}
	return ids
}

// bpeTokenize applies byte-pair merges in rank order until none applies.
func (t *Tokenizer) bpeTokenize(word string) []int {
	if word == "" {
		return nil
	}
	symbols := make([]string, 0, len(word))
	for _, r := range word {
		symbols = append(symbols, string(r))
	}
	if suffix := t.tokenizer.Model.EndOfWordSuffix; suffix != "" && len(symbols) > 0 {
		symbols[len(symbols)-1] += suffix
	}

	for len(symbols) > 1 {
		bestRank, bestIdx := -1, -1
		for i := 0; i < len(symbols)-1; i++ {
			rank, ok := t.mergeRanks[symbols[i]+" "+symbols[i+1]]
			if ok && (bestRank == -1 || rank < bestRank) {
				bestRank, bestIdx = rank, i
			}
		}
		if bestIdx < 0 {
			break
		}
		merged := symbols[bestIdx] + symbols[bestIdx+1]
		symbols = append(symbols[:bestIdx], append([]string{merged}, symbols[bestIdx+2:]...)...)
	}

	var ids []int
	for _, sym := range symbols {
		if id, ok := t.tokenizer.Model.Vocab[sym]; ok {
			ids = append(ids, id)
		} else if t.unkID >= 0 {
			ids = append(ids, t.unkID)
		}
	}
	return ids
}

// unigramTokenize is a greedy longest-match approximation of the Unigram
// model (the full algorithm runs Viterbi over piece scores).
func (t *Tokenizer) unigramTokenize(word string) []int {
	var ids []int
	runes := []rune(word)
	start := 0
	for start < len(runes) {
		matched := false
		for end := len(runes); end > start; end-- {
			if id, ok := t.tokenizer.Model.Vocab[string(runes[start:end])]; ok {
				ids = append(ids, id)
				start, matched = end, true
				break
			}
		}
		if !matched {
			if id, ok := t.tokenizer.Model.Vocab[string(runes[start])]; ok {
				ids = append(ids, id)
			} else if t.unkID >= 0 {
				ids = append(ids, t.unkID)
			}
			start++
		}
	}
	return ids
}

// Splitting helpers shared by the rune-class pre-tokenizers.

type splitClass int

const (
	splitKeep    splitClass = iota // part of the current word
	splitIsolate                   // its own single-rune token
	splitDrop                      // word boundary, discarded
)

func splitOn(text string, classify func(rune) splitClass) []string {
	var tokens []string
	var current strings.Builder
	flush := func() {
		if current.Len() > 0 {
			tokens = append(tokens, current.String())
			current.Reset()
		}
	}
	for _, r := range text {
		switch classify(r) {
		case splitKeep:
			current.WriteRune(r)
		case splitIsolate:
			flush()
			tokens = append(tokens, string(r))
		case splitDrop:
			flush()
		}
	}
	flush()
	return tokens
}

func isWhitespace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r' || unicode.Is(unicode.Zs, r)
}

func isControl(r rune) bool {
	if r == '\t' || r == '\n' || r == '\r' {
		return false
	}
	return unicode.IsControl(r)
}

func isPunctuation(r rune) bool {
	if (r >= 33 && r <= 47) || (r >= 58 && r <= 64) ||
		(r >= 91 && r <= 96) || (r >= 123 && r <= 126) {
		return true
	}
	return unicode.IsPunct(r)
}

func cleanText(text string) string {
	var result strings.Builder
	for _, r := range text {
		if r == 0 || r == 0xFFFD || isControl(r) {
			continue
		}
		if isWhitespace(r) {
			result.WriteRune(' ')
		} else {
			result.WriteRune(r)
		}
	}
	return result.String()
}

func removeAccents(text string) string {
	var result strings.Builder
	for _, r := range text {
		if !unicode.Is(unicode.Mn, r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}
