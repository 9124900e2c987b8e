// Package sentencepiece implements an api.Tokenizer based on the SentencePiece
// tokenizer.
package sentencepiece

import (
	"strings"

	esentencepiece "github.com/eliben/go-sentencepiece"
	"github.com/pkg/errors"

	"github.com/verseml/poetics/tokenizers/api"
)

// Tokenizer wraps a SentencePiece processor. SentencePiece models don't carry
// the HuggingFace-style "<extra_id_N>" placeholders themselves; they are
// registered on top with WithAdditionalSpecialTokens, the way model configs
// declare them above the base vocabulary.
type Tokenizer struct {
	*esentencepiece.Processor
	Info *esentencepiece.ModelInfo

	additional    []string
	additionalIDs map[string]int
	idToToken     map[int]string
}

// Compile time assert that sentencepiece.Tokenizer implements api.Tokenizer.
var _ api.Tokenizer = &Tokenizer{}

// NewFromFile creates a SentencePiece tokenizer from a "tokenizer.model" file,
// which must be a SentencePiece Model proto.
func NewFromFile(filePath string) (*Tokenizer, error) {
	proc, err := esentencepiece.NewProcessorFromPath(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "can't create sentencepiece tokenizer from %q", filePath)
	}
	return &Tokenizer{
		Processor:     proc,
		Info:          proc.ModelInfo(),
		additionalIDs: make(map[string]int),
		idToToken:     make(map[int]string),
	}, nil
}

// WithAdditionalSpecialTokens registers the reserved placeholder tokens and
// their vocabulary ids, in order. It returns the Tokenizer, for chaining.
func (p *Tokenizer) WithAdditionalSpecialTokens(tokens []string, ids []int) *Tokenizer {
	p.additional = append([]string(nil), tokens...)
	for i, token := range tokens {
		p.additionalIDs[token] = ids[i]
		p.idToToken[ids[i]] = token
	}
	return p
}

// AdditionalSpecialTokens implements api.Tokenizer.
func (p *Tokenizer) AdditionalSpecialTokens() []string {
	out := make([]string, len(p.additional))
	copy(out, p.additional)
	return out
}

// Encode returns the text encoded into a sequence of ids.
func (p *Tokenizer) Encode(text string) []int {
	tokens := p.Processor.Encode(text)
	ids := make([]int, len(tokens))
	for i, token := range tokens {
		ids[i] = token.ID
	}
	return ids
}

// Decode returns the text from a sequence of ids. Registered placeholder
// tokens decode to their literal text; everything else goes through the
// SentencePiece decoder.
func (p *Tokenizer) Decode(ids []int) string {
	var out strings.Builder
	var run []int
	flush := func() {
		if len(run) > 0 {
			out.WriteString(p.Processor.Decode(run))
			run = run[:0]
		}
	}
	for _, id := range ids {
		if token, ok := p.idToToken[id]; ok {
			flush()
			out.WriteString(token)
			continue
		}
		run = append(run, id)
	}
	flush()
	return out.String()
}

// TokenToID implements api.Tokenizer. For non-registered tokens it succeeds
// only when the token encodes as a single piece.
func (p *Tokenizer) TokenToID(token string) (int, bool) {
	if id, ok := p.additionalIDs[token]; ok {
		return id, true
	}
	pieces := p.Processor.Encode(token)
	if len(pieces) != 1 {
		return 0, false
	}
	return pieces[0].ID, true
}

// SpecialTokenID returns the id for the given special token, or an error if not known.
func (p *Tokenizer) SpecialTokenID(token api.SpecialToken) (int, error) {
	switch token {
	case api.TokUnknown:
		return p.Info.UnknownID, nil
	case api.TokPad:
		return p.Info.PadID, nil
	case api.TokBeginningOfSentence:
		return p.Info.BeginningOfSentenceID, nil
	case api.TokEndOfSentence:
		return p.Info.EndOfSentenceID, nil
	default:
		return 0, errors.Errorf("unknown special token: %s (%d)", token, int(token))
	}
}
