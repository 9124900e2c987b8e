package poetry

import (
	"github.com/pkg/errors"

	"github.com/verseml/poetics/tokenizers/api"
)

// Poetry2Tokens maps the three poetry label sets (alliteration levels, meters,
// rhyme schemes) onto a tokenizer's reserved special-token block. The three
// blocks are laid out back to back in that fixed order: alliteration levels
// occupy reserved slots [0, |A|), meters [|A|, |A|+|M|) and rhyme schemes
// [|A|+|M|, |A|+|M|+|R|).
type Poetry2Tokens struct {
	tokenizer api.Tokenizer

	alliterationLevels []string
	meters             []string
	rhymeSchemes       []string

	// reserved[i] and reservedIDs[i] are the i-th reserved token and its vocabulary id.
	reserved    []string
	reservedIDs []int
}

// New creates a Poetry2Tokens for the tokenizer using the default label sets.
// It fails if the tokenizer's reserved special-token block is too small to
// hold all labels.
func New(tokenizer api.Tokenizer) (*Poetry2Tokens, error) {
	return NewWithLabels(tokenizer, AlliterationLevels, Meters, QuatrainRhymeSchemes)
}

// NewWithLabels is like New but takes custom ordered label sets.
func NewWithLabels(tokenizer api.Tokenizer, alliterationLevels, meters, rhymeSchemes []string) (*Poetry2Tokens, error) {
	reserved := tokenizer.AdditionalSpecialTokens()
	total := len(alliterationLevels) + len(meters) + len(rhymeSchemes)
	if total > len(reserved) {
		return nil, errors.Errorf(
			"number of special poetry tokens (%d) exceeds the tokenizer's reserved vocabulary (%d slots)",
			total, len(reserved))
	}

	p := &Poetry2Tokens{
		tokenizer:          tokenizer,
		alliterationLevels: alliterationLevels,
		meters:             meters,
		rhymeSchemes:       rhymeSchemes,
		reserved:           reserved,
		reservedIDs:        make([]int, len(reserved)),
	}
	for i, token := range reserved {
		id, ok := tokenizer.TokenToID(token)
		if !ok {
			return nil, errors.Errorf("reserved token %q not found in tokenizer vocabulary", token)
		}
		p.reservedIDs[i] = id
	}
	return p, nil
}

// Tokenizer returns the underlying tokenizer.
func (p *Poetry2Tokens) Tokenizer() api.Tokenizer { return p.tokenizer }

func (p *Poetry2Tokens) meterOffset() int { return len(p.alliterationLevels) }

func (p *Poetry2Tokens) rhymeOffset() int { return len(p.alliterationLevels) + len(p.meters) }

// Alliterations2Tokens maps each alliteration level to its reserved token.
func (p *Poetry2Tokens) Alliterations2Tokens() map[string]string {
	return tokensAt(p.alliterationLevels, p.reserved, 0)
}

// Alliterations2IDs maps each alliteration level to its vocabulary id.
func (p *Poetry2Tokens) Alliterations2IDs() map[string]int {
	return tokensAt(p.alliterationLevels, p.reservedIDs, 0)
}

// Meters2Tokens maps each meter to its reserved token.
func (p *Poetry2Tokens) Meters2Tokens() map[string]string {
	return tokensAt(p.meters, p.reserved, p.meterOffset())
}

// Meters2IDs maps each meter to its vocabulary id.
func (p *Poetry2Tokens) Meters2IDs() map[string]int {
	return tokensAt(p.meters, p.reservedIDs, p.meterOffset())
}

// Rhymes2Tokens maps each rhyme scheme to its reserved token.
func (p *Poetry2Tokens) Rhymes2Tokens() map[string]string {
	return tokensAt(p.rhymeSchemes, p.reserved, p.rhymeOffset())
}

// Rhymes2IDs maps each rhyme scheme to its vocabulary id.
func (p *Poetry2Tokens) Rhymes2IDs() map[string]int {
	return tokensAt(p.rhymeSchemes, p.reservedIDs, p.rhymeOffset())
}

// Labels2Tokens maps a task's label set ("meter", "rhyme" or "alliteration")
// to reserved tokens, or nil for an unknown task.
func (p *Poetry2Tokens) Labels2Tokens(task string) map[string]string {
	switch task {
	case "meter":
		return p.Meters2Tokens()
	case "rhyme":
		return p.Rhymes2Tokens()
	case "alliteration":
		return p.Alliterations2Tokens()
	default:
		return nil
	}
}

// Labels2IDs maps a task's label set to vocabulary ids, or nil for an unknown task.
func (p *Poetry2Tokens) Labels2IDs(task string) map[string]int {
	switch task {
	case "meter":
		return p.Meters2IDs()
	case "rhyme":
		return p.Rhymes2IDs()
	case "alliteration":
		return p.Alliterations2IDs()
	default:
		return nil
	}
}

func tokensAt[T string | int](labels []string, pool []T, offset int) map[string]T {
	m := make(map[string]T, len(labels))
	for i, label := range labels {
		m[label] = pool[offset+i]
	}
	return m
}
