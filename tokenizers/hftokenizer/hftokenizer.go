// Package hftokenizer implements a tokenizer for HuggingFace's tokenizer.json
// format (the "fast" tokenizers): WordPiece (BERT), byte-level BPE (GPT-2,
// RoBERTa) and Unigram models. Besides encoding and decoding it exposes the
// vocabulary's reserved placeholder tokens ("<extra_id_N>"), which the poetry
// label mapper repurposes as class tokens.
package hftokenizer

import (
	"encoding/json"
	"os"
	"regexp"
	"sort"
	"strconv"

	"github.com/pkg/errors"

	"github.com/verseml/poetics/tokenizers/api"
)

// TokenizerJSON mirrors the parts of a tokenizer.json file this package uses.
type TokenizerJSON struct {
	Version      string        `json:"version"`
	AddedTokens  []AddedToken  `json:"added_tokens"`
	Normalizer   *Normalizer   `json:"normalizer"`
	PreTokenizer *PreTokenizer `json:"pre_tokenizer"`
	Decoder      *Decoder      `json:"decoder"`
	Model        Model         `json:"model"`
}

// AddedToken is a token added on top of the base vocabulary.
type AddedToken struct {
	ID      int    `json:"id"`
	Content string `json:"content"`
	Special bool   `json:"special"`
}

// Normalizer configures text normalization before pre-tokenization.
type Normalizer struct {
	Type        string       `json:"type"`
	Lowercase   bool         `json:"lowercase"`
	Pattern     *Pattern     `json:"pattern"`
	Content     string       `json:"content"`
	Normalizers []Normalizer `json:"normalizers"`
}

// Pattern for string/regex based normalizer operations.
type Pattern struct {
	Regex  string `json:"Regex,omitempty"`
	String string `json:"String,omitempty"`
}

// PreTokenizer configures how normalized text splits into words.
type PreTokenizer struct {
	Type           string         `json:"type"`
	AddPrefixSpace bool           `json:"add_prefix_space"`
	PreTokenizers  []PreTokenizer `json:"pretokenizers"`
}

// Decoder configures how tokens are joined back into text.
type Decoder struct {
	Type     string    `json:"type"`
	Prefix   string    `json:"prefix"`
	Suffix   string    `json:"suffix"`
	Decoders []Decoder `json:"decoders"`
}

// Model is the tokenizer model proper: vocabulary plus algorithm parameters.
type Model struct {
	Type                    string         `json:"type"`
	Vocab                   map[string]int `json:"vocab"`
	Merges                  []string       `json:"merges"`
	UnkToken                string         `json:"unk_token"`
	ContinuingSubwordPrefix string         `json:"continuing_subword_prefix"`
	MaxInputCharsPerWord    int            `json:"max_input_chars_per_word"`
	EndOfWordSuffix         string         `json:"end_of_word_suffix"`
}

// Tokenizer implements the api.Tokenizer interface for tokenizer.json files.
type Tokenizer struct {
	config    *api.Config
	tokenizer *TokenizerJSON

	idToToken  map[int]string
	mergeRanks map[string]int // for BPE: "left right" -> merge priority

	// Resolved special token ids, -1 when absent.
	unkID, padID, bosID, eosID, clsID, sepID, maskID int

	// addedTokens maps added-token content to id.
	addedTokens map[string]int

	// additional is the reserved placeholder block, ordered.
	additional []string
}

// Compile time assert that Tokenizer implements api.Tokenizer interface.
var _ api.Tokenizer = &Tokenizer{}

// NewFromFile creates a tokenizer from a local tokenizer.json file path.
func NewFromFile(config *api.Config, filePath string) (*Tokenizer, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read tokenizer.json file %q", filePath)
	}
	return NewFromContent(config, content)
}

// NewFromContent creates a tokenizer from tokenizer.json content.
func NewFromContent(config *api.Config, content []byte) (*Tokenizer, error) {
	var tj TokenizerJSON
	if err := json.Unmarshal(content, &tj); err != nil {
		return nil, errors.Wrap(err, "failed to parse tokenizer.json")
	}

	t := &Tokenizer{
		config:      config,
		tokenizer:   &tj,
		idToToken:   make(map[int]string, len(tj.Model.Vocab)+len(tj.AddedTokens)),
		addedTokens: make(map[string]int, len(tj.AddedTokens)),
		unkID:       -1,
		padID:       -1,
		bosID:       -1,
		eosID:       -1,
		clsID:       -1,
		sepID:       -1,
		maskID:      -1,
	}
	for token, id := range tj.Model.Vocab {
		t.idToToken[id] = token
	}
	for _, at := range tj.AddedTokens {
		t.addedTokens[at.Content] = at.ID
		t.idToToken[at.ID] = at.Content
	}
	if tj.Model.Type == "BPE" {
		t.mergeRanks = make(map[string]int, len(tj.Model.Merges))
		for rank, merge := range tj.Model.Merges {
			t.mergeRanks[merge] = rank
		}
	}

	t.resolveSpecialTokens()
	t.resolveAdditionalSpecialTokens()
	return t, nil
}

// resolveSpecialTokens maps the named special tokens to their ids, using the
// model's own declarations first and the tokenizer config as fallback.
func (t *Tokenizer) resolveSpecialTokens() {
	if unk := t.tokenizer.Model.UnkToken; unk != "" {
		if id, ok := t.TokenToID(unk); ok {
			t.unkID = id
		}
	}

	for _, at := range t.tokenizer.AddedTokens {
		if !at.Special {
			continue
		}
		switch at.Content {
		case "[UNK]", "<unk>":
			t.unkID = at.ID
		case "[PAD]", "<pad>":
			t.padID = at.ID
		case "[CLS]", "<s>":
			t.clsID = at.ID
		case "[SEP]", "</s>":
			t.sepID = at.ID
		case "[MASK]", "<mask>":
			t.maskID = at.ID
		}
		if t.config != nil {
			if at.Content == t.config.BosToken {
				t.bosID = at.ID
			}
			if at.Content == t.config.EosToken {
				t.eosID = at.ID
			}
		}
	}

	if t.config == nil {
		return
	}
	resolve := func(current *int, token string) {
		if *current >= 0 || token == "" {
			return
		}
		if id, ok := t.TokenToID(token); ok {
			*current = id
		}
	}
	resolve(&t.unkID, t.config.UnkToken)
	resolve(&t.padID, t.config.PadToken)
	resolve(&t.clsID, t.config.ClsToken)
	resolve(&t.sepID, t.config.SepToken)
	resolve(&t.maskID, t.config.MaskToken)
	resolve(&t.bosID, t.config.BosToken)
	resolve(&t.eosID, t.config.EosToken)
}

var extraIDRe = regexp.MustCompile(`^<extra_id_(\d+)>$`)

// resolveAdditionalSpecialTokens collects the reserved placeholder block: the
// special added tokens that aren't one of the named special tokens. Tokens of
// the "<extra_id_N>" family are ordered by N, matching how model cards list
// them; anything else is ordered by vocabulary id.
func (t *Tokenizer) resolveAdditionalSpecialTokens() {
	named := map[int]bool{
		t.unkID: true, t.padID: true, t.bosID: true, t.eosID: true,
		t.clsID: true, t.sepID: true, t.maskID: true,
	}
	type reserved struct {
		token string
		id    int
		extra int // extra_id index, or -1
	}
	var block []reserved
	allExtra := true
	for _, at := range t.tokenizer.AddedTokens {
		if !at.Special || named[at.ID] {
			continue
		}
		r := reserved{token: at.Content, id: at.ID, extra: -1}
		if m := extraIDRe.FindStringSubmatch(at.Content); m != nil {
			r.extra, _ = strconv.Atoi(m[1])
		} else {
			allExtra = false
		}
		block = append(block, r)
	}
	sort.Slice(block, func(i, j int) bool {
		if allExtra {
			return block[i].extra < block[j].extra
		}
		return block[i].id < block[j].id
	})
	t.additional = make([]string, len(block))
	for i, r := range block {
		t.additional[i] = r.token
	}
}

// AdditionalSpecialTokens implements api.Tokenizer.
func (t *Tokenizer) AdditionalSpecialTokens() []string {
	out := make([]string, len(t.additional))
	copy(out, t.additional)
	return out
}

// SpecialTokenID implements api.Tokenizer. BOS falls back to CLS and EOS to
// SEP for BERT-style models.
func (t *Tokenizer) SpecialTokenID(token api.SpecialToken) (int, error) {
	candidates := [...][2]int{
		api.TokUnknown:             {t.unkID, -1},
		api.TokPad:                 {t.padID, -1},
		api.TokBeginningOfSentence: {t.bosID, t.clsID},
		api.TokEndOfSentence:       {t.eosID, t.sepID},
		api.TokMask:                {t.maskID, -1},
		api.TokClassification:      {t.clsID, -1},
	}
	if int(token) < len(candidates) {
		for _, id := range candidates[token] {
			if id >= 0 {
				return id, nil
			}
		}
	}
	return 0, errors.Errorf("special token %s not found", token)
}

// TokenToID implements api.Tokenizer.
func (t *Tokenizer) TokenToID(token string) (int, bool) {
	if id, ok := t.addedTokens[token]; ok {
		return id, true
	}
	id, ok := t.tokenizer.Model.Vocab[token]
	return id, ok
}

// IDToToken converts a token id to its string.
func (t *Tokenizer) IDToToken(id int) (string, bool) {
	token, ok := t.idToToken[id]
	return token, ok
}

// VocabSize returns the size of the vocabulary, added tokens included.
func (t *Tokenizer) VocabSize() int {
	return len(t.tokenizer.Model.Vocab) + len(t.tokenizer.AddedTokens)
}
