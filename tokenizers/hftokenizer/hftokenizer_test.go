package hftokenizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verseml/poetics/tokenizers/api"
)

// bertTokenizerJSON is a minimal WordPiece tokenizer.json in the shape BERT
// models ship. The reserved placeholders are deliberately declared out of
// order to exercise the extra_id sorting.
const bertTokenizerJSON = `{
  "version": "1.0",
  "added_tokens": [
    {"id": 0, "content": "[UNK]", "special": true},
    {"id": 1, "content": "[PAD]", "special": true},
    {"id": 2, "content": "[CLS]", "special": true},
    {"id": 3, "content": "[SEP]", "special": true},
    {"id": 4, "content": "[MASK]", "special": true},
    {"id": 7, "content": "<extra_id_2>", "special": true},
    {"id": 5, "content": "<extra_id_0>", "special": true},
    {"id": 8, "content": "<extra_id_3>", "special": true},
    {"id": 6, "content": "<extra_id_1>", "special": true}
  ],
  "normalizer": {"type": "BertNormalizer", "lowercase": true},
  "pre_tokenizer": {"type": "BertPreTokenizer"},
  "decoder": {"type": "WordPiece", "prefix": "##"},
  "model": {
    "type": "WordPiece",
    "unk_token": "[UNK]",
    "continuing_subword_prefix": "##",
    "vocab": {
      "the": 10, "sing": 11, "##ing": 12, "night": 13, "!": 14,
      "over": 15, "##s": 16
    }
  }
}`

func newBertTokenizer(t *testing.T) *Tokenizer {
	t.Helper()
	tokenizer, err := NewFromContent(nil, []byte(bertTokenizerJSON))
	require.NoError(t, err)
	return tokenizer
}

func TestWordPieceEncode(t *testing.T) {
	tokenizer := newBertTokenizer(t)

	// Lowercased, punctuation isolated, "singing" split into sub-words.
	assert.Equal(t, []int{10, 11, 12, 13, 14}, tokenizer.Encode("The singing night!"))

	// A word with no vocabulary cover collapses to [UNK].
	assert.Equal(t, []int{0, 13}, tokenizer.Encode("moonlit night"))
}

func TestWordPieceDecode(t *testing.T) {
	tokenizer := newBertTokenizer(t)
	assert.Equal(t, "the singing night !", tokenizer.Decode([]int{10, 11, 12, 13, 14}))
	// Unknown ids are dropped.
	assert.Equal(t, "night", tokenizer.Decode([]int{9999, 13}))
}

func TestAdditionalSpecialTokensOrderedByExtraID(t *testing.T) {
	tokenizer := newBertTokenizer(t)
	assert.Equal(t,
		[]string{"<extra_id_0>", "<extra_id_1>", "<extra_id_2>", "<extra_id_3>"},
		tokenizer.AdditionalSpecialTokens())

	id, ok := tokenizer.TokenToID("<extra_id_2>")
	require.True(t, ok)
	assert.Equal(t, 7, id)
}

func TestSpecialTokenIDs(t *testing.T) {
	tokenizer := newBertTokenizer(t)

	unk, err := tokenizer.SpecialTokenID(api.TokUnknown)
	require.NoError(t, err)
	assert.Equal(t, 0, unk)

	pad, err := tokenizer.SpecialTokenID(api.TokPad)
	require.NoError(t, err)
	assert.Equal(t, 1, pad)

	// BERT has no BOS/EOS of its own; they fall back to [CLS]/[SEP].
	bos, err := tokenizer.SpecialTokenID(api.TokBeginningOfSentence)
	require.NoError(t, err)
	assert.Equal(t, 2, bos)

	eos, err := tokenizer.SpecialTokenID(api.TokEndOfSentence)
	require.NoError(t, err)
	assert.Equal(t, 3, eos)
}

func TestConfigResolvesSpecialTokens(t *testing.T) {
	config := &api.Config{BosToken: "[CLS]", EosToken: "[SEP]"}
	tokenizer, err := NewFromContent(config, []byte(bertTokenizerJSON))
	require.NoError(t, err)

	bos, err := tokenizer.SpecialTokenID(api.TokBeginningOfSentence)
	require.NoError(t, err)
	assert.Equal(t, 2, bos)
}

func TestVocabSize(t *testing.T) {
	tokenizer := newBertTokenizer(t)
	assert.Equal(t, 7+9, tokenizer.VocabSize())

	token, ok := tokenizer.IDToToken(12)
	require.True(t, ok)
	assert.Equal(t, "##ing", token)
	_, ok = tokenizer.IDToToken(9999)
	assert.False(t, ok)
}

// gpt2TokenizerJSON is a minimal byte-level BPE tokenizer.json.
const gpt2TokenizerJSON = `{
  "added_tokens": [
    {"id": 0, "content": "<unk>", "special": true}
  ],
  "pre_tokenizer": {"type": "ByteLevel", "add_prefix_space": false},
  "decoder": {"type": "ByteLevel"},
  "model": {
    "type": "BPE",
    "unk_token": "<unk>",
    "vocab": {"hello": 20, "Ġworld": 21},
    "merges": [
      "h e", "he l", "hel l", "hell o",
      "Ġ w", "Ġw o", "Ġwo r", "Ġwor l", "Ġworl d"
    ]
  }
}`

func TestByteLevelBPERoundTrip(t *testing.T) {
	tokenizer, err := NewFromContent(nil, []byte(gpt2TokenizerJSON))
	require.NoError(t, err)

	ids := tokenizer.Encode("hello world")
	assert.Equal(t, []int{20, 21}, ids)
	assert.Equal(t, "hello world", tokenizer.Decode(ids))
}

// t5TokenizerJSON is a minimal Unigram tokenizer.json with metaspace handling.
const t5TokenizerJSON = `{
  "added_tokens": [
    {"id": 0, "content": "<unk>", "special": true},
    {"id": 1, "content": "</s>", "special": true}
  ],
  "pre_tokenizer": {"type": "Metaspace", "add_prefix_space": true},
  "decoder": {"type": "Metaspace"},
  "model": {
    "type": "Unigram",
    "unk_token": "<unk>",
    "vocab": {"▁hello": 5, "▁wor": 6, "ld": 7}
  }
}`

func TestUnigramMetaspaceRoundTrip(t *testing.T) {
	tokenizer, err := NewFromContent(nil, []byte(t5TokenizerJSON))
	require.NoError(t, err)

	ids := tokenizer.Encode("hello world")
	assert.Equal(t, []int{5, 6, 7}, ids)
	assert.Equal(t, "hello world", tokenizer.Decode(ids))
}

func TestNewFromContentRejectsBadJSON(t *testing.T) {
	_, err := NewFromContent(nil, []byte("{not json"))
	require.Error(t, err)
}
