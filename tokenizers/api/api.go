// Package api defines the Tokenizer API.
// It's split from the implementations to break cyclic dependencies, and to allow
// callers to depend on the contract without pulling in any tokenizer backend.
package api

// Tokenizer converts text to "tokens" (integer ids) and back.
//
// It also maps special tokens: tokens with a common semantic (like padding) but that
// may map to different ids (int) for different tokenizers.
type Tokenizer interface {
	Encode(text string) []int
	Decode([]int) string

	// SpecialTokenID returns ID for given special token if registered, or an error if not.
	SpecialTokenID(token SpecialToken) (int, error)

	// TokenToID converts a token string to its id. The second result is false if the
	// token is not part of the vocabulary.
	TokenToID(token string) (int, bool)

	// AdditionalSpecialTokens returns the reserved placeholder tokens of the
	// vocabulary ("<extra_id_0>", "<extra_id_1>", ...), in vocabulary order.
	// These are the slots available for repurposing as task labels.
	AdditionalSpecialTokens() []string
}

// Config holds the special-token configuration usually found in a model's
// tokenizer_config.json. Any field may be empty.
type Config struct {
	BosToken  string `json:"bos_token"`
	EosToken  string `json:"eos_token"`
	UnkToken  string `json:"unk_token"`
	PadToken  string `json:"pad_token"`
	MaskToken string `json:"mask_token"`
	ClsToken  string `json:"cls_token"`
	SepToken  string `json:"sep_token"`
}

// SpecialToken is an enum of commonly used special tokens.
type SpecialToken int

const (
	TokBeginningOfSentence SpecialToken = iota
	TokEndOfSentence
	TokUnknown
	TokPad
	TokMask
	TokClassification
	TokSpecialTokensCount
)

var specialTokenNames = [TokSpecialTokensCount]string{
	"beginning_of_sentence", "end_of_sentence", "unknown", "pad", "mask", "classification",
}

// String implements fmt.Stringer.
func (s SpecialToken) String() string {
	if s < 0 || s >= TokSpecialTokensCount {
		return "invalid_special_token"
	}
	return specialTokenNames[s]
}
