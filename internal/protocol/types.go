package protocol

// CheckRequest is the caller input for a grammar check. Only the text up to the
// first newline reaches the worker.
type CheckRequest struct {
	Text string `json:"text"`
}

// CheckResult is one decoded grammar worker response line.
type CheckResult struct {
	Text string    `json:"text"`
	Errs []Finding `json:"errs"`
}

// Finding is one flagged span of the checked text. Offsets are character
// offsets into the text the worker received.
type Finding struct {
	ErrorText   string   `json:"error_text"`
	StartIndex  uint32   `json:"start_index"`
	EndIndex    uint32   `json:"end_index"`
	ErrorCode   string   `json:"error_code"`
	Description string   `json:"description"`
	Suggestions []string `json:"suggestions"`
	Title       string   `json:"title"`
}

// SpellRequest asks a speller worker about a single word.
type SpellRequest struct {
	Word string `json:"word"`
}

// SpellResult is one decoded speller worker response line.
type SpellResult struct {
	Word        string   `json:"word"`
	IsCorrect   bool     `json:"is_correct"`
	Suggestions []string `json:"suggestions"`
}

// Codec translates between a request/result pair and the worker's line format.
type Codec[Req, Res any] interface {
	Encode(req Req) string
	Decode(line string) (Res, error)
}

// GrammarCodec is the Codec for grammar checker workers.
type GrammarCodec struct{}

func (GrammarCodec) Encode(req CheckRequest) string { return EncodeRequest(req) }

func (GrammarCodec) Decode(line string) (*CheckResult, error) { return DecodeResult(line) }

// SpellerCodec is the Codec for speller workers.
type SpellerCodec struct{}

func (SpellerCodec) Encode(req SpellRequest) string { return EncodeSpellRequest(req) }

func (SpellerCodec) Decode(line string) (*SpellResult, error) { return DecodeSpellResult(line) }
