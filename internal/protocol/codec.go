package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// DecodeError reports a worker response line that is not a valid payload.
// The raw line is kept for diagnostics.
type DecodeError struct {
	RawLine string
	Cause   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("invalid worker response %q: %v", e.RawLine, e.Cause)
}

func (e *DecodeError) Unwrap() error { return e.Cause }

// EncodeRequest returns the wire line for req: the text up to, but not
// including, the first newline. The trailing newline is added by the writer.
func EncodeRequest(req CheckRequest) string {
	return firstLine(req.Text)
}

// EncodeSpellRequest returns the wire line for a speller request.
func EncodeSpellRequest(req SpellRequest) string {
	return firstLine(req.Word)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSuffix(s, "\r")
}

type wireResult struct {
	Text *string            `json:"text"`
	Errs *[]json.RawMessage `json:"errs"`
}

// DecodeResult parses one grammar worker response line.
// Each finding is a tuple: [text, start, end, code, description, [suggestions], title].
// The trailing title element may be omitted by older workers.
func DecodeResult(line string) (*CheckResult, error) {
	var wire wireResult
	if err := decodeLine(line, &wire); err != nil {
		return nil, &DecodeError{RawLine: line, Cause: err}
	}
	if wire.Text == nil {
		return nil, &DecodeError{RawLine: line, Cause: errors.New("response missing required field: text")}
	}
	if wire.Errs == nil {
		return nil, &DecodeError{RawLine: line, Cause: errors.New("response missing required field: errs")}
	}

	result := &CheckResult{
		Text: *wire.Text,
		Errs: make([]Finding, 0, len(*wire.Errs)),
	}
	for i, raw := range *wire.Errs {
		f, err := decodeFinding(raw)
		if err != nil {
			return nil, &DecodeError{RawLine: line, Cause: fmt.Errorf("errs[%d]: %w", i, err)}
		}
		result.Errs = append(result.Errs, f)
	}
	return result, nil
}

func decodeFinding(raw json.RawMessage) (Finding, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(raw, &parts); err != nil {
		return Finding{}, fmt.Errorf("finding is not an array: %w", err)
	}
	if len(parts) != 6 && len(parts) != 7 {
		return Finding{}, fmt.Errorf("finding has %d elements (want 6 or 7)", len(parts))
	}

	var f Finding
	targets := []struct {
		name string
		dst  any
	}{
		{"error_text", &f.ErrorText},
		{"start_index", &f.StartIndex},
		{"end_index", &f.EndIndex},
		{"error_code", &f.ErrorCode},
		{"description", &f.Description},
		{"suggestions", &f.Suggestions},
		{"title", &f.Title},
	}
	for i, part := range parts {
		if bytes.Equal(bytes.TrimSpace(part), []byte("null")) {
			return Finding{}, fmt.Errorf("%s is null", targets[i].name)
		}
		if err := json.Unmarshal(part, targets[i].dst); err != nil {
			return Finding{}, fmt.Errorf("%s: %w", targets[i].name, err)
		}
	}
	if f.Suggestions == nil {
		f.Suggestions = []string{}
	}
	return f, nil
}

type wireSpellResult struct {
	Word        *string  `json:"word"`
	IsCorrect   bool     `json:"is_correct"`
	Suggestions []string `json:"suggestions"`
}

// DecodeSpellResult parses one speller worker response line.
func DecodeSpellResult(line string) (*SpellResult, error) {
	var wire wireSpellResult
	if err := decodeLine(line, &wire); err != nil {
		return nil, &DecodeError{RawLine: line, Cause: err}
	}
	if wire.Word == nil {
		return nil, &DecodeError{RawLine: line, Cause: errors.New("response missing required field: word")}
	}
	if wire.Suggestions == nil {
		wire.Suggestions = []string{}
	}
	return &SpellResult{
		Word:        *wire.Word,
		IsCorrect:   wire.IsCorrect,
		Suggestions: wire.Suggestions,
	}, nil
}

// decodeLine decodes exactly one JSON value from line. Empty lines and
// trailing data are rejected.
func decodeLine(line string, v any) error {
	if strings.TrimSpace(line) == "" {
		return errors.New("empty response line")
	}
	dec := json.NewDecoder(strings.NewReader(line))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errors.New("unexpected data after response payload")
	}
	return nil
}
