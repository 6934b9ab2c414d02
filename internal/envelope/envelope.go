// Package envelope implements the fixed JSON contract every agent emits:
// {"message", "additional_context", "attachments"}. Model output is
// untrusted input here: decoding is strict (unknown fields reject the
// envelope, attachment fields are an allow-list) while extraction is
// forgiving (code fences and surrounding prose are tolerated). A decode
// failure is a recoverable condition for the agent shell, never a reason
// to corrupt previously established state.
package envelope

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"cinechat/internal/types"
)

// Envelope is the externally visible contract of one agent invocation.
type Envelope struct {
	// Message is the user-visible reply.
	Message string `json:"message"`
	// AdditionalContext is the serialized context thread, or null when
	// the agent carries no state forward.
	AdditionalContext *string `json:"additional_context"`
	// Attachments is the bounded list of renderable items, or null for
	// agents that never emit them.
	Attachments []types.Attachment `json:"attachments"`
}

var validate = validator.New()

// Decode parses raw model output into an envelope. It tries, in order:
// the whole trimmed text, the text with markdown fences stripped, then
// every balanced top-level JSON object found in the text. Unknown fields
// anywhere in the payload invalidate that candidate. Attachments beyond
// the cap are cut; attachments failing the allow-list validation are
// dropped individually.
func Decode(raw string) (*Envelope, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("empty response")
	}

	candidates := []string{trimmed}
	if unfenced := stripFences(trimmed); unfenced != trimmed {
		candidates = append(candidates, unfenced)
	}
	candidates = append(candidates, extractObjects(trimmed)...)

	var lastErr error
	for _, cand := range candidates {
		env, err := decodeStrict(cand)
		if err != nil {
			lastErr = err
			continue
		}
		env.sanitizeAttachments()
		return env, nil
	}
	return nil, fmt.Errorf("no valid envelope in response: %w", lastErr)
}

// Encode serializes an envelope back to its wire form.
func (e *Envelope) Encode() (string, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("failed to marshal envelope: %w", err)
	}
	return string(data), nil
}

func decodeStrict(s string) (*Envelope, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.DisallowUnknownFields()

	var env Envelope
	if err := dec.Decode(&env); err != nil {
		return nil, err
	}
	// Trailing non-whitespace after the object means this was not a
	// standalone envelope.
	if dec.More() {
		return nil, fmt.Errorf("trailing content after envelope")
	}
	return &env, nil
}

// sanitizeAttachments enforces the cap and the per-attachment allow-list.
func (e *Envelope) sanitizeAttachments() {
	if e.Attachments == nil {
		return
	}
	if len(e.Attachments) > types.MaxAttachments {
		e.Attachments = e.Attachments[:types.MaxAttachments]
	}
	kept := e.Attachments[:0]
	for _, a := range e.Attachments {
		if err := validate.Struct(a); err != nil {
			continue
		}
		kept = append(kept, a)
	}
	e.Attachments = kept
}

// extractObjects returns every balanced top-level JSON object embedded
// in s. Models wrap their envelope in prose often enough that regex
// extraction is unreliable; brace matching with string-literal skipping
// is exact. Byte iteration is fine because the delimiters are ASCII and
// UTF-8 never embeds ASCII bytes in multi-byte sequences.
func extractObjects(s string) []string {
	var objs []string
	for i := 0; i < len(s); i++ {
		if s[i] != '{' {
			continue
		}
		end := closingBrace(s, i)
		if end < 0 {
			break
		}
		objs = append(objs, s[i:end+1])
		i = end
	}
	return objs
}

// closingBrace returns the index of the brace matching the one at open,
// or -1 when the input ends before the object closes.
func closingBrace(s string, open int) int {
	depth := 0
	for i := open; i < len(s); i++ {
		switch s[i] {
		case '"':
			i = stringEnd(s, i)
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// stringEnd returns the index of the quote closing the JSON string
// literal opening at start. An unterminated literal consumes the rest of
// the input, which then fails the balance check in closingBrace.
func stringEnd(s string, start int) int {
	for i := start + 1; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case '"':
			return i
		}
	}
	return len(s)
}

// stripFences removes a ```json ... ``` (or bare ```) wrapper.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	for _, prefix := range []string{"```json", "```JSON", "```"} {
		if strings.HasPrefix(s, prefix) {
			s = strings.TrimPrefix(s, prefix)
			break
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
