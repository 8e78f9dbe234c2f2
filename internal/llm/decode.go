package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// QuestionPayload is the structured contract for interview progression.
// Question is empty when IsComplete is true.
type QuestionPayload struct {
	Question   string `json:"question"`
	IsComplete bool   `json:"is_complete"`
	Reasoning  string `json:"reasoning"`
}

// decodeQuestionPayload decodes the model's structured response. The
// contract is decode-or-reject with a single repair strategy: strip one
// markdown code fence and unwrap one level of {"response": {...}} nesting,
// then give up. Anything else is a hard error the caller surfaces.
func decodeQuestionPayload(raw string) (*QuestionPayload, error) {
	cleaned := stripCodeFence(strings.TrimSpace(raw))

	payload, err := tryDecode(cleaned)
	if err == nil {
		return payload, nil
	}

	// Repair pass: some models wrap the object in an envelope.
	var envelope struct {
		Response json.RawMessage `json:"response"`
	}
	if jsonErr := json.Unmarshal([]byte(cleaned), &envelope); jsonErr == nil && len(envelope.Response) > 0 {
		if payload, repairErr := tryDecode(string(envelope.Response)); repairErr == nil {
			return payload, nil
		}
	}

	return nil, fmt.Errorf("question payload does not match contract: %w", err)
}

func tryDecode(s string) (*QuestionPayload, error) {
	var payload QuestionPayload
	dec := json.NewDecoder(strings.NewReader(s))
	if err := dec.Decode(&payload); err != nil {
		return nil, err
	}

	if !payload.IsComplete && payload.Question == "" {
		return nil, fmt.Errorf("incomplete payload: no question and not complete")
	}

	return &payload, nil
}

func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}

	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
