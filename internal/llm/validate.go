package llm

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strconv"
	"strings"
)

// Reply keys accepted in the model's JSON. "response" is what the
// prompt asks for; "reply_text" is tolerated.
var replyKeys = []string{"response", "reply_text"}

// Validate parses raw model text into a [Result]. It accepts exactly
// one JSON object, optionally wrapped in a single ``` fenced block,
// with a non-empty reply string. A missing "extracted" defaults to an
// empty map and a missing "is_complete" to false. Every failure is a
// [*MalformedResponseError].
func Validate(raw string) (*Result, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return nil, &MalformedResponseError{Reason: "empty response"}
	}
	text = stripFence(text)

	obj, err := decodeObject(text)
	if err != nil {
		return nil, err
	}

	reply, err := replyText(obj)
	if err != nil {
		return nil, err
	}

	res := &Result{Reply: reply, Extracted: map[string]string{}}

	if rawExtracted, ok := obj["extracted"]; ok && !isNull(rawExtracted) {
		res.Extracted, err = decodeExtracted(rawExtracted)
		if err != nil {
			return nil, err
		}
	}

	if rawComplete, ok := obj["is_complete"]; ok && !isNull(rawComplete) {
		if err := json.Unmarshal(rawComplete, &res.IsComplete); err != nil {
			return nil, &MalformedResponseError{Reason: `"is_complete" is not a boolean`, Err: err}
		}
	}

	return res, nil
}

// stripFence removes one markdown code fence wrapping text: a first
// line starting with ``` (with or without a language tag) and a last
// line consisting of ```.
func stripFence(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}
	lines := strings.Split(text, "\n")
	lines = lines[1:]
	if n := len(lines); n > 0 && strings.TrimSpace(lines[n-1]) == "```" {
		lines = lines[:n-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func decodeObject(text string) (map[string]json.RawMessage, error) {
	dec := json.NewDecoder(strings.NewReader(text))
	var obj map[string]json.RawMessage
	if err := dec.Decode(&obj); err != nil {
		return nil, &MalformedResponseError{Reason: "not a JSON object", Err: err}
	}
	if obj == nil {
		return nil, &MalformedResponseError{Reason: "not a JSON object"}
	}
	// Exactly one value: anything after the object is off-contract.
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, &MalformedResponseError{Reason: "trailing data after JSON object"}
	}
	return obj, nil
}

func replyText(obj map[string]json.RawMessage) (string, error) {
	for _, key := range replyKeys {
		raw, ok := obj[key]
		if !ok || isNull(raw) {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", &MalformedResponseError{Reason: strconv.Quote(key) + " is not a string", Err: err}
		}
		if strings.TrimSpace(s) == "" {
			return "", &MalformedResponseError{Reason: "empty " + strconv.Quote(key) + " field"}
		}
		return s, nil
	}
	return "", &MalformedResponseError{Reason: `missing "response" field`}
}

// decodeExtracted flattens the extracted object to strings. Null values
// are dropped; numbers and booleans keep their JSON spelling; nested
// values are kept as compact JSON.
func decodeExtracted(raw json.RawMessage) (map[string]string, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, &MalformedResponseError{Reason: `"extracted" is not an object`, Err: err}
	}
	out := make(map[string]string, len(fields))
	for k, v := range fields {
		if isNull(v) {
			continue
		}
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			out[k] = s
			continue
		}
		var buf bytes.Buffer
		if err := json.Compact(&buf, v); err != nil {
			return nil, &MalformedResponseError{Reason: "bad extracted value for " + strconv.Quote(k), Err: err}
		}
		out[k] = buf.String()
	}
	return out, nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
