package models

import (
	"bytes"
	"encoding/json"
)

// members decodes a JSON object into its raw members. A JSON null yields a
// nil map.
func members(data []byte) (map[string]json.RawMessage, error) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// mergeMembers encodes typed on top of the members src was decoded from.
// Members named in known follow the typed value: they are written when typed
// carries them and otherwise survive only if the source sent them empty, so
// an explicit null stays null and an absent member stays absent. Every other
// source member is passed through unchanged.
func mergeMembers(src map[string]json.RawMessage, known []string, typed any) ([]byte, error) {
	enc, err := json.Marshal(typed)
	if err != nil || len(src) == 0 {
		return enc, err
	}
	cur, err := members(enc)
	if err != nil {
		return nil, err
	}

	out := make(map[string]json.RawMessage, len(src)+len(cur))
	for k, v := range src {
		out[k] = v
	}
	for _, k := range known {
		if v, ok := cur[k]; ok {
			out[k] = v
		} else if v, ok := src[k]; ok && !emptyJSON(v) {
			delete(out, k)
		}
	}
	return json.Marshal(out)
}

func emptyJSON(v json.RawMessage) bool {
	switch string(bytes.TrimSpace(v)) {
	case "null", `""`, "{}", "[]":
		return true
	}
	return false
}
