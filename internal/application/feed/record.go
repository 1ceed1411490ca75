package feed

import "encoding/json"

// JSONRecord is a Record backed by a JSON document.
type JSONRecord []byte

func (r JSONRecord) Decode(v any) error { return json.Unmarshal(r, v) }
