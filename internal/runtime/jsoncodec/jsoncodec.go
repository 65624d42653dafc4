// Package jsoncodec is the JSON codec used for message bodies and engine
// metadata. It is backed by sonic in its encoding/json compatible mode.
package jsoncodec

import (
	"github.com/bytedance/sonic"
)

var defaultConfig = sonic.ConfigStd

func Marshal(v any) ([]byte, error) {
	return defaultConfig.Marshal(v)
}

func Unmarshal(data []byte, v any) error {
	return defaultConfig.Unmarshal(data, v)
}

// Valid reports whether data is a syntactically valid JSON document.
func Valid(data []byte) bool {
	return defaultConfig.Valid(data)
}

// DecodeValue parses data into the generic representation produced by
// encoding/json: maps, slices, float64, string, bool or nil.
func DecodeValue(data []byte) (any, error) {
	var v any
	if err := defaultConfig.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}
