// Package jsoncodec funnels all JSON encoding through sonic so the codec
// can be swapped in one place.
package jsoncodec

import "github.com/bytedance/sonic"

func Marshal(v any) ([]byte, error) {
	return sonic.Marshal(v)
}

func Unmarshal(data []byte, v any) error {
	return sonic.Unmarshal(data, v)
}

// UnmarshalString decodes a JSON document carried as a string field,
// the way the control protocol nests rtpParameters and dtlsParameters.
func UnmarshalString(data string, v any) error {
	return sonic.UnmarshalString(data, v)
}

func MarshalString(v any) (string, error) {
	return sonic.MarshalString(v)
}
