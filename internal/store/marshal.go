package store

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/klauspost/compress/zstd"

	"github.com/yautze/cube/internal/plan"
)

// EncodeAll and DecodeAll are safe for concurrent use on shared coders.
var (
	encoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	decoder, _ = zstd.NewReader(nil)
)

// encodePlan returns the compressed canonical JSON of e and its content
// hash.
func encodePlan(e *plan.Expr, domain func(*plan.Expr) (string, error)) ([]byte, string, error) {
	data, err := plan.MarshalCanonical(e)
	if err != nil {
		return nil, "", fmt.Errorf("marshal plan: %w", err)
	}
	hash, err := domain(e)
	if err != nil {
		return nil, "", fmt.Errorf("hash plan: %w", err)
	}
	return encoder.EncodeAll(data, nil), hash, nil
}

func decodePlan(blob []byte) (*plan.Expr, error) {
	data, err := decoder.DecodeAll(blob, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress plan: %w", err)
	}
	var e plan.Expr
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("unmarshal plan: %w", err)
	}
	return &e, nil
}

// marshalText encodes v as compact JSON TEXT without HTML escaping.
func marshalText(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return string(bytes.TrimSuffix(buf.Bytes(), []byte{'\n'})), nil
}

func unmarshalText(data string, v any) error {
	if data == "" {
		return nil
	}
	return json.Unmarshal([]byte(data), v)
}
