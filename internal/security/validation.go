package security

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Body limits for untrusted request payloads.
const (
	DefaultMaxBodySize  = 256 << 10 // 256 KiB
	DefaultMaxJSONDepth = 16
)

// Validation errors.
var (
	ErrBodyTooLarge = errors.New("request body exceeds maximum size")
	ErrJSONTooDeep  = errors.New("JSON nesting exceeds maximum depth")
	ErrInvalidJSON  = errors.New("invalid JSON")
)

// ValidateBodySize checks that data holds at most limit bytes. A
// non-positive limit uses DefaultMaxBodySize.
func ValidateBodySize(data []byte, limit int) error {
	if limit <= 0 {
		limit = DefaultMaxBodySize
	}
	if len(data) > limit {
		return fmt.Errorf("%w: %d bytes (max %d)", ErrBodyTooLarge, len(data), limit)
	}
	return nil
}

// ValidateJSONDepth checks that data nests no deeper than limit levels.
// A non-positive limit uses DefaultMaxJSONDepth.
func ValidateJSONDepth(data []byte, limit int) error {
	if limit <= 0 {
		limit = DefaultMaxJSONDepth
	}
	if len(data) == 0 {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	depth := 0
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidJSON, err)
		}

		switch tok {
		case json.Delim('{'), json.Delim('['):
			depth++
			if depth > limit {
				return fmt.Errorf("%w: depth %d (max %d)", ErrJSONTooDeep, depth, limit)
			}
		case json.Delim('}'), json.Delim(']'):
			depth--
		}
	}
}

// DecodeJSON reads at most maxSize bytes from r, checks their nesting
// depth and decodes them into v. Unknown fields are rejected.
func DecodeJSON(r io.Reader, maxSize, maxDepth int, v any) error {
	if maxSize <= 0 {
		maxSize = DefaultMaxBodySize
	}
	data, err := io.ReadAll(io.LimitReader(r, int64(maxSize)+1))
	if err != nil {
		return fmt.Errorf("reading body: %w", err)
	}
	if err := ValidateBodySize(data, maxSize); err != nil {
		return err
	}
	if err := ValidateJSONDepth(data, maxDepth); err != nil {
		return err
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidJSON, err)
	}
	return nil
}
