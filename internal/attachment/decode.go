// File path: internal/attachment/decode.go
package attachment

import (
	"errors"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

var errInvalidUTF8 = errors.New("payload is not valid UTF-8")

// Strategy is one text decoder in the fallback chain.
type Strategy struct {
	Name   string
	Decode func([]byte) (string, error)
}

// UTF8 accepts payloads that are already valid UTF-8.
var UTF8 = Strategy{
	Name: "utf-8",
	Decode: func(data []byte) (string, error) {
		if !utf8.Valid(data) {
			return "", errInvalidUTF8
		}
		return string(data), nil
	},
}

// Latin1 maps every byte to a code point and therefore accepts any payload.
var Latin1 = Strategy{
	Name: "latin-1",
	Decode: func(data []byte) (string, error) {
		out, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
		if err != nil {
			return "", err
		}
		return string(out), nil
	},
}

// DefaultStrategies returns UTF-8 followed by the Latin-1 fallback.
func DefaultStrategies() []Strategy {
	return []Strategy{UTF8, Latin1}
}
