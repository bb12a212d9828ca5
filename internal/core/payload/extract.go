// Package payload turns raw bus message bodies into numeric readings.
package payload

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

var errNotFinite = errors.New("not a finite number")

// Extract reads a single number from body. With an empty path the whole body
// must be a number; otherwise body is a JSON document and path selects the leaf.
func Extract(body []byte, path []string) (float64, error) {
	if !utf8.Valid(body) {
		return 0, &DecodeError{Err: errors.New("invalid utf-8")}
	}
	if len(path) == 0 {
		return parseReading(string(body))
	}
	doc, err := Decode(body)
	if err != nil {
		return 0, err
	}
	leaf, err := doc.Lookup(path)
	if err != nil {
		return 0, err
	}
	return leaf.Float()
}

func parseReading(text string) (float64, error) {
	trimmed := strings.TrimSpace(text)
	f, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		var numErr *strconv.NumError
		if errors.As(err, &numErr) {
			err = numErr.Err
		}
		return 0, &FormatError{Text: text, Err: err}
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, &FormatError{Text: text, Err: errNotFinite}
	}
	return f, nil
}
