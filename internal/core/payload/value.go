package payload

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
)

type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindObject
	KindArray
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindObject:
		return "object"
	case KindArray:
		return "array"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Value is a decoded JSON document. Numbers keep their literal text so that
// leaf conversion is done once, by Float.
type Value struct {
	kind   Kind
	text   string
	b      bool
	object map[string]Value
	array  []Value
}

func Null() Value                          { return Value{kind: KindNull} }
func Bool(b bool) Value                    { return Value{kind: KindBool, b: b} }
func Number(n float64) Value               { return Value{kind: KindNumber, text: strconv.FormatFloat(n, 'g', -1, 64)} }
func String(s string) Value                { return Value{kind: KindString, text: s} }
func Object(fields map[string]Value) Value { return Value{kind: KindObject, object: fields} }
func Array(items ...Value) Value           { return Value{kind: KindArray, array: items} }

func (v Value) Kind() Kind {
	return v.kind
}

// Decode parses a single JSON document.
func Decode(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return Value{}, &DecodeError{Err: err}
	}
	if _, err := dec.Token(); err != io.EOF {
		return Value{}, &DecodeError{Err: fmt.Errorf("trailing data after document")}
	}
	return fromRaw(raw), nil
}

func fromRaw(raw any) Value {
	switch t := raw.(type) {
	case nil:
		return Null()
	case bool:
		return Bool(t)
	case json.Number:
		return Value{kind: KindNumber, text: t.String()}
	case string:
		return String(t)
	case map[string]any:
		fields := make(map[string]Value, len(t))
		for k, item := range t {
			fields[k] = fromRaw(item)
		}
		return Object(fields)
	case []any:
		items := make([]Value, len(t))
		for i, item := range t {
			items[i] = fromRaw(item)
		}
		return Array(items...)
	default:
		// encoding/json only produces the types above
		panic(fmt.Sprintf("payload: unexpected json type %T", raw))
	}
}

// Lookup descends through objects by key. Arrays accept a decimal index.
func (v Value) Lookup(path []string) (Value, error) {
	current := v
	for i, segment := range path {
		next, ok := current.child(segment)
		if !ok {
			return Value{}, &PathError{Path: path, Index: i, Kind: current.kind}
		}
		current = next
	}
	return current, nil
}

func (v Value) child(segment string) (Value, bool) {
	switch v.kind {
	case KindObject:
		c, ok := v.object[segment]
		return c, ok
	case KindArray:
		idx, err := strconv.Atoi(segment)
		if err != nil || idx < 0 || idx >= len(v.array) {
			return Value{}, false
		}
		return v.array[idx], true
	default:
		return Value{}, false
	}
}

// Float converts a number or a numeric string leaf.
func (v Value) Float() (float64, error) {
	switch v.kind {
	case KindNumber, KindString:
		return parseReading(v.text)
	default:
		return 0, &FormatError{Text: v.kind.String()}
	}
}
