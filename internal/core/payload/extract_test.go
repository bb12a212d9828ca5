package payload

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractBareNumber(t *testing.T) {

	require := require.New(t)

	v, err := Extract([]byte("123.4"), nil)
	require.NoError(err)
	require.Equal(123.4, v)

	v, err = Extract([]byte(" -42\n"), nil)
	require.NoError(err)
	require.Equal(-42.0, v, "surrounding whitespace is ignored")
}

func TestExtractBareNumberInvalid(t *testing.T) {

	for _, body := range []string{"", "n/a", "12W", "NaN", "inf", "1e400"} {
		_, err := Extract([]byte(body), nil)
		var fe *FormatError
		assert.True(t, errors.As(err, &fe), "body %q should be a format error, got %v", body, err)
	}
}

func TestExtractNestedPath(t *testing.T) {

	v, err := Extract([]byte(`{"payload":{"power": 123.4}}`), []string{"payload", "power"})
	require.NoError(t, err)
	assert.Equal(t, 123.4, v)
}

func TestExtractNumericStringLeaf(t *testing.T) {

	v, err := Extract([]byte(`{"ENERGY":{"Power":" 87 "}}`), []string{"ENERGY", "Power"})
	require.NoError(t, err)
	assert.Equal(t, 87.0, v)
}

func TestExtractArrayIndex(t *testing.T) {

	body := []byte(`{"ch":[{"P_AC":10.5},{"P_AC":201}]}`)

	v, err := Extract(body, []string{"ch", "1", "P_AC"})
	require.NoError(t, err)
	assert.Equal(t, 201.0, v)

	_, err = Extract(body, []string{"ch", "2", "P_AC"})
	var pe *PathError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, 1, pe.Index)
	assert.Equal(t, KindArray, pe.Kind)
}

func TestExtractNonNumericLeaf(t *testing.T) {

	for _, body := range []string{
		`{"payload":{"power":"n/a"}}`,
		`{"payload":{"power":null}}`,
		`{"payload":{"power":true}}`,
		`{"payload":{"power":{"value":1}}}`,
		`{"payload":{"power":[1]}}`,
	} {
		_, err := Extract([]byte(body), []string{"payload", "power"})
		var fe *FormatError
		assert.True(t, errors.As(err, &fe), "body %s should be a format error, got %v", body, err)
	}
}

func TestExtractMissingSegment(t *testing.T) {

	require := require.New(t)

	_, err := Extract([]byte(`{"payload":{"voltage":230}}`), []string{"payload", "power"})
	var pe *PathError
	require.True(errors.As(err, &pe))
	require.Equal(1, pe.Index)
	require.Equal(KindObject, pe.Kind)
	require.Contains(pe.Error(), `"power"`)

	_, err = Extract([]byte(`{"payload":42}`), []string{"payload", "power"})
	require.True(errors.As(err, &pe), "indexing into a number is a path error")
	require.Equal(KindNumber, pe.Kind)
}

func TestExtractDecodeErrors(t *testing.T) {

	for _, body := range [][]byte{
		[]byte(""),
		[]byte(`{"payload":`),
		[]byte(`{"a":1} {"a":2}`),
		[]byte(`not json`),
		{0xff, 0xfe, '{', '}'},
	} {
		_, err := Extract(body, []string{"a"})
		var de *DecodeError
		assert.True(t, errors.As(err, &de), "body %q should be a decode error, got %v", body, err)
	}

	_, err := Extract([]byte{0xff}, nil)
	var de *DecodeError
	assert.True(t, errors.As(err, &de), "invalid utf-8 is rejected without a path too")
}

func TestValueLookupTopLevel(t *testing.T) {

	doc := Object(map[string]Value{
		"power": Number(450),
		"name":  String("hm-800"),
		"list":  Array(Bool(true), Null()),
	})

	leaf, err := doc.Lookup([]string{"power"})
	require.NoError(t, err)
	f, err := leaf.Float()
	require.NoError(t, err)
	assert.Equal(t, 450.0, f)

	same, err := doc.Lookup(nil)
	require.NoError(t, err)
	assert.Equal(t, KindObject, same.Kind(), "empty path returns the document itself")

	leaf, err = doc.Lookup([]string{"list", "1"})
	require.NoError(t, err)
	assert.Equal(t, KindNull, leaf.Kind())
}
