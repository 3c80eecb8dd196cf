package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerializeScalars(t *testing.T) {
	t.Run("string has no overhead", func(t *testing.T) {
		data, valueType, err := serializeValue("hello")
		require.NoError(t, err)
		assert.Equal(t, "string", valueType)
		assert.Equal(t, []byte("hello"), data)

		back, err := deserializeValue(data, valueType)
		require.NoError(t, err)
		assert.Equal(t, "hello", back)
	})

	t.Run("bytes are copied", func(t *testing.T) {
		original := []byte{1, 2, 3}
		data, valueType, err := serializeValue(original)
		require.NoError(t, err)
		assert.Equal(t, "[]uint8", valueType)

		original[0] = 99
		assert.Equal(t, byte(1), data[0], "serialized form must not alias the input")

		back, err := deserializeValue(data, valueType)
		require.NoError(t, err)
		assert.Equal(t, []byte{1, 2, 3}, back)
	})

	t.Run("numeric fixed widths", func(t *testing.T) {
		data, valueType, err := serializeValue(int64(-42))
		require.NoError(t, err)
		assert.Len(t, data, 8)

		back, err := deserializeValue(data, valueType)
		require.NoError(t, err)
		assert.Equal(t, int64(-42), back)
	})

	t.Run("float round trip", func(t *testing.T) {
		data, valueType, err := serializeValue(3.14159)
		require.NoError(t, err)

		back, err := deserializeValue(data, valueType)
		require.NoError(t, err)
		assert.Equal(t, 3.14159, back)
	})

	t.Run("bool is one byte", func(t *testing.T) {
		data, valueType, err := serializeValue(true)
		require.NoError(t, err)
		assert.Equal(t, []byte{1}, data)

		back, err := deserializeValue(data, valueType)
		require.NoError(t, err)
		assert.Equal(t, true, back)
	})

	t.Run("nil rejected", func(t *testing.T) {
		_, _, err := serializeValue(nil)
		assert.Error(t, err)
	})
}

func TestSerializeComplexFallsBackToGob(t *testing.T) {
	value := map[string]int{"a": 1, "b": 2}

	data, valueType, err := serializeValue(value)
	require.NoError(t, err)
	assert.Equal(t, "gob", valueType)

	back, err := deserializeValue(data, valueType)
	require.NoError(t, err)
	assert.Equal(t, value, back)
}

func TestDeserializeTruncatedData(t *testing.T) {
	_, err := deserializeValue([]byte{1, 2}, "int64")
	assert.Error(t, err)

	_, err = deserializeValue(nil, "int")
	assert.Error(t, err)
}
