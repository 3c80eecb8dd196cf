package cache

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"math"
	"reflect"
)

// serializeValue converts a value to its byte form for sizing and optional
// compression. Scalars use fixed binary encodings; everything else goes
// through gob. The returned type tag drives deserializeValue.
func serializeValue(value interface{}) ([]byte, string, error) {
	if value == nil {
		return nil, "", fmt.Errorf("cannot serialize nil value")
	}
	valueType := reflect.TypeOf(value).String()

	switch v := value.(type) {
	case string:
		return []byte(v), valueType, nil
	case []byte:
		data := make([]byte, len(v))
		copy(data, v)
		return data, valueType, nil
	case int:
		data := make([]byte, 8)
		binary.LittleEndian.PutUint64(data, uint64(v))
		return data, valueType, nil
	case int32:
		data := make([]byte, 4)
		binary.LittleEndian.PutUint32(data, uint32(v))
		return data, valueType, nil
	case int64:
		data := make([]byte, 8)
		binary.LittleEndian.PutUint64(data, uint64(v))
		return data, valueType, nil
	case uint32:
		data := make([]byte, 4)
		binary.LittleEndian.PutUint32(data, v)
		return data, valueType, nil
	case uint64:
		data := make([]byte, 8)
		binary.LittleEndian.PutUint64(data, v)
		return data, valueType, nil
	case float32:
		data := make([]byte, 4)
		binary.LittleEndian.PutUint32(data, math.Float32bits(v))
		return data, valueType, nil
	case float64:
		data := make([]byte, 8)
		binary.LittleEndian.PutUint64(data, math.Float64bits(v))
		return data, valueType, nil
	case bool:
		if v {
			return []byte{1}, valueType, nil
		}
		return []byte{0}, valueType, nil
	default:
		var buf bytes.Buffer
		if err := gob.NewEncoder(&buf).Encode(&value); err != nil {
			return nil, "", fmt.Errorf("failed to encode value: %w", err)
		}
		return buf.Bytes(), "gob", nil
	}
}

// deserializeValue converts serialized bytes back to the original value.
// Gob-encoded complex types must be registered with gob by the caller.
func deserializeValue(data []byte, valueType string) (interface{}, error) {
	if len(data) == 0 && valueType != "string" {
		return nil, fmt.Errorf("empty data for deserialization")
	}

	switch valueType {
	case "string":
		return string(data), nil
	case "[]uint8": // []byte shows up as []uint8 in reflection
		result := make([]byte, len(data))
		copy(result, data)
		return result, nil
	case "int":
		if len(data) < 8 {
			return nil, fmt.Errorf("insufficient data for int")
		}
		return int(binary.LittleEndian.Uint64(data)), nil
	case "int32":
		if len(data) < 4 {
			return nil, fmt.Errorf("insufficient data for int32")
		}
		return int32(binary.LittleEndian.Uint32(data)), nil
	case "int64":
		if len(data) < 8 {
			return nil, fmt.Errorf("insufficient data for int64")
		}
		return int64(binary.LittleEndian.Uint64(data)), nil
	case "uint32":
		if len(data) < 4 {
			return nil, fmt.Errorf("insufficient data for uint32")
		}
		return binary.LittleEndian.Uint32(data), nil
	case "uint64":
		if len(data) < 8 {
			return nil, fmt.Errorf("insufficient data for uint64")
		}
		return binary.LittleEndian.Uint64(data), nil
	case "float32":
		if len(data) < 4 {
			return nil, fmt.Errorf("insufficient data for float32")
		}
		return math.Float32frombits(binary.LittleEndian.Uint32(data)), nil
	case "float64":
		if len(data) < 8 {
			return nil, fmt.Errorf("insufficient data for float64")
		}
		return math.Float64frombits(binary.LittleEndian.Uint64(data)), nil
	case "bool":
		return data[0] != 0, nil
	default:
		var result interface{}
		if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&result); err != nil {
			return nil, fmt.Errorf("failed to decode value: %w", err)
		}
		return result, nil
	}
}
