package blemesh

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// maxPayload bounds what the bridge decodes from the broker. The largest
// legitimate message is a composition page of a few hundred bytes.
const maxPayload = 64 << 10

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	// Identical requests encode to identical bytes.
	encMode, err = cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeUnixMicro,
	}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("blemesh: cbor encoder: %v", err))
	}

	// Unknown fields are ignored so the daemon can extend its messages.
	decMode, err = cbor.DecOptions{
		DupMapKey:        cbor.DupMapKeyEnforcedAPF,
		IndefLength:      cbor.IndefLengthAllowed,
		MaxNestedLevels:  16,
		MaxArrayElements: 4096,
		MaxMapPairs:      256,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("blemesh: cbor decoder: %v", err))
	}
}

// Marshal encodes v as deterministic CBOR.
func Marshal(v any) ([]byte, error) {
	b, err := encMode.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("blemesh: encoding %T: %w", v, err)
	}
	return b, nil
}

// Unmarshal decodes a daemon payload into v. Every failure wraps
// ErrMalformed.
func Unmarshal(data []byte, v any) error {
	if len(data) > maxPayload {
		return fmt.Errorf("%w: %d byte payload exceeds %d", ErrMalformed, len(data), maxPayload)
	}
	if err := decMode.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return nil
}
