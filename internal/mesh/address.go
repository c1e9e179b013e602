package mesh

import (
	"fmt"
	"strconv"
	"strings"
)

// Address is a 16-bit mesh address.
type Address uint16

// Address ranges.
const (
	AddrUnassigned Address = 0x0000
	AddrUnicastMax Address = 0x7FFF
	AddrGroupMin   Address = 0xC000
	AddrAllNodes   Address = 0xFFFF
)

// IsUnicast reports whether a addresses a single element.
func (a Address) IsUnicast() bool {
	return a != AddrUnassigned && a <= AddrUnicastMax
}

// IsGroup reports whether a is a group or fixed group address.
func (a Address) IsGroup() bool {
	return a >= AddrGroupMin
}

// String formats the address the way mesh tooling prints it.
func (a Address) String() string {
	return fmt.Sprintf("0x%04x", uint16(a))
}

// ParseAddress accepts "0x0010", "0010" or "16".
func ParseAddress(s string) (Address, error) {
	s = strings.TrimSpace(s)
	base := 10
	if rest, ok := strings.CutPrefix(strings.ToLower(s), "0x"); ok {
		s, base = rest, 16
	} else if len(s) == 4 {
		base = 16
	}
	v, err := strconv.ParseUint(s, base, 16)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	return Address(v), nil
}

// KeyIndex is the 12-bit global index of a network or application key.
type KeyIndex uint16

// MaxKeyIndex is the largest index that fits the on-air field.
const MaxKeyIndex KeyIndex = 0x0FFF

// Validate rejects indexes wider than 12 bits.
func (k KeyIndex) Validate() error {
	if k > MaxKeyIndex {
		return fmt.Errorf("%w: %d", ErrInvalidKeyIndex, k)
	}
	return nil
}
