package mesh

import (
	"encoding/binary"
	"fmt"
)

// Feature bits in the composition header.
const (
	FeatureRelay    uint16 = 1 << 0
	FeatureProxy    uint16 = 1 << 1
	FeatureFriend   uint16 = 1 << 2
	FeatureLowPower uint16 = 1 << 3
)

// Composition is Composition Data Page 0 as reported by a node.
type Composition struct {
	CID      uint16    `json:"cid" cbor:"1,keyasint"`
	PID      uint16    `json:"pid" cbor:"2,keyasint"`
	VID      uint16    `json:"vid" cbor:"3,keyasint"`
	CRPL     uint16    `json:"crpl" cbor:"4,keyasint"`
	Features uint16    `json:"features" cbor:"5,keyasint"`
	Elements []Element `json:"elements" cbor:"6,keyasint"`
}

// Element is one addressable element and the models it hosts.
type Element struct {
	Loc    uint16    `json:"loc" cbor:"1,keyasint"`
	SIG    []uint16  `json:"sig,omitempty" cbor:"2,keyasint,omitempty"`
	Vendor []ModelID `json:"vendor,omitempty" cbor:"3,keyasint,omitempty"`
}

// Models returns every model on the element, SIG models first.
func (e Element) Models() []ModelID {
	out := make([]ModelID, 0, len(e.SIG)+len(e.Vendor))
	for _, id := range e.SIG {
		out = append(out, SIGModel(id))
	}
	return append(out, e.Vendor...)
}

// ModelCount returns the number of models across all elements.
func (c *Composition) ModelCount() int {
	n := 0
	for _, e := range c.Elements {
		n += len(e.SIG) + len(e.Vendor)
	}
	return n
}

const (
	compHeaderLen  = 10
	elemHeaderLen  = 4
	sigModelLen    = 2
	vendorModelLen = 4
)

// ParseCompositionPage0 decodes the little-endian page 0 payload
// (without the leading page number octet).
//
// Layout: CID, PID, VID, CRPL, Features (2 octets each), then one record
// per element: Loc (2), NumS (1), NumV (1), NumS SIG model IDs (2 each),
// NumV vendor model IDs (company 2, model 2).
func ParseCompositionPage0(b []byte) (*Composition, error) {
	if len(b) < compHeaderLen {
		return nil, fmt.Errorf("%w: header needs %d octets, have %d", ErrTruncated, compHeaderLen, len(b))
	}

	le := binary.LittleEndian
	c := &Composition{
		CID:      le.Uint16(b[0:]),
		PID:      le.Uint16(b[2:]),
		VID:      le.Uint16(b[4:]),
		CRPL:     le.Uint16(b[6:]),
		Features: le.Uint16(b[8:]),
	}

	rest := b[compHeaderLen:]
	for len(rest) > 0 {
		if len(rest) < elemHeaderLen {
			return nil, fmt.Errorf("%w: element %d header", ErrTruncated, len(c.Elements))
		}
		loc := le.Uint16(rest[0:])
		numS, numV := int(rest[2]), int(rest[3])
		rest = rest[elemHeaderLen:]

		need := numS*sigModelLen + numV*vendorModelLen
		if len(rest) < need {
			return nil, fmt.Errorf("%w: element %d declares %d SIG and %d vendor models",
				ErrTruncated, len(c.Elements), numS, numV)
		}

		el := Element{Loc: loc}
		if numS > 0 {
			el.SIG = make([]uint16, numS)
			for i := range el.SIG {
				el.SIG[i] = le.Uint16(rest[i*sigModelLen:])
			}
			rest = rest[numS*sigModelLen:]
		}
		if numV > 0 {
			el.Vendor = make([]ModelID, numV)
			for i := range el.Vendor {
				off := i * vendorModelLen
				el.Vendor[i] = VendorModel(le.Uint16(rest[off:]), le.Uint16(rest[off+2:]))
			}
			rest = rest[numV*vendorModelLen:]
		}
		c.Elements = append(c.Elements, el)
	}

	return c, nil
}

// Encode renders the composition back into the page 0 wire layout.
func (c *Composition) Encode() []byte {
	le := binary.LittleEndian
	out := make([]byte, compHeaderLen, compHeaderLen+len(c.Elements)*elemHeaderLen+c.ModelCount()*vendorModelLen)
	le.PutUint16(out[0:], c.CID)
	le.PutUint16(out[2:], c.PID)
	le.PutUint16(out[4:], c.VID)
	le.PutUint16(out[6:], c.CRPL)
	le.PutUint16(out[8:], c.Features)

	for _, e := range c.Elements {
		out = le.AppendUint16(out, e.Loc)
		out = append(out, byte(len(e.SIG)), byte(len(e.Vendor)))
		for _, id := range e.SIG {
			out = le.AppendUint16(out, id)
		}
		for _, m := range e.Vendor {
			out = le.AppendUint16(out, m.Company)
			out = le.AppendUint16(out, m.ID)
		}
	}
	return out
}

// ProvisionerComposition is the static composition of the local device:
// one element hosting the Configuration Server and Client.
func ProvisionerComposition(cid uint16) *Composition {
	return &Composition{
		CID:  cid,
		CRPL: 10,
		Elements: []Element{
			{SIG: []uint16{ModelConfigServer, ModelConfigClient}},
		},
	}
}
