package cdb

import (
	"time"

	"github.com/nerrad567/gray-logic-mesh/internal/mesh"
)

// Network is the network context: the single live network key.
type Network struct {
	NetIdx    mesh.KeyIndex
	NetKey    mesh.Key
	IVIndex   uint32
	CreatedAt time.Time
}

// AppKey is an application key bound to a network key index.
type AppKey struct {
	AppIdx    mesh.KeyIndex
	NetIdx    mesh.KeyIndex
	Key       mesh.Key
	CreatedAt time.Time
}

// Node is the durable record of one admitted device.
//
// Address is the primary element address; the node owns the unicast
// range [Address, Address+NumElements). Configured only moves from
// false to true.
type Node struct {
	Address      mesh.Address
	UUID         mesh.UUID
	NetIdx       mesh.KeyIndex
	NumElements  uint8
	Configured   bool
	Composition  *mesh.Composition
	AddedAt      time.Time
	ConfiguredAt *time.Time
}

// LastAddress returns the address of the node's final element.
func (n *Node) LastAddress() mesh.Address {
	count := max(int(n.NumElements), 1)
	return n.Address + mesh.Address(count-1)
}

// Owns reports whether addr falls within the node's element range.
func (n *Node) Owns(addr mesh.Address) bool {
	return addr >= n.Address && addr <= n.LastAddress()
}

// DeepCopy returns an independent copy of the node.
func (n *Node) DeepCopy() *Node {
	if n == nil {
		return nil
	}
	cp := *n
	if n.ConfiguredAt != nil {
		t := *n.ConfiguredAt
		cp.ConfiguredAt = &t
	}
	if n.Composition != nil {
		comp := *n.Composition
		comp.Elements = make([]mesh.Element, len(n.Composition.Elements))
		for i, e := range n.Composition.Elements {
			comp.Elements[i] = mesh.Element{
				Loc:    e.Loc,
				SIG:    append([]uint16(nil), e.SIG...),
				Vendor: append([]mesh.ModelID(nil), e.Vendor...),
			}
		}
		cp.Composition = &comp
	}
	return &cp
}

func (n *Node) validate() error {
	if !n.Address.IsUnicast() || !n.LastAddress().IsUnicast() {
		return ErrInvalidNode
	}
	return n.NetIdx.Validate()
}

// IterAction tells ForEach whether to keep going.
type IterAction int

const (
	// IterContinue moves on to the next node.
	IterContinue IterAction = iota
	// IterStop ends the iteration.
	IterStop
)

// Unconfigured matches nodes that still need the configuration pass.
func Unconfigured(n *Node) bool { return !n.Configured }

// Stats summarises the database for health reporting.
type Stats struct {
	HasNetwork   bool
	AppKeys      int
	Nodes        int
	Configured   int
	Unconfigured int
}
