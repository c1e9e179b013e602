package mesh

import (
	"strings"

	"github.com/google/uuid"
)

// UUID is the 128-bit device UUID carried in unprovisioned beacons.
type UUID = uuid.UUID

// ParseUUID parses the canonical textual form.
func ParseUUID(s string) (UUID, error) {
	return uuid.Parse(s)
}

// OOBInfo is the OOB information bitfield of an unprovisioned beacon.
type OOBInfo uint16

// OOB information bits.
const (
	OOBOther        OOBInfo = 1 << 0
	OOBURI          OOBInfo = 1 << 1
	OOB2DCode       OOBInfo = 1 << 2
	OOBBarCode      OOBInfo = 1 << 3
	OOBNFC          OOBInfo = 1 << 4
	OOBNumber       OOBInfo = 1 << 5
	OOBString       OOBInfo = 1 << 6
	OOBOnBox        OOBInfo = 1 << 11
	OOBInsideBox    OOBInfo = 1 << 12
	OOBOnPaper      OOBInfo = 1 << 13
	OOBInsideManual OOBInfo = 1 << 14
	OOBOnDevice     OOBInfo = 1 << 15
)

var oobNames = []struct {
	bit  OOBInfo
	name string
}{
	{OOBOther, "other"},
	{OOBURI, "uri"},
	{OOB2DCode, "2d-code"},
	{OOBBarCode, "bar-code"},
	{OOBNFC, "nfc"},
	{OOBNumber, "number"},
	{OOBString, "string"},
	{OOBOnBox, "on-box"},
	{OOBInsideBox, "inside-box"},
	{OOBOnPaper, "on-paper"},
	{OOBInsideManual, "inside-manual"},
	{OOBOnDevice, "on-device"},
}

func (o OOBInfo) String() string {
	if o == 0 {
		return "none"
	}
	var parts []string
	for _, n := range oobNames {
		if o&n.bit != 0 {
			parts = append(parts, n.name)
		}
	}
	if len(parts) == 0 {
		return "reserved"
	}
	return strings.Join(parts, "|")
}
