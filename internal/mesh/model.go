package mesh

import "fmt"

// Foundation models every node carries on its primary element.
const (
	ModelConfigServer uint16 = 0x0000
	ModelConfigClient uint16 = 0x0001
	ModelHealthServer uint16 = 0x0002
	ModelHealthClient uint16 = 0x0003
)

// ModelID identifies a SIG or vendor model.
// Company is only meaningful when Vendor is true.
type ModelID struct {
	ID      uint16 `json:"id" cbor:"1,keyasint"`
	Company uint16 `json:"company,omitempty" cbor:"2,keyasint,omitempty"`
	Vendor  bool   `json:"vendor,omitempty" cbor:"3,keyasint,omitempty"`
}

// SIGModel returns the identifier of a Bluetooth SIG model.
func SIGModel(id uint16) ModelID {
	return ModelID{ID: id}
}

// VendorModel returns the identifier of a company-specific model.
func VendorModel(company, id uint16) ModelID {
	return ModelID{ID: id, Company: company, Vendor: true}
}

// IsFoundationConfig reports whether m is the Configuration Server or
// Configuration Client. Those models use the device key and never get
// an application key bound.
func (m ModelID) IsFoundationConfig() bool {
	return !m.Vendor && (m.ID == ModelConfigServer || m.ID == ModelConfigClient)
}

func (m ModelID) String() string {
	if m.Vendor {
		return fmt.Sprintf("%04x:%04x", m.Company, m.ID)
	}
	return fmt.Sprintf("%04x", m.ID)
}
