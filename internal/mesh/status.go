package mesh

import "fmt"

// Status is a Foundation model status code.
type Status uint8

// Foundation status codes.
const (
	StatusSuccess                   Status = 0x00
	StatusInvalidAddress            Status = 0x01
	StatusInvalidModel              Status = 0x02
	StatusInvalidAppKeyIndex        Status = 0x03
	StatusInvalidNetKeyIndex        Status = 0x04
	StatusInsufficientResources     Status = 0x05
	StatusKeyIndexAlreadyStored     Status = 0x06
	StatusInvalidPublishParameters  Status = 0x07
	StatusNotSubscribeModel         Status = 0x08
	StatusStorageFailure            Status = 0x09
	StatusFeatureNotSupported       Status = 0x0A
	StatusCannotUpdate              Status = 0x0B
	StatusCannotRemove              Status = 0x0C
	StatusCannotBind                Status = 0x0D
	StatusTemporarilyUnableToChange Status = 0x0E
	StatusCannotSet                 Status = 0x0F
	StatusUnspecifiedError          Status = 0x10
	StatusInvalidBinding            Status = 0x11
)

var statusNames = map[Status]string{
	StatusSuccess:                   "success",
	StatusInvalidAddress:            "invalid address",
	StatusInvalidModel:              "invalid model",
	StatusInvalidAppKeyIndex:        "invalid app key index",
	StatusInvalidNetKeyIndex:        "invalid net key index",
	StatusInsufficientResources:     "insufficient resources",
	StatusKeyIndexAlreadyStored:     "key index already stored",
	StatusInvalidPublishParameters:  "invalid publish parameters",
	StatusNotSubscribeModel:         "not a subscribe model",
	StatusStorageFailure:            "storage failure",
	StatusFeatureNotSupported:       "feature not supported",
	StatusCannotUpdate:              "cannot update",
	StatusCannotRemove:              "cannot remove",
	StatusCannotBind:                "cannot bind",
	StatusTemporarilyUnableToChange: "temporarily unable to change state",
	StatusCannotSet:                 "cannot set",
	StatusUnspecifiedError:          "unspecified error",
	StatusInvalidBinding:            "invalid binding",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status 0x%02x", uint8(s))
}
