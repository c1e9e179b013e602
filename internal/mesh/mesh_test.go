package mesh

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddress(t *testing.T) {
	assert.False(t, AddrUnassigned.IsUnicast())
	assert.True(t, Address(0x0001).IsUnicast())
	assert.True(t, AddrUnicastMax.IsUnicast())
	assert.False(t, Address(0x8000).IsUnicast())
	assert.True(t, AddrAllNodes.IsGroup())
	assert.Equal(t, "0x0010", Address(0x10).String())
}

func TestParseAddress(t *testing.T) {
	tests := []struct {
		in      string
		want    Address
		wantErr bool
	}{
		{"0x0010", 0x0010, false},
		{"0X7FFF", 0x7fff, false},
		{"0010", 0x0010, false},
		{"16", 16, false},
		{"0x10000", 0, true},
		{"zz", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAddress(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidAddress)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestKeyIndexValidate(t *testing.T) {
	assert.NoError(t, KeyIndex(0).Validate())
	assert.NoError(t, MaxKeyIndex.Validate())
	assert.ErrorIs(t, KeyIndex(0x1000).Validate(), ErrInvalidKeyIndex)
}

func TestNewKey(t *testing.T) {
	a, err := NewKey()
	require.NoError(t, err)
	b, err := NewKey()
	require.NoError(t, err)

	assert.False(t, a.IsZero())
	assert.NotEqual(t, a, b)
	assert.Len(t, a.Hex(), 32)
}

func TestKeyFromBytes(t *testing.T) {
	k, err := KeyFromBytes([]byte("0123456789abcdef"))
	require.NoError(t, err)
	assert.Equal(t, "30313233343536373839616263646566", k.Hex())

	_, err = KeyFromBytes([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestKeyRedaction(t *testing.T) {
	k, err := NewKey()
	require.NoError(t, err)

	assert.NotContains(t, fmt.Sprintf("%v %s", k, k), k.Hex())

	var buf strings.Builder
	slog.New(slog.NewTextHandler(&buf, nil)).Info("key", "app_key", k)
	assert.NotContains(t, buf.String(), k.Hex())
	assert.Contains(t, buf.String(), "[redacted]")
}

func TestCheckStatus(t *testing.T) {
	assert.NoError(t, CheckStatus("bind", StatusSuccess))

	err := CheckStatus("bind", StatusCannotBind)
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, StatusCannotBind, se.Status)
	assert.Contains(t, err.Error(), "cannot bind")

	assert.Equal(t, "status 0xfe", Status(0xfe).String())
}

func TestOOBInfoString(t *testing.T) {
	assert.Equal(t, "none", OOBInfo(0).String())
	assert.Equal(t, "uri|on-device", (OOBURI | OOBOnDevice).String())
	assert.Equal(t, "reserved", OOBInfo(1<<8).String())
}
