package types

import (
	"encoding/hex"

	"github.com/algorand/go-algorand-sdk/v2/crypto"
	sdktypes "github.com/algorand/go-algorand-sdk/v2/types"
)

// AddressLength is the width of a ledger address without its checksum.
const AddressLength = 32

// Address is the short (checksum-stripped) form of a ledger address.
type Address [AddressLength]byte

// AddressFromString decodes the base32 text form and drops the checksum.
func AddressFromString(s string) (Address, error) {
	addr, err := sdktypes.DecodeAddress(s)
	if err != nil {
		return Address{}, ErrInvalidField.Wrapf("address %q: %s", s, err)
	}
	return Address(addr), nil
}

// AddressFromHex accepts the 64 hex characters of a short address.
func AddressFromHex(s string) (Address, error) {
	bz, err := hex.DecodeString(s)
	if err != nil || len(bz) != AddressLength {
		return Address{}, ErrInvalidField.Wrapf("address hex %q", s)
	}
	var addr Address
	copy(addr[:], bz)
	return addr, nil
}

// ApplicationAddress returns the account controlled by an application.
func ApplicationAddress(appID uint64) Address {
	return Address(crypto.GetApplicationAddress(appID))
}

func (a Address) String() string {
	return sdktypes.Address(a).String()
}

func (a Address) IsZero() bool {
	return a == Address{}
}

func (a Address) Bytes() []byte {
	return append([]byte(nil), a[:]...)
}
