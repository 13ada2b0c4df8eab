package types

import (
	"github.com/google/uuid"
)

// BoxKeyLength is the width of a derived box key.
const BoxKeyLength = 32

// RequestKeyLength is the width of keys minted by NewRequestKey.
const RequestKeyLength = 16

// BoxRef is a pre-declared reference to a storage box owned by AppID.
type BoxRef struct {
	Key   []byte
	AppID uint64
}

func (b BoxRef) marshalTo(e *encoder) {
	e.bytes(b.Key, "box key")
	e.uint64(b.AppID)
}

func (b *BoxRef) unmarshalFrom(d *decoder) {
	b.Key = d.bytes("box key")
	b.AppID = d.uint64("box app_id")
}

func (b BoxRef) Marshal() ([]byte, error) {
	e := new(encoder)
	b.marshalTo(e)
	return e.result()
}

func (b *BoxRef) Unmarshal(bz []byte) error {
	d := newDecoder(bz)
	b.unmarshalFrom(d)
	return d.finish("box ref")
}

// DeriveBoxKey computes the dispatcher's storage slot name for a pending
// request: alg(requester ++ requestKey). The result must match the
// dispatcher's own derivation, so alg is pinned by configuration.
func DeriveBoxKey(alg HashAlgorithm, requester Address, requestKey []byte) ([BoxKeyLength]byte, error) {
	return alg.Sum(requester[:], requestKey)
}

// NewRequestKey returns a fresh random request key.
func NewRequestKey() []byte {
	id := uuid.New()
	return append([]byte(nil), id[:]...)
}

// RequesterFromAddress returns the 32-byte requester identity of a base32
// ledger address, the form hashed into box keys.
func RequesterFromAddress(addr string) (Address, error) {
	return AddressFromString(addr)
}
