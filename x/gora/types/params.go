package types

import "fmt"

// Default deposit amounts in base units.
const (
	DefaultTokenDepositAmount uint64 = 10_000_000_000
	DefaultAlgoDepositAmount  uint64 = 10_000_000_000
)

// Params pins the dispatcher a client trusts. They are resolved once at
// startup and injected into the keeper.
type Params struct {
	DispatcherAppID uint64
	// DispatcherIdentity is the deployer identity every callback caller must
	// carry: the dispatcher's app address with the checksum stripped.
	DispatcherIdentity Address
	HashAlgorithm      HashAlgorithm

	TokenAssetID       uint64
	TokenDepositAmount uint64
	AlgoDepositAmount  uint64

	// StoreFailedResponses keeps a response with a nonzero error code as the
	// last oracle value.
	StoreFailedResponses bool
}

// NewParams derives the dispatcher identity from its app id.
func NewParams(dispatcherAppID uint64, alg HashAlgorithm) Params {
	p := DefaultParams()
	p.DispatcherAppID = dispatcherAppID
	p.DispatcherIdentity = ApplicationAddress(dispatcherAppID)
	p.HashAlgorithm = alg
	return p
}

func DefaultParams() Params {
	return Params{
		HashAlgorithm:        DefaultHashAlgorithm,
		TokenDepositAmount:   DefaultTokenDepositAmount,
		AlgoDepositAmount:    DefaultAlgoDepositAmount,
		StoreFailedResponses: true,
	}
}

func (p Params) Validate() error {
	if p.DispatcherAppID == 0 {
		return ErrInvalidParams.Wrap("dispatcher app id is required")
	}
	if p.DispatcherIdentity.IsZero() {
		return ErrInvalidParams.Wrap("dispatcher identity is required")
	}
	if err := p.HashAlgorithm.Validate(); err != nil {
		return ErrInvalidParams.Wrap(err.Error())
	}
	return nil
}

func (p Params) String() string {
	return fmt.Sprintf("dispatcher=%d identity=%s hash=%s token=%d", p.DispatcherAppID, p.DispatcherIdentity, p.HashAlgorithm, p.TokenAssetID)
}
