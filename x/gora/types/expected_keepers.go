package types

import "context"

// Runtime defines the ledger runtime that executes contracts and the
// cross-contract calls between them.
type Runtime interface {
	// CallApp issues one cross-contract call. Args[0] is the method selector.
	CallApp(ctx context.Context, call AppCall) error
	// AppCreator returns the address that deployed appID.
	AppCreator(ctx context.Context, appID uint64) (Address, error)
}

// AppCall is a single cross-contract call.
type AppCall struct {
	SenderAppID uint64
	AppID       uint64
	Args        [][]byte
}

// Selector returns the method selector of the call, if any.
func (c AppCall) Selector() []byte {
	if len(c.Args) == 0 {
		return nil
	}
	return c.Args[0]
}
