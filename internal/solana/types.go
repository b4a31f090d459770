package solana

// TokenAmount is an SPL token quantity in base units.
type TokenAmount struct {
	Amount   uint64 // raw amount in base units
	Decimals uint8  // mint decimals
}

// RPC error codes.
const (
	// rpcErrInvalidParams is returned by getTokenAccountBalance for
	// accounts that do not exist or are not token accounts.
	rpcErrInvalidParams = -32602
)
