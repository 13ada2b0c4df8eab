package types

// PendingRequestEntry pairs a pending request with its box key.
type PendingRequestEntry struct {
	BoxKey  [BoxKeyLength]byte
	Request PendingRequest
}

type QueryLastOracleValueResponse struct {
	Value []byte
	Found bool
}

type QueryResponseRequest struct {
	RequestID [RequestIDLength]byte
}

type QueryResponseResponse struct {
	Response ResponseBody
}

type QueryPendingRequestsResponse struct {
	Pending []PendingRequestEntry
}
