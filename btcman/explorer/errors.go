package explorer

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound = errors.New("not found")

	// ErrUtxoAlreadySpent is a broadcast rejection caused by an input being spent already.
	ErrUtxoAlreadySpent = errors.New("utxo already spent")

	// ErrBroadcastRejected is any other broadcast rejection.
	ErrBroadcastRejected = errors.New("broadcast rejected")

	ErrCircuitOpen = errors.New("explorer circuit open")
)

// Node reject reasons that mean one of our inputs is gone.
var spentReasons = []string{
	"missingorspent",
	"missing-inputs",
	"missing inputs",
	"txn-mempool-conflict",
	"already spent",
}

// EndpointError names the endpoint a failed call went to.
type EndpointError struct {
	Method     string
	Endpoint   string
	StatusCode int    // 0 when no response was received
	Body       string // trimmed response body
	Err        error
}

func (e *EndpointError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("esplora %s %s: %v", e.Method, e.Endpoint, e.Err)
	}
	return fmt.Sprintf("esplora %s %s: http %d: %s: %v", e.Method, e.Endpoint, e.StatusCode, e.Body, e.Err)
}

func (e *EndpointError) Unwrap() error {
	return e.Err
}

// ClassifyBroadcast picks the sentinel for a rejected broadcast from the reject reason.
// Every broadcaster passes the node reason through in its error text.
func ClassifyBroadcast(body string) error {
	lower := strings.ToLower(body)
	for _, reason := range spentReasons {
		if strings.Contains(lower, reason) {
			return ErrUtxoAlreadySpent
		}
	}
	return ErrBroadcastRejected
}
