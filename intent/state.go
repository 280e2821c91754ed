package intent

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/wire"
)

// State of a partial transaction.
// It only moves forward, one step at a time.
type State int

const (
	StateEmpty State = iota
	StateBorrowerSigned
	StateLenderExtended
	StateFinalized
	StateBroadcast
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateBorrowerSigned:
		return "borrower-signed"
	case StateLenderExtended:
		return "lender-extended"
	case StateFinalized:
		return "finalized"
	case StateBroadcast:
		return "broadcast"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Intent is a borrow intent on its way to the chain.
// An Intent has a single owner, it is not safe for concurrent use.
type Intent struct {
	Packet *psbt.Packet
	State  State
	Tx     *wire.MsgTx // set once finalized
	TxID   string      // set once broadcast
}

func newIntent(packet *psbt.Packet) *Intent {
	return &Intent{Packet: packet, State: StateEmpty}
}

// advance moves the intent to the next state.
func (in *Intent) advance(to State) error {
	if to != in.State+1 {
		return fmt.Errorf("%s -> %s: %w", in.State, to, ErrInvalidTransition)
	}
	if to == StateFinalized {
		for idx := range in.Packet.Inputs {
			if !isFinalized(&in.Packet.Inputs[idx]) {
				return fmt.Errorf("%s -> %s, input %d not finalized: %w", in.State, to, idx, ErrInvalidTransition)
			}
		}
		if in.Tx == nil {
			return fmt.Errorf("%s -> %s without a transaction: %w", in.State, to, ErrInvalidTransition)
		}
	}
	if to == StateBroadcast && in.TxID == "" {
		return fmt.Errorf("%s -> %s without a txid: %w", in.State, to, ErrInvalidTransition)
	}
	in.State = to
	return nil
}

func isFinalized(in *psbt.PInput) bool {
	return len(in.FinalScriptWitness) > 0 || len(in.FinalScriptSig) > 0
}
