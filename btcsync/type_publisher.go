package btcsync

import (
	"context"
	"sync"

	"github.com/TEENet-io/lending-go/btcaction"
)

// PublisherService is a concurrent-safe service that
// could "Notify" channels of observers.
// Please "Register" observers via RegisterXXXObserver before Notify.
type PublisherService struct {
	ConfirmedObservers []chan btcaction.FillAction
	mu                 sync.Mutex
	pending            sync.WaitGroup // deliveries to full channels
}

func NewPublisherService() *PublisherService {
	return &PublisherService{
		ConfirmedObservers: make([]chan btcaction.FillAction, 0),
	}
}

// RegisterConfirmedObserver registers a new observer for confirmed fills.
func (m *PublisherService) RegisterConfirmedObserver(observer chan btcaction.FillAction) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ConfirmedObservers = append(m.ConfirmedObservers, observer)
}

// Notify "fill confirmed" to observers.
// A full channel gets the fill later, unless ctx is done first.
func (m *PublisherService) NotifyConfirmed(ctx context.Context, fill btcaction.FillAction) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, observer := range m.ConfirmedObservers {
		select {
		case observer <- fill:
		default:
			m.pending.Add(1)
			go func(obs chan btcaction.FillAction) {
				defer m.pending.Done()
				select {
				case obs <- fill:
				case <-ctx.Done():
				}
			}(observer)
		}
	}
}

// Wait blocks until every delayed delivery has landed or given up.
func (m *PublisherService) Wait() {
	m.pending.Wait()
}
