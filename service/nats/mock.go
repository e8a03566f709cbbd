package nats

import (
	"context"
	"sync"

	"github.com/brojonat/agentpay/service/compliance"
	"github.com/brojonat/agentpay/service/transfer"
)

// MockPublisher is a mock implementation of Publisher for testing.
type MockPublisher struct {
	mu               sync.RWMutex
	transferEvents   []*TransferEvent
	complianceEvents []*ComplianceEvent
	publishError     error
	closed           bool
}

// NewMockPublisher creates a new mock publisher for testing.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

// PublishTransfer records the event and returns any configured error.
func (m *MockPublisher) PublishTransfer(_ context.Context, o *transfer.Outcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.publishError != nil {
		return m.publishError
	}
	m.transferEvents = append(m.transferEvents, FromOutcome(o))
	return nil
}

// Record records the decision and returns any configured error.
func (m *MockPublisher) Record(_ context.Context, d compliance.Decision) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.publishError != nil {
		return m.publishError
	}
	m.complianceEvents = append(m.complianceEvents, FromDecision(d))
	return nil
}

// Close marks the publisher as closed.
func (m *MockPublisher) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// GetTransferEvents returns all published transfer events.
func (m *MockPublisher) GetTransferEvents() []*TransferEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := make([]*TransferEvent, len(m.transferEvents))
	copy(events, m.transferEvents)
	return events
}

// GetTransferEventsForRecipient returns transfer events for one account.
func (m *MockPublisher) GetTransferEventsForRecipient(account string) []*TransferEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := make([]*TransferEvent, 0)
	for _, event := range m.transferEvents {
		if event.Recipient == account {
			events = append(events, event)
		}
	}
	return events
}

// GetComplianceEvents returns all published compliance events.
func (m *MockPublisher) GetComplianceEvents() []*ComplianceEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := make([]*ComplianceEvent, len(m.complianceEvents))
	copy(events, m.complianceEvents)
	return events
}

// SetPublishError configures the mock to fail every publish.
func (m *MockPublisher) SetPublishError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishError = err
}

// Reset clears all published events and errors.
func (m *MockPublisher) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transferEvents = nil
	m.complianceEvents = nil
	m.publishError = nil
	m.closed = false
}

// IsClosed returns whether the publisher has been closed.
func (m *MockPublisher) IsClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}
