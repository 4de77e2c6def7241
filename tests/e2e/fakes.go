//go:build e2e

package e2e

import (
	"context"
	"sync"

	"booking-checkout/internal/domain/payment"

	"github.com/google/uuid"
)

// FakeGateway approves every card charge unless the token is listed in
// Declines. QR charges stay pending until a test settles them.
type FakeGateway struct {
	mu       sync.Mutex
	charges  map[string]payment.ChargeRequest
	statuses map[string]payment.Status
	Declines map[string]payment.DeclineReason
}

func NewFakeGateway() *FakeGateway {
	g := &FakeGateway{}
	g.Reset()
	return g
}

func (g *FakeGateway) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.charges = map[string]payment.ChargeRequest{}
	g.statuses = map[string]payment.Status{}
	g.Declines = map[string]payment.DeclineReason{}
}

func (g *FakeGateway) Tokenize(_ context.Context, in payment.Instrument, _ payment.OwnerCredential) (string, error) {
	if in.Method == payment.MethodQR {
		return "pm_qr_" + uuid.NewString(), nil
	}
	if in.Token == "" {
		return "", payment.ErrInstrumentRejected
	}
	return "pm_" + in.Token, nil
}

func (g *FakeGateway) Charge(_ context.Context, req payment.ChargeRequest, _ payment.OwnerCredential) (payment.Outcome, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	id := "pi_" + uuid.NewString()
	g.charges[id] = req

	if req.Method == payment.MethodQR {
		g.statuses[id] = payment.StatusPending
		return payment.Outcome{
			Kind:       payment.OutcomePendingAsync,
			ExternalID: id,
			Detail:     payment.Detail{QRCode: &payment.QRCode{Payload: "00020126580014br.gov.bcb.pix" + id}},
		}, nil
	}
	if reason, ok := g.Declines[req.InstrumentRef]; ok {
		g.statuses[id] = payment.StatusDeclined
		return payment.Outcome{Kind: payment.OutcomeDeclined, ExternalID: id, Detail: payment.DeclinedDetail(reason)}, nil
	}
	g.statuses[id] = payment.StatusApproved
	return payment.Outcome{Kind: payment.OutcomeApproved, ExternalID: id}, nil
}

func (g *FakeGateway) CheckStatus(_ context.Context, externalID string, _ payment.OwnerCredential) (payment.Status, payment.Detail, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	st, ok := g.statuses[externalID]
	if !ok {
		return "", payment.Detail{}, payment.ErrGatewayUnavailable
	}
	return st, payment.Detail{}, nil
}

func (g *FakeGateway) Cancel(_ context.Context, externalID string, _ payment.OwnerCredential) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.statuses[externalID] = payment.StatusDeclined
	return nil
}

// ParseWebhook treats the payload as the payment intent id and the signature
// as the resulting status.
func (g *FakeGateway) ParseWebhook(payload []byte, signature string) (payment.Notification, bool, error) {
	if signature == "" {
		return payment.Notification{}, false, payment.ErrInvalidSignature
	}
	id := string(payload)
	g.mu.Lock()
	req, ok := g.charges[id]
	g.mu.Unlock()
	if !ok {
		return payment.Notification{}, false, nil
	}
	return payment.Notification{
		EventID:       "evt_" + id,
		ExternalID:    id,
		ReservationID: req.ReservationID.String(),
		Status:        payment.Status(signature),
	}, true, nil
}

// Settle marks a pending charge as paid or failed on the gateway side.
func (g *FakeGateway) Settle(reservationID uuid.UUID, st payment.Status) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for id, req := range g.charges {
		if req.ReservationID == reservationID {
			g.statuses[id] = st
			return id, true
		}
	}
	return "", false
}

func (g *FakeGateway) ChargeCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.charges)
}

// RecordingPublisher stands in for the broker and keeps the message keys.
type RecordingPublisher struct {
	mu   sync.Mutex
	keys []string
}

func NewRecordingPublisher() *RecordingPublisher {
	return &RecordingPublisher{}
}

func (p *RecordingPublisher) Publish(_ context.Context, _, key string, _ []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, key)
	return nil
}

func (p *RecordingPublisher) Keys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.keys...)
}

func (p *RecordingPublisher) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = nil
}
