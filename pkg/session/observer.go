package session

import (
	"context"

	"github.com/veiltls/veil/pkg/wire"
)

// Observer provides hooks for handshake lifecycle and protocol events.
// Implementations should be lightweight; callbacks run inline with
// message processing.
type Observer interface {
	OnHandshakeStart(ctx context.Context) (context.Context, func(error))
	OnHandshakeComplete(version wire.ProtocolVersion, suiteID wire.CipherSuiteID, alpn string)
	OnCipherRotate()
	OnResumption(accepted bool)
	OnTicketIssued()
	OnAlertSent(desc wire.AlertDescription)
	OnAlertReceived(desc wire.AlertDescription)
	OnProtocolError(err error)
}

// NoOpObserver ignores every event.
type NoOpObserver struct{}

// OnHandshakeStart implements Observer.
func (NoOpObserver) OnHandshakeStart(ctx context.Context) (context.Context, func(error)) {
	return ctx, func(error) {}
}

// OnHandshakeComplete implements Observer.
func (NoOpObserver) OnHandshakeComplete(wire.ProtocolVersion, wire.CipherSuiteID, string) {}

// OnCipherRotate implements Observer.
func (NoOpObserver) OnCipherRotate() {}

// OnResumption implements Observer.
func (NoOpObserver) OnResumption(bool) {}

// OnTicketIssued implements Observer.
func (NoOpObserver) OnTicketIssued() {}

// OnAlertSent implements Observer.
func (NoOpObserver) OnAlertSent(wire.AlertDescription) {}

// OnAlertReceived implements Observer.
func (NoOpObserver) OnAlertReceived(wire.AlertDescription) {}

// OnProtocolError implements Observer.
func (NoOpObserver) OnProtocolError(error) {}
