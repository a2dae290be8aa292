// Package update implements the capability through which buffers and
// networks emit client-facing events and alerts without knowing what
// transport, if any, sits above them.
package update

import "github.com/matt0x6f/ircquill/internal/proto"

// Handle is given to inner components so they can broadcast events to
// the owning user's clients and post alerts. M is the event type the
// component emits at its own layer.
type Handle[M any] interface {
	SendToClients(msg M)
	PostAlert(alert proto.Alert)
}

// BaseHandle buffers events and alerts for the caller to collect once
// an update pass has finished.
type BaseHandle[M any] struct {
	msgs   []M
	alerts []proto.Alert
}

// NewBaseHandle returns an empty buffering handle.
func NewBaseHandle[M any]() *BaseHandle[M] {
	return &BaseHandle[M]{}
}

func (h *BaseHandle[M]) SendToClients(msg M) {
	h.msgs = append(h.msgs, msg)
}

func (h *BaseHandle[M]) PostAlert(alert proto.Alert) {
	h.alerts = append(h.alerts, alert)
}

// TakeMessages returns the buffered events and clears them.
func (h *BaseHandle[M]) TakeMessages() []M {
	msgs := h.msgs
	h.msgs = nil
	return msgs
}

// TakeAlerts returns the buffered alerts and clears them.
func (h *BaseHandle[M]) TakeAlerts() []proto.Alert {
	alerts := h.alerts
	h.alerts = nil
	return alerts
}

type wrapped[M, N any] struct {
	inner Handle[N]
	fn    func(M) N
}

func (w *wrapped[M, N]) SendToClients(msg M) {
	w.inner.SendToClients(w.fn(msg))
}

func (w *wrapped[M, N]) PostAlert(alert proto.Alert) {
	w.inner.PostAlert(alert)
}

// Wrap adapts a handle of the outer event type N into a handle of the
// inner event type M by mapping every event through fn. Alerts pass
// through unchanged. Wrapped handles nest arbitrarily deep, which is
// how a buffer event picks up its network and user envelopes without
// the buffer knowing about either.
func Wrap[M, N any](inner Handle[N], fn func(M) N) Handle[M] {
	return &wrapped[M, N]{inner: inner, fn: fn}
}
