package events_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/b2pix/engine/internal/events"
)

type stubHandler struct {
	name    string
	handles map[string]bool
}

func (h *stubHandler) Name() string { return h.name }

func (h *stubHandler) CanHandle(eventName string) bool { return h.handles[eventName] }

func (h *stubHandler) Handle(context.Context, events.Event) error { return nil }

func TestRegistry_EndpointsFor_OnlyReturnsHandlersThatClaimTheEvent(t *testing.T) {
	r := events.NewRegistry()
	r.Register(&stubHandler{name: "buyPaidHandler", handles: map[string]bool{"buy.paid": true}}, []string{"buy.paid", "deposit.confirmed"})
	r.Register(&stubHandler{name: "depositHandler", handles: map[string]bool{"deposit.confirmed": true}}, []string{"buy.paid", "deposit.confirmed"})

	assert.ElementsMatch(t, []string{"buyPaidHandler"}, r.EndpointsFor("buy.paid"))
	assert.ElementsMatch(t, []string{"depositHandler"}, r.EndpointsFor("deposit.confirmed"))
	assert.Empty(t, r.EndpointsFor("invite.issued"))
}

func TestRegistry_Resolve_ParsesDetailSuffixAndRequiresCanHandle(t *testing.T) {
	r := events.NewRegistry()
	r.Register(&stubHandler{name: "notify", handles: map[string]bool{"buy.disputed": true}}, []string{"buy.disputed"})

	handler, ok := r.Resolve("notify::trello", "buy.disputed")
	require.True(t, ok)
	assert.Equal(t, "notify", handler.Name())

	_, ok = r.Resolve("notify", "buy.paid")
	assert.False(t, ok, "handler that doesn't claim this event name must not resolve")

	_, ok = r.Resolve("unknown-endpoint", "buy.disputed")
	assert.False(t, ok)
}
