package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHandoverStatusValid(t *testing.T) {
	valid := []HandoverStatus{HandoverPending, HandoverHandedOver, HandoverReturned, HandoverRejected}
	for _, s := range valid {
		assert.True(t, s.Valid(), "expected %q to be valid", s)
	}

	assert.False(t, HandoverStatus("").Valid())
	assert.False(t, HandoverStatus("approved").Valid())
}

func TestHandoverStatusTerminal(t *testing.T) {
	assert.False(t, HandoverPending.Terminal())
	assert.False(t, HandoverHandedOver.Terminal(), "handed_over still awaits a return")
	assert.True(t, HandoverReturned.Terminal())
	assert.True(t, HandoverRejected.Terminal())
}

func TestHandoverStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to HandoverStatus
		allowed  bool
	}{
		{HandoverPending, HandoverHandedOver, true},
		{HandoverPending, HandoverRejected, true},
		{HandoverPending, HandoverReturned, false},
		{HandoverHandedOver, HandoverReturned, true},
		{HandoverHandedOver, HandoverRejected, false},
		{HandoverHandedOver, HandoverPending, false},
		{HandoverReturned, HandoverHandedOver, false},
		{HandoverReturned, HandoverPending, false},
		{HandoverRejected, HandoverHandedOver, false},
		{HandoverRejected, HandoverPending, false},
	}

	for _, tc := range cases {
		got := tc.from.CanTransitionTo(tc.to)
		assert.Equal(t, tc.allowed, got, "%s -> %s", tc.from, tc.to)
	}
}
