package chatango

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSetPremiumRequiresPriorKnownState(t *testing.T) {
	registry := NewUserRegistry()
	u := registry.Get("alice")

	// First sighting: prior state is Unknown, so no event fires even
	// though the value did change (false -> true).
	fresh := u.setPremium(true, time.Now())
	require.False(t, fresh)
	require.Equal(t, TriTrue, u.IsPremium())
}

func TestSetPremiumFiresOnChangeWithinWindow(t *testing.T) {
	registry := NewUserRegistry()
	u := registry.Get("alice")
	u.setPremium(false, time.Now()) // establish a known prior state

	fresh := u.setPremium(true, time.Now())
	require.True(t, fresh)
}

func TestSetPremiumSuppressedForStaleMessage(t *testing.T) {
	registry := NewUserRegistry()
	u := registry.Get("alice")
	u.setPremium(false, time.Now())

	stale := time.Now().Add(-30 * time.Second)
	fresh := u.setPremium(true, stale)
	require.False(t, fresh)
	require.Equal(t, TriTrue, u.IsPremium()) // value still updates
}

func TestSetPremiumSuppressedWhenUnchanged(t *testing.T) {
	registry := NewUserRegistry()
	u := registry.Get("alice")
	u.setPremium(true, time.Now())

	fresh := u.setPremium(true, time.Now())
	require.False(t, fresh)
}
