package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/semachat/sema/internal/domain"
)

func newPresenceFixture() (*PresenceService, *fakeConvRepo, *fakeLastSeen, *fakeNotifier) {
	convs := newFakeConvRepo()
	lastSeen := newFakeLastSeen()
	notifier := &fakeNotifier{}
	svc := NewPresenceService(convs, lastSeen)
	svc.SetNotifier(notifier)
	return svc, convs, lastSeen, notifier
}

func TestPresenceConnectBroadcastsToPartners(t *testing.T) {
	svc, convs, _, notifier := newPresenceFixture()
	alice, bob, _ := twoParty(convs)

	svc.HandleConnect(alice)

	require.Equal(t, 1, notifier.count("status_changed"))
	to, _ := notifier.lastTo("status_changed")
	assert.Equal(t, bob, to)

	// A second device connecting is not a status change.
	svc.HandleConnect(alice)
	assert.Equal(t, 1, notifier.count("status_changed"))
}

func TestPresenceDisconnectLastDeviceOnly(t *testing.T) {
	svc, convs, lastSeen, notifier := newPresenceFixture()
	alice, _, _ := twoParty(convs)

	svc.HandleConnect(alice)
	require.Equal(t, 1, notifier.count("status_changed"))

	// One of two devices dropping keeps the user online.
	svc.HandleDisconnect(alice, 1)
	assert.Equal(t, 1, notifier.count("status_changed"))
	seen, _ := lastSeen.Get(context.Background(), alice)
	assert.True(t, seen.IsZero())

	// The last device dropping goes offline and stamps last seen.
	svc.HandleDisconnect(alice, 0)
	assert.Equal(t, 2, notifier.count("status_changed"))
	seen, _ = lastSeen.Get(context.Background(), alice)
	assert.False(t, seen.IsZero())
}

func TestPresenceReconnectBroadcastsAgain(t *testing.T) {
	svc, convs, _, notifier := newPresenceFixture()
	alice, _, _ := twoParty(convs)

	svc.HandleConnect(alice)
	svc.HandleDisconnect(alice, 0)
	svc.HandleConnect(alice)

	assert.Equal(t, 3, notifier.count("status_changed"))
}

func TestPresenceAwayOverlay(t *testing.T) {
	svc, convs, _, notifier := newPresenceFixture()
	alice, _, _ := twoParty(convs)

	// An away hint from a user with no connections is ignored.
	svc.SetAway(alice, true)
	assert.Zero(t, notifier.count("status_changed"))

	svc.HandleConnect(alice)
	svc.SetAway(alice, true)
	require.Equal(t, 2, notifier.count("status_changed"))

	// Repeating the hint changes nothing.
	svc.SetAway(alice, true)
	assert.Equal(t, 2, notifier.count("status_changed"))

	svc.SetAway(alice, false)
	assert.Equal(t, 3, notifier.count("status_changed"))

	// Going offline discards the overlay entirely.
	svc.SetAway(alice, true)
	svc.HandleDisconnect(alice, 0)
	svc.SetAway(alice, true)
	assert.Equal(t, 5, notifier.count("status_changed"))
}

func TestPresenceBroadcastReachesAllPartners(t *testing.T) {
	svc, convs, _, notifier := newPresenceFixture()
	alice := uuid.New()
	bob := uuid.New()
	carol := uuid.New()
	newConversation(convs, alice, bob)
	newConversation(convs, alice, carol)

	svc.HandleConnect(alice)

	assert.Equal(t, 2, notifier.count("status_changed"))
}

func TestPresenceNoPartnersNoEvents(t *testing.T) {
	svc, _, _, notifier := newPresenceFixture()

	// A user with no conversations has nobody to tell.
	svc.HandleConnect(uuid.New())
	assert.Zero(t, notifier.count("status_changed"))
}

func TestPresenceStatusPayload(t *testing.T) {
	svc, convs, _, notifier := newPresenceFixture()
	alice, _, _ := twoParty(convs)

	svc.HandleConnect(alice)

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	var last fakeEvent
	for _, e := range notifier.events {
		if e.Type == "status_changed" {
			last = e
		}
	}
	p, ok := last.Meta.(domain.Presence)
	require.True(t, ok)
	assert.Equal(t, alice, p.UserID)
	assert.Equal(t, domain.PresenceOnline, p.Status)
}
