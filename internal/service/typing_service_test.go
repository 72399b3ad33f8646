package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTypingFixture(ttl time.Duration) (*TypingService, *fakeConvRepo, *fakeNotifier) {
	convs := newFakeConvRepo()
	notifier := &fakeNotifier{}
	svc := NewTypingService(convs, ttl)
	svc.SetNotifier(notifier)
	return svc, convs, notifier
}

func TestTypingStartStop(t *testing.T) {
	svc, convs, notifier := newTypingFixture(time.Minute)
	alice, bob, conv := twoParty(convs)
	ctx := context.Background()

	require.NoError(t, svc.Start(ctx, conv.ID, alice))
	to, ok := notifier.lastTo("user_typing")
	require.True(t, ok)
	assert.Equal(t, bob, to)

	require.NoError(t, svc.Stop(ctx, conv.ID, alice))
	to, ok = notifier.lastTo("user_stopped_typing")
	require.True(t, ok)
	assert.Equal(t, bob, to)
}

func TestTypingParticipantChecks(t *testing.T) {
	svc, convs, notifier := newTypingFixture(time.Minute)
	_, _, conv := twoParty(convs)
	ctx := context.Background()

	assert.ErrorIs(t, svc.Start(ctx, conv.ID, uuid.New()), ErrNotParticipant)
	assert.ErrorIs(t, svc.Start(ctx, uuid.New(), uuid.New()), ErrConversationNotFound)
	assert.ErrorIs(t, svc.Stop(ctx, conv.ID, uuid.New()), ErrNotParticipant)
	assert.Zero(t, notifier.count("user_typing"))
}

func TestTypingExpirySynthesizesStop(t *testing.T) {
	svc, convs, notifier := newTypingFixture(30 * time.Millisecond)
	alice, bob, conv := twoParty(convs)
	ctx := context.Background()

	require.NoError(t, svc.Start(ctx, conv.ID, alice))

	// No explicit stop: the server must synthesize one after the TTL.
	assert.Eventually(t, func() bool {
		return notifier.count("user_stopped_typing") == 1
	}, time.Second, 5*time.Millisecond)
	to, _ := notifier.lastTo("user_stopped_typing")
	assert.Equal(t, bob, to)
}

func TestTypingRestartRearmsTimer(t *testing.T) {
	svc, convs, notifier := newTypingFixture(150 * time.Millisecond)
	alice, _, conv := twoParty(convs)
	ctx := context.Background()

	// Keystrokes well inside the TTL keep the indicator alive past it.
	for i := 0; i < 4; i++ {
		require.NoError(t, svc.Start(ctx, conv.ID, alice))
		time.Sleep(50 * time.Millisecond)
	}
	assert.Zero(t, notifier.count("user_stopped_typing"))
	assert.Equal(t, 4, notifier.count("user_typing"))

	// Once the keystrokes cease, exactly one synthesized stop follows.
	assert.Eventually(t, func() bool {
		return notifier.count("user_stopped_typing") == 1
	}, time.Second, 5*time.Millisecond)
}

func TestTypingStopWithoutStart(t *testing.T) {
	svc, convs, notifier := newTypingFixture(time.Minute)
	alice, bob, conv := twoParty(convs)
	ctx := context.Background()

	// Stopping when no indicator is live still relays the event; the other
	// side treats it as a no-op.
	require.NoError(t, svc.Stop(ctx, conv.ID, alice))
	to, _ := notifier.lastTo("user_stopped_typing")
	assert.Equal(t, bob, to)
	assert.Equal(t, 1, notifier.count("user_stopped_typing"))
}

func TestTypingIndependentPerConversation(t *testing.T) {
	svc, convs, notifier := newTypingFixture(40 * time.Millisecond)
	alice, _, conv1 := twoParty(convs)
	conv2 := newConversation(convs, alice, uuid.New())
	ctx := context.Background()

	// Alice types in both chats; each indicator expires on its own.
	require.NoError(t, svc.Start(ctx, conv1.ID, alice))
	require.NoError(t, svc.Start(ctx, conv2.ID, alice))

	assert.Eventually(t, func() bool {
		return notifier.count("user_stopped_typing") == 2
	}, time.Second, 5*time.Millisecond)
}
