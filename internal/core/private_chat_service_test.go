package core

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gwi.com/myblog/internal/store"
)

func newChatFixture(t *testing.T) (*PrivateChatService, *store.SQLiteStore, *store.User, *store.User) {
	t.Helper()
	db := newTestStore(t)
	useSteppingClock(db)
	return NewPrivateChatService(db), db, mustUser(t, db, "alice"), mustUser(t, db, "bob")
}

func TestResolveSession_CanonicalAndIdempotent(t *testing.T) {
	svc, _, alice, bob := newChatFixture(t)
	ctx := context.Background()

	first, created, err := svc.ResolveSession(ctx, bob.ID, alice.ID)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Less(t, first.UserAID, first.UserBID)
	assert.True(t, first.IsActive)

	second, created, err := svc.ResolveSession(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
}

func TestResolveSession_RejectsSelf(t *testing.T) {
	svc, _, alice, _ := newChatFixture(t)

	_, _, err := svc.ResolveSession(context.Background(), alice.ID, alice.ID)
	assert.ErrorIs(t, err, ErrInvalidParticipants)
}

func TestResolveSession_UnknownUser(t *testing.T) {
	svc, _, alice, _ := newChatFixture(t)

	_, _, err := svc.ResolveSession(context.Background(), alice.ID, 9999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolveSession_Concurrent(t *testing.T) {
	svc, _, alice, bob := newChatFixture(t)
	ctx := context.Background()

	const workers = 16
	var wg sync.WaitGroup
	ids := make([]int64, workers)
	createdFlags := make([]bool, workers)
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			current, other := alice.ID, bob.ID
			if i%2 == 1 {
				current, other = other, current
			}
			session, created, err := svc.ResolveSession(ctx, current, other)
			errs[i] = err
			if err == nil {
				ids[i] = session.ID
				createdFlags[i] = created
			}
		}(i)
	}
	wg.Wait()

	createdCount := 0
	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
		if createdFlags[i] {
			createdCount++
		}
	}
	assert.Equal(t, 1, createdCount)
}

func TestSend_ConcurrentParticipantsKeepLedgerOrder(t *testing.T) {
	svc, _, alice, bob := newChatFixture(t)
	ctx := context.Background()
	session, _, err := svc.ResolveSession(ctx, alice.ID, bob.ID)
	require.NoError(t, err)

	const perSender = 10
	var wg sync.WaitGroup
	errs := make(chan error, 2*perSender)
	for i := 0; i < perSender; i++ {
		for _, pair := range [][2]int64{{alice.ID, bob.ID}, {bob.ID, alice.ID}} {
			wg.Add(1)
			go func(sender, receiver int64) {
				defer wg.Done()
				own := *session // each request loads its own session
				_, err := svc.Send(ctx, &own, sender, receiver, "ping")
				errs <- err
			}(pair[0], pair[1])
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	all, err := svc.ListAll(ctx, session)
	require.NoError(t, err)
	require.Len(t, all, 2*perSender)
	for i := 1; i < len(all); i++ {
		assert.Greater(t, all[i].ID, all[i-1].ID)
		assert.False(t, all[i].CreatedAt.Before(all[i-1].CreatedAt))
	}

	for i := range all {
		rest, err := svc.ListSince(ctx, session, &all[i].ID)
		require.NoError(t, err)
		require.Len(t, rest, len(all)-i-1, "nothing already delivered comes back")
		for _, m := range rest {
			assert.Greater(t, m.ID, all[i].ID)
		}
	}
}

func TestInsertOrLoad_RecoversFromDuplicate(t *testing.T) {
	svc, db, alice, bob := newChatFixture(t)
	ctx := context.Background()
	a, b := canonicalPair(alice.ID, bob.ID)

	winner, err := db.InsertSession(ctx, a, b)
	require.NoError(t, err)

	session, created, err := svc.insertOrLoad(ctx, a, b)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, winner.ID, session.ID)
}

func TestResolveSession_ReactivatesInactive(t *testing.T) {
	svc, db, alice, bob := newChatFixture(t)
	ctx := context.Background()

	session, _, err := svc.ResolveSession(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	require.NoError(t, db.SetSessionActive(ctx, session.ID, false))

	again, created, err := svc.ResolveSession(ctx, bob.ID, alice.ID)
	require.NoError(t, err)
	assert.False(t, created)
	assert.True(t, again.IsActive)

	stored, err := db.GetSessionByID(ctx, session.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsActive)
}

func TestFindSession(t *testing.T) {
	svc, _, alice, bob := newChatFixture(t)
	ctx := context.Background()

	_, err := svc.FindSession(ctx, alice.ID, bob.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	created, _, err := svc.ResolveSession(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	found, err := svc.FindSession(ctx, bob.ID, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)

	_, err = svc.FindSession(ctx, alice.ID, alice.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSend_ContentBounds(t *testing.T) {
	svc, _, alice, bob := newChatFixture(t)
	ctx := context.Background()
	session, _, err := svc.ResolveSession(ctx, alice.ID, bob.ID)
	require.NoError(t, err)

	_, err = svc.Send(ctx, session, alice.ID, bob.ID, strings.Repeat("x", 1000))
	assert.NoError(t, err)

	_, err = svc.Send(ctx, session, alice.ID, bob.ID, strings.Repeat("é", 1000))
	assert.NoError(t, err, "length is counted in characters, not bytes")

	_, err = svc.Send(ctx, session, alice.ID, bob.ID, strings.Repeat("x", 1001))
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.Send(ctx, session, alice.ID, bob.ID, "   \n\t ")
	assert.ErrorIs(t, err, ErrValidation)

	msg, err := svc.Send(ctx, session, bob.ID, alice.ID, "  hello  ")
	require.NoError(t, err)
	assert.Equal(t, "hello", msg.Content)
	assert.Equal(t, "bob", msg.SenderUsername)
	assert.False(t, msg.IsRead)
	assert.Nil(t, msg.ReadAt)
}

func TestSend_RejectsOutsiders(t *testing.T) {
	svc, db, alice, bob := newChatFixture(t)
	ctx := context.Background()
	carol := mustUser(t, db, "carol")
	session, _, err := svc.ResolveSession(ctx, alice.ID, bob.ID)
	require.NoError(t, err)

	_, err = svc.Send(ctx, session, carol.ID, bob.ID, "hi")
	assert.ErrorIs(t, err, ErrInvalidParticipants)

	_, err = svc.Send(ctx, session, alice.ID, alice.ID, "hi")
	assert.ErrorIs(t, err, ErrInvalidParticipants)
}

func TestListSince_Incremental(t *testing.T) {
	svc, _, alice, bob := newChatFixture(t)
	ctx := context.Background()
	session, _, err := svc.ResolveSession(ctx, alice.ID, bob.ID)
	require.NoError(t, err)

	var sent []*store.PrivateMessage
	for i := 0; i < 4; i++ {
		m, err := svc.Send(ctx, session, alice.ID, bob.ID, "m")
		require.NoError(t, err)
		sent = append(sent, m)
	}

	all, err := svc.ListSince(ctx, session, nil)
	require.NoError(t, err)
	assert.Len(t, all, 4)

	tail, err := svc.ListSince(ctx, session, &sent[1].ID)
	require.NoError(t, err)
	require.Len(t, tail, 2)
	assert.Equal(t, sent[2].ID, tail[0].ID)
	assert.Equal(t, sent[3].ID, tail[1].ID)

	none, err := svc.ListSince(ctx, session, &sent[3].ID)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestViewConversation_MarksOnlyViewersMessages(t *testing.T) {
	svc, _, alice, bob := newChatFixture(t)
	ctx := context.Background()
	session, _, err := svc.ResolveSession(ctx, alice.ID, bob.ID)
	require.NoError(t, err)

	_, err = svc.Send(ctx, session, alice.ID, bob.ID, "for bob")
	require.NoError(t, err)
	_, err = svc.Send(ctx, session, bob.ID, alice.ID, "for alice")
	require.NoError(t, err)

	// Plain listing has no side effects.
	_, err = svc.ListAll(ctx, session)
	require.NoError(t, err)
	unread, err := svc.TotalUnreadFor(ctx, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, unread)

	msgs, err := svc.ViewConversation(ctx, session, bob.ID, nil)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.True(t, msgs[0].IsRead)
	assert.NotNil(t, msgs[0].ReadAt)
	assert.False(t, msgs[1].IsRead)

	unread, err = svc.TotalUnreadFor(ctx, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, unread)
	unread, err = svc.TotalUnreadFor(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, unread)
}

func TestMarkRead_Monotonic(t *testing.T) {
	svc, db, alice, bob := newChatFixture(t)
	ctx := context.Background()
	session, _, err := svc.ResolveSession(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	msg, err := svc.Send(ctx, session, alice.ID, bob.ID, "hello")
	require.NoError(t, err)

	assert.ErrorIs(t, svc.MarkRead(ctx, msg.ID, alice.ID), ErrForbidden)
	untouched, err := db.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	require.False(t, untouched.IsRead, "the sender cannot mark their own message read")

	require.NoError(t, svc.MarkRead(ctx, msg.ID, bob.ID))
	first, err := db.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	require.True(t, first.IsRead)
	require.NotNil(t, first.ReadAt)

	require.NoError(t, svc.MarkRead(ctx, msg.ID, bob.ID))
	_, err = svc.MarkAllReadForReceivingUser(ctx, bob.ID)
	require.NoError(t, err)
	_, err = svc.ViewConversation(ctx, session, bob.ID, nil)
	require.NoError(t, err)

	second, err := db.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.True(t, second.IsRead)
	assert.True(t, first.ReadAt.Equal(*second.ReadAt))

	assert.ErrorIs(t, svc.MarkRead(ctx, 424242, bob.ID), ErrNotFound)
}

func TestUnreadCounts_Consistent(t *testing.T) {
	svc, db, alice, bob := newChatFixture(t)
	ctx := context.Background()
	carol := mustUser(t, db, "carol")

	ab, _, err := svc.ResolveSession(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	ac, _, err := svc.ResolveSession(ctx, alice.ID, carol.ID)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err = svc.Send(ctx, ab, bob.ID, alice.ID, "from bob")
		require.NoError(t, err)
	}
	for i := 0; i < 2; i++ {
		_, err = svc.Send(ctx, ac, carol.ID, alice.ID, "from carol")
		require.NoError(t, err)
	}
	_, err = svc.Send(ctx, ac, alice.ID, carol.ID, "to carol")
	require.NoError(t, err)

	total, err := svc.TotalUnreadFor(ctx, alice.ID)
	require.NoError(t, err)
	inAB, err := svc.SessionUnreadCount(ctx, ab, alice.ID)
	require.NoError(t, err)
	inAC, err := svc.SessionUnreadCount(ctx, ac, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Equal(t, total, inAB+inAC)

	n, err := svc.MarkAllReadForReceivingUser(ctx, alice.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 5, n)

	total, err = svc.TotalUnreadFor(ctx, alice.ID)
	require.NoError(t, err)
	assert.Zero(t, total)
	carolUnread, err := svc.TotalUnreadFor(ctx, carol.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, carolUnread)
}

func TestRecentSessionsSummary(t *testing.T) {
	svc, db, alice, bob := newChatFixture(t)
	ctx := context.Background()
	carol := mustUser(t, db, "carol")
	dave := mustUser(t, db, "dave")

	_, _, err := svc.ResolveSession(ctx, alice.ID, dave.ID)
	require.NoError(t, err)
	withBob, _, err := svc.ResolveSession(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	withCarol, _, err := svc.ResolveSession(ctx, alice.ID, carol.ID)
	require.NoError(t, err)

	long := strings.Repeat("b", 60)
	short := strings.Repeat("c", 40)
	_, err = svc.Send(ctx, withBob, bob.ID, alice.ID, long)
	require.NoError(t, err)
	_, err = svc.Send(ctx, withCarol, carol.ID, alice.ID, short)
	require.NoError(t, err)

	sums, err := svc.RecentSessionsSummary(ctx, alice.ID, 0)
	require.NoError(t, err)
	require.Len(t, sums, 3)

	assert.Equal(t, "carol", sums[0].OtherUserName)
	assert.Equal(t, short, sums[0].LastMessagePreview)
	assert.Equal(t, 1, sums[0].UnreadCount)
	require.NotNil(t, sums[0].LastMessageTime)

	assert.Equal(t, "bob", sums[1].OtherUserName)
	assert.Equal(t, strings.Repeat("b", 50)+"...", sums[1].LastMessagePreview)

	assert.Equal(t, "dave", sums[2].OtherUserName)
	assert.Empty(t, sums[2].LastMessagePreview)
	assert.Nil(t, sums[2].LastMessageTime)
	assert.Zero(t, sums[2].UnreadCount)

	limited, err := svc.RecentSessionsSummary(ctx, alice.ID, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "carol", limited[0].OtherUserName)
}

func TestRecentSessionsSummary_DefaultLimit(t *testing.T) {
	svc, db, alice, _ := newChatFixture(t)
	ctx := context.Background()
	for _, name := range []string{"u1", "u2", "u3", "u4", "u5", "u6", "u7"} {
		u := mustUser(t, db, name)
		_, _, err := svc.ResolveSession(ctx, alice.ID, u.ID)
		require.NoError(t, err)
	}

	sums, err := svc.RecentSessionsSummary(ctx, alice.ID, 0)
	require.NoError(t, err)
	assert.Len(t, sums, DefaultSummaryLimit)

	all, err := svc.ListSessions(ctx, alice.ID)
	require.NoError(t, err)
	assert.Len(t, all, 7)
}
