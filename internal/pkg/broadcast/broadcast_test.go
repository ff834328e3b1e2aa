package broadcast

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func drain(t *testing.T, sub *Subscription[int]) []int {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var got []int
	for {
		ev, err := sub.Next(ctx)
		if errors.Is(err, io.EOF) {
			return got
		}
		require.NoError(t, err)
		got = append(got, ev)
	}
}

func TestChannel_OrderAndTerminal(t *testing.T) {
	ch := New[int](8)
	sub, err := ch.Subscribe()
	require.NoError(t, err)

	for i := 1; i <= 5; i++ {
		assert.True(t, ch.Publish(i))
	}
	ch.Close(99)
	assert.False(t, ch.Publish(6), "publish after close must be rejected")

	assert.Equal(t, []int{1, 2, 3, 4, 5, 99}, drain(t, sub))
}

func TestChannel_OverflowKeepsTerminal(t *testing.T) {
	ch := New[int](2)
	sub, err := ch.Subscribe()
	require.NoError(t, err)

	for i := 1; i <= 5; i++ {
		ch.Publish(i)
	}
	ch.Close(-1)

	assert.Equal(t, []int{1, 2, -1}, drain(t, sub))
	assert.Equal(t, uint64(3), sub.Dropped())
	assert.Equal(t, uint64(3), ch.Dropped())
}

func TestChannel_KeptEventsSurviveOverflow(t *testing.T) {
	ch := New[int](2, WithKeep(func(v int) bool { return v < 0 }))
	sub, err := ch.Subscribe()
	require.NoError(t, err)

	for i := 1; i <= 5; i++ {
		ch.Publish(i)
	}
	ch.Publish(-1)
	ch.Publish(6)
	ch.Publish(-2)
	ch.Close(-99)

	assert.Equal(t, []int{1, 2, -1, -2, -99}, drain(t, sub))
	assert.Equal(t, uint64(4), sub.Dropped())
}

func TestChannel_LateSubscriber(t *testing.T) {
	ch := New[int](8)
	ch.Publish(1)

	sub, err := ch.Subscribe()
	require.NoError(t, err)
	ch.Publish(2)
	ch.Close(3)

	assert.Equal(t, []int{2, 3}, drain(t, sub))

	late, err := ch.Subscribe()
	require.NoError(t, err)
	assert.Equal(t, []int{3}, drain(t, late), "subscriber after close still sees terminal")
}

func TestChannel_AckReleasesTerminal(t *testing.T) {
	ch := New[int](8)
	held, err := ch.Subscribe()
	require.NoError(t, err)
	ch.Close(7)

	term, ok := ch.Terminal()
	require.True(t, ok)
	assert.Equal(t, 7, term)

	ch.Ack()
	_, ok = ch.Terminal()
	assert.False(t, ok)

	_, err = ch.Subscribe()
	assert.ErrorIs(t, err, ErrAcknowledged)

	assert.Equal(t, []int{7}, drain(t, held), "existing subscription keeps its terminal")
}

func TestChannel_PublishNeverBlocks(t *testing.T) {
	ch := New[int](1)
	_, err := ch.Subscribe()
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10000; i++ {
			ch.Publish(i)
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on an idle subscriber")
	}
	ch.Close(0)
}

func TestSubscription_NextHonorsContext(t *testing.T) {
	ch := New[int](4)
	sub, err := ch.Subscribe()
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = sub.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSubscription_Cancel(t *testing.T) {
	ch := New[int](4)
	sub, err := ch.Subscribe()
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		_, err := sub.Next(context.Background())
		errCh <- err
	}()

	time.Sleep(10 * time.Millisecond)
	sub.Cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, io.EOF)
	case <-time.After(time.Second):
		t.Fatal("cancel did not wake Next")
	}
	ch.Close(0)
}

func TestSubscription_C(t *testing.T) {
	ch := New[int](16)
	sub, err := ch.Subscribe()
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 10; i++ {
			ch.Publish(i)
		}
		ch.Close(100)
	}()

	var got []int
	for ev := range sub.C(context.Background()) {
		got = append(got, ev)
	}
	wg.Wait()

	require.Len(t, got, 11)
	assert.Equal(t, 100, got[10])
	for i := 0; i < 10; i++ {
		assert.Equal(t, i, got[i])
	}
}
