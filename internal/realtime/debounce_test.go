package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/mansoorceksport/sitekit/internal/domain"
	"github.com/mansoorceksport/sitekit/internal/repository"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan Refetch) Refetch {
	t.Helper()
	select {
	case r, ok := <-ch:
		require.True(t, ok, "channel closed")
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for refetch")
	}
	return Refetch{}
}

func TestDebounceCoalescesBursts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	in := make(chan domain.ChangeEvent)
	out := Debounce(ctx, in, 30*time.Millisecond, "")

	for _, id := range []string{"a", "b", "a"} {
		in <- domain.ChangeEvent{Table: domain.TablePackages, RowID: id, Op: "update"}
	}

	r := receive(t, out)
	assert.Equal(t, domain.TablePackages, r.Table)
	assert.Equal(t, 3, r.Events)
	assert.Equal(t, []string{"a", "b"}, r.RowIDs)

	select {
	case extra := <-out:
		t.Fatalf("unexpected second refetch %+v", extra)
	case <-time.After(80 * time.Millisecond):
	}

	in <- domain.ChangeEvent{Table: domain.TablePackages, RowID: "c"}
	assert.Equal(t, []string{"c"}, receive(t, out).RowIDs)
}

func TestDebounceFiltersRows(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	in := make(chan domain.ChangeEvent, 4)
	out := Debounce(ctx, in, 20*time.Millisecond, "row-1")

	in <- domain.ChangeEvent{Table: domain.TableOrderDrafts, RowID: "row-2"}
	in <- domain.ChangeEvent{Table: domain.TableOrderDrafts, RowID: "row-1"}
	in <- domain.ChangeEvent{Table: domain.TableOrderDrafts}

	r := receive(t, out)
	assert.Equal(t, 2, r.Events)
	assert.Equal(t, []string{"row-1"}, r.RowIDs)
}

func TestDebounceFlushesOnClose(t *testing.T) {
	in := make(chan domain.ChangeEvent, 1)
	out := Debounce(context.Background(), in, time.Hour, "")

	in <- domain.ChangeEvent{Table: domain.TableAddOns, RowID: "x"}
	close(in)

	r := receive(t, out)
	assert.Equal(t, 1, r.Events)
	_, ok := <-out
	assert.False(t, ok)
}

func TestWatcherOverRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	feed := repository.NewRedisChangeFeed(client)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w := NewWatcher(feed, 20*time.Millisecond)
	_, err := w.Watch(ctx, "users", "")
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)

	notices, err := w.Watch(ctx, domain.TablePromoCodes, "")
	require.NoError(t, err)

	require.NoError(t, feed.Publish(ctx, domain.ChangeEvent{Table: domain.TablePromoCodes, RowID: "p1", Op: "update"}))
	require.NoError(t, feed.Publish(ctx, domain.ChangeEvent{Table: domain.TablePackages, RowID: "pkg", Op: "update"}))

	r := receive(t, notices)
	assert.Equal(t, domain.TablePromoCodes, r.Table)
	assert.Equal(t, []string{"p1"}, r.RowIDs)

	cancel()
	assert.Eventually(t, func() bool {
		select {
		case _, ok := <-notices:
			return !ok
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond)
}
