package redis

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-payment-verification/internal/config"
	"ms-payment-verification/internal/logger"
)

// setupTestRedis creates a Redis client backed by miniredis
func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to create miniredis: %v", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		mr.Close()
		t.Fatalf("Failed to connect to miniredis: %v", err)
	}

	return client, mr
}

func cleanupTestRedis(client *redis.Client, mr *miniredis.Miniredis) {
	if client != nil {
		client.Close()
	}
	if mr != nil {
		mr.Close()
	}
}

func newScheduler(client *redis.Client) *Redis {
	return NewRedis(client, logger.NewConsoleLogger(io.Discard), 10*time.Millisecond)
}

func TestSchedule_AndPending(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer cleanupTestRedis(client, mr)
	r := newScheduler(client)
	ctx := context.Background()
	base := time.UnixMilli(time.Now().UnixMilli())

	require.NoError(t, r.Schedule(ctx, "ORD-2", base.Add(2*time.Minute)))
	require.NoError(t, r.Schedule(ctx, "ORD-1", base.Add(time.Minute)))
	// rescheduling moves the job instead of duplicating it
	require.NoError(t, r.Schedule(ctx, "ORD-2", base.Add(3*time.Minute)))

	jobs, err := r.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "ORD-1", jobs[0].OrderNumber)
	assert.Equal(t, "ORD-2", jobs[1].OrderNumber)
	assert.True(t, jobs[1].DueAt.Equal(base.Add(3*time.Minute)))
}

func TestClaim_OnlyDueJobs(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer cleanupTestRedis(client, mr)
	r := newScheduler(client)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, r.Schedule(ctx, "ORD-due", now.Add(-time.Second)))
	require.NoError(t, r.Schedule(ctx, "ORD-later", now.Add(time.Hour)))

	claimed, err := r.Claim(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, []string{"ORD-due"}, claimed)

	claimed, err = r.Claim(ctx, now)
	require.NoError(t, err)
	assert.Empty(t, claimed, "a claimed job is gone")

	jobs, _ := r.Pending(ctx)
	require.Len(t, jobs, 1)
	assert.Equal(t, "ORD-later", jobs[0].OrderNumber)
}

func TestClaim_ConcurrentPollersFireOnce(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer cleanupTestRedis(client, mr)
	ctx := context.Background()
	now := time.Now()

	for i := 0; i < 50; i++ {
		require.NoError(t, newScheduler(client).Schedule(ctx, fmt.Sprintf("ORD-%d", i), now.Add(-time.Minute)))
	}

	var mu sync.Mutex
	seen := map[string]int{}
	var wg sync.WaitGroup
	for p := 0; p < 5; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			claimed, err := newScheduler(client).Claim(ctx, now)
			assert.NoError(t, err)
			mu.Lock()
			defer mu.Unlock()
			for _, n := range claimed {
				seen[n]++
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, 50)
	for n, count := range seen {
		assert.Equal(t, 1, count, "order %s fired more than once", n)
	}
}

func TestRun_FiresHandlerUntilCancelled(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer cleanupTestRedis(client, mr)
	r := newScheduler(client)
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, r.Schedule(ctx, "ORD-1", time.Now().Add(-time.Second)))

	fired := make(chan string, 1)
	done := make(chan struct{})
	go func() {
		r.Run(ctx, func(_ context.Context, orderNumber string) error {
			fired <- orderNumber
			return nil
		})
		close(done)
	}()

	select {
	case n := <-fired:
		assert.Equal(t, "ORD-1", n)
	case <-time.After(2 * time.Second):
		t.Fatal("handler was not called")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestConnect(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	log := logger.NewConsoleLogger(io.Discard)

	client, err := Connect(context.Background(), config.RedisConfig{Addr: mr.Addr()}, log)
	require.NoError(t, err)
	client.Close()

	mr.Close()
	_, err = Connect(context.Background(), config.RedisConfig{Addr: mr.Addr()}, log)
	assert.Error(t, err)
}
