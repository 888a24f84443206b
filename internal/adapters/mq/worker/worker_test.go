package worker_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/okian/helpquest/internal/adapters/mq/queue"
	"github.com/okian/helpquest/internal/adapters/mq/worker"
	"github.com/okian/helpquest/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.Init()
}

type mockSyncer struct {
	mu     sync.Mutex
	synced []string
	fail   map[string]error
	done   chan string
}

func newMockSyncer() *mockSyncer {
	return &mockSyncer{
		fail: make(map[string]error),
		done: make(chan string, 64),
	}
}

func (m *mockSyncer) SyncUser(_ context.Context, userID string) error {
	m.mu.Lock()
	err := m.fail[userID]
	if err == nil {
		m.synced = append(m.synced, userID)
	}
	m.mu.Unlock()
	m.done <- userID
	return err
}

func (m *mockSyncer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.synced)
}

func waitFor(ch <-chan string, n int) bool {
	timeout := time.After(2 * time.Second)
	for i := 0; i < n; i++ {
		select {
		case <-ch:
		case <-timeout:
			return false
		}
	}
	return true
}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a worker reading from a queue", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		q := queue.NewInMemoryQueue(queue.WithCapacity(16))
		s := newMockSyncer()
		w := worker.NewInMemoryWorker(q, s, worker.WithName("test"))
		go w.Run(ctx)

		convey.Convey("When requests arrive", func() {
			q.Enqueue(ctx, queue.Request{ID: "r1", UserID: "u1"})
			q.Enqueue(ctx, queue.Request{ID: "r2", UserID: "u2"})

			convey.Convey("Then each user should be synced", func() {
				convey.So(waitFor(s.done, 2), convey.ShouldBeTrue)
				convey.So(s.count(), convey.ShouldEqual, 2)
			})
		})

		convey.Convey("When a sync fails", func() {
			s.fail["bad"] = errors.New("remote down")
			q.Enqueue(ctx, queue.Request{ID: "r1", UserID: "bad"})
			q.Enqueue(ctx, queue.Request{ID: "r2", UserID: "good"})

			convey.Convey("Then the worker should keep going", func() {
				convey.So(waitFor(s.done, 2), convey.ShouldBeTrue)
				convey.So(s.count(), convey.ShouldEqual, 1)
			})
		})

		convey.Convey("When the worker is shut down", func() {
			sctx, scancel := context.WithTimeout(context.Background(), time.Second)
			defer scancel()

			convey.Convey("Then it should stop promptly", func() {
				convey.So(w.Shutdown(sctx), convey.ShouldBeNil)
			})
		})
	})
}

func TestPool(t *testing.T) {
	convey.Convey("Given a pool of three workers", t, func() {
		ctx := context.Background()
		q := queue.NewInMemoryQueue(queue.WithCapacity(64))
		s := newMockSyncer()
		p := worker.NewPool(3, q, s)
		convey.So(p.Size(), convey.ShouldEqual, 3)
		p.Start(ctx)

		convey.Convey("When many users request a sync", func() {
			for i := 0; i < 20; i++ {
				q.Enqueue(ctx, queue.Request{ID: fmt.Sprintf("r%d", i), UserID: fmt.Sprintf("u%d", i)})
			}

			convey.Convey("Then all of them should be processed before shutdown returns", func() {
				convey.So(waitFor(s.done, 20), convey.ShouldBeTrue)
				convey.So(p.Shutdown(ctx), convey.ShouldBeNil)
				convey.So(p.Processed(), convey.ShouldEqual, 20)
				convey.So(q.IsClosed(), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the pool is shut down twice", func() {
			convey.So(p.Shutdown(ctx), convey.ShouldBeNil)
			convey.So(p.Shutdown(ctx), convey.ShouldBeNil)
			convey.So(q.IsClosed(), convey.ShouldBeTrue)
		})
	})

	convey.Convey("A pool with no worker count should size itself", t, func() {
		p := worker.NewPool(0, queue.NewInMemoryQueue(), newMockSyncer())
		convey.So(p.Size(), convey.ShouldBeGreaterThan, 0)
	})
}
