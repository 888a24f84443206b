package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/okian/helpquest/internal/adapters/remote/memory"
	"github.com/okian/helpquest/internal/config"
	"github.com/okian/helpquest/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

func TestRedisConfig(t *testing.T) {
	convey.Convey("Given redis settings", t, func() {
		cfg := config.New()
		cfg.RedisAddr = "cache.internal:6380"
		cfg.RedisPassword = "secret"
		cfg.RedisDB = 2
		cfg.RedisKeyPrefix = "hq:"

		convey.Convey("Then they should map onto the store configuration", func() {
			rc, err := redisConfig(cfg)
			convey.So(err, convey.ShouldBeNil)
			convey.So(rc.Addr(), convey.ShouldEqual, "cache.internal:6380")
			convey.So(rc.Password, convey.ShouldEqual, "secret")
			convey.So(rc.DB, convey.ShouldEqual, 2)
			convey.So(rc.KeyPrefix, convey.ShouldEqual, "hq:")
		})

		convey.Convey("Then an address without a port should be rejected", func() {
			cfg.RedisAddr = "cache.internal"
			_, err := redisConfig(cfg)
			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
		})

		convey.Convey("Then a non-numeric port should be rejected", func() {
			cfg.RedisAddr = "cache.internal:redis"
			_, err := redisConfig(cfg)
			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
		})
	})
}

func TestOpenStore(t *testing.T) {
	convey.Convey("Given the configured backend", t, func() {
		ctx := context.Background()
		cfg := config.New()

		convey.Convey("When it is memory", func() {
			store, closer, err := openStore(ctx, cfg, logger.Nop())

			convey.Convey("Then an in-memory store should be returned", func() {
				convey.So(err, convey.ShouldBeNil)
				_, ok := store.(*memory.Store)
				convey.So(ok, convey.ShouldBeTrue)
				convey.So(closer.Close(), convey.ShouldBeNil)
			})
		})

		convey.Convey("When it is unknown", func() {
			cfg.RemoteBackend = "etcd"
			_, _, err := openStore(ctx, cfg, logger.Nop())

			convey.Convey("Then it should fail as invalid config", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		})
	})
}

func TestWiring(t *testing.T) {
	convey.Convey("Given the wired manager and routes", t, func() {
		ctx := context.Background()
		cfg := config.New()
		cfg.SyncWorkerCount = 1

		mgr := newManager(cfg, memory.New(), logger.Nop())
		convey.So(mgr.Start(ctx), convey.ShouldBeNil)
		defer func() { _ = mgr.Stop(ctx) }()

		ts := httptest.NewServer(newMux(cfg, mgr, logger.Nop()))
		defer ts.Close()

		convey.Convey("Then health should answer", func() {
			resp, err := http.Get(ts.URL + "/healthz")
			convey.So(err, convey.ShouldBeNil)
			defer resp.Body.Close()
			convey.So(resp.StatusCode, convey.ShouldEqual, http.StatusOK)
		})

		convey.Convey("Then a player session should open", func() {
			resp, err := http.Post(ts.URL+"/players/ada/session", "application/json", nil)
			convey.So(err, convey.ShouldBeNil)
			defer resp.Body.Close()
			convey.So(resp.StatusCode, convey.ShouldEqual, http.StatusCreated)
			convey.So(mgr.GetStats(ctx).Sessions, convey.ShouldEqual, 1)
		})

		convey.Convey("Then leaderboard limits above the configured cap should be refused", func() {
			_, err := mgr.Open(ctx, "ada")
			convey.So(err, convey.ShouldBeNil)
			resp, err := http.Get(ts.URL + "/players/ada/leaderboard?limit=101")
			convey.So(err, convey.ShouldBeNil)
			defer resp.Body.Close()
			convey.So(resp.StatusCode, convey.ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestRun(t *testing.T) {
	convey.Convey("Given a cancelled context", t, func() {
		cfg := config.New()
		cfg.Addr = "127.0.0.1:0"
		cfg.SyncWorkerCount = 1
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		convey.Convey("Then run should shut down cleanly", func() {
			done := make(chan error, 1)
			go func() { done <- run(ctx, cfg, logger.Nop()) }()

			select {
			case err := <-done:
				convey.So(err, convey.ShouldBeNil)
			case <-time.After(5 * time.Second):
				convey.So("run did not return", convey.ShouldBeEmpty)
			}
		})
	})
}
