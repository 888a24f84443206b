package config_test

import (
	"errors"
	"runtime"
	"testing"
	"time"

	"github.com/okian/helpquest/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.HistoryLimit, convey.ShouldEqual, 20)
			convey.So(cfg.MaxEvaluationPasses, convey.ShouldEqual, 8)
			convey.So(cfg.SyncTimeout(), convey.ShouldEqual, 5*time.Second)
			convey.So(cfg.SyncWorkerCount, convey.ShouldEqual, runtime.NumCPU())
			convey.So(cfg.LeaderboardLimit, convey.ShouldEqual, 10)
			convey.So(cfg.RemoteBackend, convey.ShouldEqual, config.BackendMemory)
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given a default config", t, func() {
		cfg := config.New()

		cases := []struct {
			name   string
			mutate func(*config.Config)
		}{
			{"empty addr", func(c *config.Config) { c.Addr = " " }},
			{"zero history limit", func(c *config.Config) { c.HistoryLimit = 0 }},
			{"zero evaluation passes", func(c *config.Config) { c.MaxEvaluationPasses = 0 }},
			{"negative sync timeout", func(c *config.Config) { c.SyncTimeoutMS = -1 }},
			{"zero sync queue", func(c *config.Config) { c.SyncQueueSize = 0 }},
			{"negative leaderboard limit", func(c *config.Config) { c.LeaderboardLimit = -1 }},
			{"unknown backend", func(c *config.Config) { c.RemoteBackend = "mongo" }},
			{"postgres without dsn", func(c *config.Config) { c.RemoteBackend = config.BackendPostgres }},
			{"redis without addr", func(c *config.Config) {
				c.RemoteBackend = config.BackendRedis
				c.RedisAddr = ""
			}},
		}
		for _, tc := range cases {
			convey.Convey("When it has "+tc.name, func() {
				tc.mutate(cfg)

				convey.Convey("Then validation should fail", func() {
					convey.So(errors.Is(cfg.Validate(), config.ErrInvalidConfig), convey.ShouldBeTrue)
				})
			})
		}

		convey.Convey("When postgres is selected with a dsn", func() {
			cfg.RemoteBackend = config.BackendPostgres
			cfg.PostgresDSN = "postgres://localhost/helpquest"

			convey.Convey("Then it should be valid", func() {
				convey.So(cfg.Validate(), convey.ShouldBeNil)
			})
		})
	})
}
