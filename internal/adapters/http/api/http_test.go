package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/okian/helpquest/internal/adapters/http/api"
	"github.com/okian/helpquest/internal/adapters/remote/memory"
	service "github.com/okian/helpquest/internal/app"
	"github.com/okian/helpquest/internal/app/session"
	"github.com/okian/helpquest/internal/app/syncer"
	"github.com/okian/helpquest/internal/domain/quest"
	"github.com/okian/helpquest/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.Init()
}

type errorBody struct {
	Code string `json:"code"`
}

func newTestServer(store *memory.Store) (*httptest.Server, *service.Manager) {
	coord := syncer.New(store, syncer.WithTimeout(time.Second))
	mgr := service.New(coord, service.WithWorkerCount(1))
	mux := http.NewServeMux()
	api.NewServer(mgr, mgr, api.WithMaxLeaderboardLimit(5)).Register(mux)
	return httptest.NewServer(mux), mgr
}

func do(srv *httptest.Server, method, path string, body any) *http.Response {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req, err := http.NewRequest(method, srv.URL+path, &buf)
	if err != nil {
		panic(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		panic(err)
	}
	return resp
}

func decode[T any](resp *http.Response) T {
	defer func() { _ = resp.Body.Close() }()
	var v T
	_ = json.NewDecoder(resp.Body).Decode(&v)
	return v
}

func TestPlayerRoutes(t *testing.T) {
	Convey("Given an API server over an in-memory remote", t, func() {
		store := memory.New()
		srv, mgr := newTestServer(store)
		defer srv.Close()

		Convey("When the state of an unopened session is requested", func() {
			resp := do(srv, http.MethodGet, "/players/ada", nil)

			Convey("Then it should be not found", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusNotFound)
				So(decode[errorBody](resp).Code, ShouldEqual, "session_not_found")
			})
		})

		Convey("When a session is opened", func() {
			resp := do(srv, http.MethodPost, "/players/ada/session", nil)
			st := decode[session.State](resp)

			Convey("Then the hydrated state should be returned", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusCreated)
				So(st.Hydrated, ShouldBeTrue)
				So(st.Player.Level, ShouldEqual, 1)
				So(st.Player.Experience, ShouldEqual, 10)
				So(st.NextLevelThreshold, ShouldEqual, 100)
			})

			Convey("And experience is granted", func() {
				resp := do(srv, http.MethodPost, "/players/ada/experience", map[string]any{"amount": 90, "source": "test"})
				st := decode[session.State](resp)

				Convey("Then the player should level up", func() {
					So(resp.StatusCode, ShouldEqual, http.StatusOK)
					So(st.Player.Level, ShouldEqual, 2)
					So(st.Player.Experience, ShouldEqual, 0)
				})
			})

			Convey("And a negative grant is posted", func() {
				resp := do(srv, http.MethodPost, "/players/ada/experience", map[string]any{"amount": -1})

				Convey("Then it should be rejected", func() {
					So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
				})
			})

			Convey("And a grant without amount is posted", func() {
				resp := do(srv, http.MethodPost, "/players/ada/experience", map[string]any{"source": "x"})

				Convey("Then it should be rejected", func() {
					So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
				})
			})

			Convey("And a quest is completed", func() {
				resp := do(srv, http.MethodPost, "/players/ada/quests/phone-checkin/complete", nil)
				st := decode[session.State](resp)

				Convey("Then the quest should be recorded", func() {
					So(resp.StatusCode, ShouldEqual, http.StatusOK)
					So(st.CompletedQuests, ShouldResemble, []string{"phone-checkin"})
					So(st.Player.CompletedQuestCount, ShouldEqual, 1)
				})
			})

			Convey("And a locked quest is completed", func() {
				resp := do(srv, http.MethodPost, "/players/ada/quests/organize-drive/complete", nil)

				Convey("Then it should conflict", func() {
					So(resp.StatusCode, ShouldEqual, http.StatusConflict)
					So(decode[errorBody](resp).Code, ShouldEqual, "quest_locked")
				})
			})

			Convey("And an unknown quest is completed", func() {
				resp := do(srv, http.MethodPost, "/players/ada/quests/nope/complete", nil)

				Convey("Then it should be not found", func() {
					So(resp.StatusCode, ShouldEqual, http.StatusNotFound)
					So(decode[errorBody](resp).Code, ShouldEqual, "unknown_quest")
				})
			})

			Convey("And an unknown achievement is unlocked", func() {
				resp := do(srv, http.MethodPost, "/players/ada/achievements/nope/unlock", nil)

				Convey("Then it should be not found", func() {
					So(resp.StatusCode, ShouldEqual, http.StatusNotFound)
					So(decode[errorBody](resp).Code, ShouldEqual, "unknown_achievement")
				})
			})

			Convey("And achievement progress reaches its total", func() {
				resp := do(srv, http.MethodPost, "/players/ada/achievements/complete_5_quests/progress", map[string]int{"current": 5})
				st := decode[session.State](resp)

				Convey("Then the achievement should unlock and pay its reward", func() {
					So(resp.StatusCode, ShouldEqual, http.StatusOK)
					So(st.Player.Experience, ShouldEqual, 60)
					for _, a := range st.Achievements {
						if a.ID == "complete_5_quests" {
							So(a.Unlocked, ShouldBeTrue)
						}
					}
				})
			})

			Convey("And negative achievement progress is posted", func() {
				resp := do(srv, http.MethodPost, "/players/ada/achievements/complete_5_quests/progress", map[string]int{"current": -2})

				Convey("Then it should be rejected", func() {
					So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
					So(decode[errorBody](resp).Code, ShouldEqual, "bad_request")
				})
			})

			Convey("And achievement progress without a value is posted", func() {
				resp := do(srv, http.MethodPost, "/players/ada/achievements/complete_5_quests/progress", map[string]int{})

				Convey("Then it should be rejected", func() {
					So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
				})
			})

			Convey("And progress of an unknown achievement is posted", func() {
				resp := do(srv, http.MethodPost, "/players/ada/achievements/nope/progress", map[string]int{"current": 1})

				Convey("Then it should be not found", func() {
					So(resp.StatusCode, ShouldEqual, http.StatusNotFound)
					So(decode[errorBody](resp).Code, ShouldEqual, "unknown_achievement")
				})
			})

			Convey("And the profile is updated", func() {
				resp := do(srv, http.MethodPut, "/players/ada/profile", map[string]string{"name": "Ada", "avatar": "ada.png"})
				st := decode[session.State](resp)

				Convey("Then the profile achievement should unlock", func() {
					So(resp.StatusCode, ShouldEqual, http.StatusOK)
					So(st.Player.Name, ShouldEqual, "Ada")
					So(st.Player.Experience, ShouldEqual, 40)
				})
			})

			Convey("And the open notification is dismissed", func() {
				resp := do(srv, http.MethodPost, "/players/ada/notification/dismiss", nil)

				Convey("Then it should report the dismissal", func() {
					So(resp.StatusCode, ShouldEqual, http.StatusOK)
					So(decode[map[string]any](resp)["dismissed"], ShouldEqual, true)
				})
			})

			Convey("And the history is cleared", func() {
				resp := do(srv, http.MethodDelete, "/players/ada/history", nil)
				_ = resp.Body.Close()
				st := decode[session.State](do(srv, http.MethodGet, "/players/ada", nil))

				Convey("Then no history should remain", func() {
					So(resp.StatusCode, ShouldEqual, http.StatusNoContent)
					So(st.History, ShouldBeEmpty)
				})
			})

			Convey("And a blocking sync is requested", func() {
				resp := do(srv, http.MethodPost, "/players/ada/sync?wait=true", nil)
				st := decode[session.State](resp)

				Convey("Then the remote should hold the state", func() {
					So(resp.StatusCode, ShouldEqual, http.StatusOK)
					So(st.LastSyncError, ShouldBeEmpty)
					snap, err := store.Fetch(context.Background(), "ada")
					So(err, ShouldBeNil)
					So(snap.Experience, ShouldEqual, 10)
				})

				Convey("And the leaderboard is requested", func() {
					resp := do(srv, http.MethodGet, "/players/ada/leaderboard?limit=3", nil)
					entries := decode[[]map[string]any](resp)

					Convey("Then the current user should be ranked", func() {
						So(resp.StatusCode, ShouldEqual, http.StatusOK)
						So(entries, ShouldHaveLength, 1)
						So(entries[0]["isCurrentUser"], ShouldEqual, true)
					})
				})
			})

			Convey("And the sync is failing", func() {
				store.SetFailure(context.DeadlineExceeded)
				resp := do(srv, http.MethodPost, "/players/ada/sync?wait=true", nil)

				Convey("Then a bad gateway should be reported", func() {
					So(resp.StatusCode, ShouldEqual, http.StatusBadGateway)
					So(decode[errorBody](resp).Code, ShouldEqual, "sync_failed")
				})
			})

			Convey("And a background sync is requested before the workers run", func() {
				resp := do(srv, http.MethodPost, "/players/ada/sync", nil)

				Convey("Then it should be unavailable", func() {
					So(resp.StatusCode, ShouldEqual, http.StatusServiceUnavailable)
				})
			})

			Convey("And a background sync is requested with workers running", func() {
				So(mgr.Start(context.Background()), ShouldBeNil)
				defer func() { _ = mgr.Stop(context.Background()) }()
				resp := do(srv, http.MethodPost, "/players/ada/sync", nil)

				Convey("Then it should be accepted", func() {
					So(resp.StatusCode, ShouldEqual, http.StatusAccepted)
				})
			})

			Convey("And the leaderboard limit is too high", func() {
				resp := do(srv, http.MethodGet, "/players/ada/leaderboard?limit=50", nil)

				Convey("Then it should be rejected", func() {
					So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
					So(decode[errorBody](resp).Code, ShouldEqual, "limit_exceeded")
				})
			})

			Convey("And progress is reset", func() {
				_ = do(srv, http.MethodPost, "/players/ada/quests/"+quest.DefaultQuests()[0].ID+"/complete", nil).Body.Close()
				resp := do(srv, http.MethodPost, "/players/ada/reset", nil)
				st := decode[session.State](resp)

				Convey("Then the player should be back at level 1", func() {
					So(resp.StatusCode, ShouldEqual, http.StatusOK)
					So(st.Player.Level, ShouldEqual, 1)
					So(st.CompletedQuests, ShouldBeEmpty)
				})
			})

			Convey("And the session is closed", func() {
				resp := do(srv, http.MethodDelete, "/players/ada/session", nil)
				_ = resp.Body.Close()

				Convey("Then later requests should be not found", func() {
					So(resp.StatusCode, ShouldEqual, http.StatusNoContent)
					again := do(srv, http.MethodGet, "/players/ada", nil)
					_ = again.Body.Close()
					So(again.StatusCode, ShouldEqual, http.StatusNotFound)
				})
			})
		})
	})
}

func TestServiceRoutes(t *testing.T) {
	Convey("Given an API server", t, func() {
		srv, _ := newTestServer(memory.New())
		defer srv.Close()

		Convey("Then health should be ok", func() {
			resp := do(srv, http.MethodGet, "/healthz", nil)
			So(resp.StatusCode, ShouldEqual, http.StatusOK)
			So(decode[map[string]string](resp)["status"], ShouldEqual, "ok")
		})

		Convey("Then stats should be served", func() {
			resp := do(srv, http.MethodGet, "/stats", nil)
			So(resp.StatusCode, ShouldEqual, http.StatusOK)
			st := decode[service.Stats](resp)
			So(st.Started, ShouldBeFalse)
			So(st.WorkerCount, ShouldEqual, 1)
		})

		Convey("Then metrics should be exposed", func() {
			resp := do(srv, http.MethodGet, "/metrics", nil)
			_ = resp.Body.Close()
			So(resp.StatusCode, ShouldEqual, http.StatusOK)
		})

		Convey("Then a wrong method should be refused", func() {
			resp := do(srv, http.MethodDelete, "/stats", nil)
			_ = resp.Body.Close()
			So(resp.StatusCode, ShouldEqual, http.StatusMethodNotAllowed)
		})
	})
}
