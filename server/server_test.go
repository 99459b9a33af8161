package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"sdmrl/models"
	"sdmrl/server/fastview"

	"github.com/gorilla/websocket"
	. "github.com/smartystreets/goconvey/convey"
)

type fakeStats map[string]float64

func (fs fakeStats) Values() map[string]float64 { return fs }

func gridSnapshot(step int) *models.Snapshot {
	q := func(v float64) []float64 { return []float64{v, v - 1, v - 2, v - 3, v - 4, v - 5, v - 6, v - 7, v - 8} }
	return &models.Snapshot{
		Step:    step,
		Returns: []float64{-10, -8},
		Cells: [][]models.CellValue{
			{{X: 0, Y: 0, CellType: 'W'}, {X: 1, Y: 0, CellType: '+', Q: q(-1)}},
			{{X: 0, Y: 1, CellType: '-', Q: q(-3)}, {X: 1, Y: 1, CellType: 'o', Q: q(-2)}},
		},
	}
}

func get(t *testing.T, url string) (int, string) {
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp.StatusCode, string(body)
}

func TestServer(t *testing.T) {
	Convey("Given a dashboard server", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		snapshots := make(chan *models.Snapshot)
		stats := fakeStats{"global_step": 42, "epsilon": 0.5}
		srv, err := NewServer(ctx, "localhost:0", gridSnapshot(0), snapshots, stats)
		So(err, ShouldBeNil)

		httpServer := httptest.NewServer(srv.Handler())
		defer httpServer.Close()

		Convey("The index page renders every view", func() {
			status, body := get(t, httpServer.URL+"/")
			So(status, ShouldEqual, http.StatusOK)
			So(body, ShouldContainSubstring, `id="readout-step"`)
			So(body, ShouldContainSubstring, `id="learningcurve-line"`)
			So(body, ShouldContainSubstring, `id="1-0-value-text"`)
			So(body, ShouldContainSubstring, `id="0-0-value-polygon"`)
			So(body, ShouldContainSubstring, "location.host")
		})

		Convey("Stats are served as json", func() {
			status, body := get(t, httpServer.URL+"/stats")
			So(status, ShouldEqual, http.StatusOK)
			values := map[string]float64{}
			So(json.Unmarshal([]byte(body), &values), ShouldBeNil)
			So(values["global_step"], ShouldEqual, 42)
		})

		Convey("Unknown routes are not found", func() {
			status, _ := get(t, httpServer.URL+"/nope")
			So(status, ShouldEqual, http.StatusNotFound)
		})

		Convey("Websocket clients receive view updates for new snapshots", func() {
			wsURL := "ws" + strings.TrimPrefix(httpServer.URL, "http") + "/ws"
			conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
			So(err, ShouldBeNil)
			defer conn.Close()

			// Wait for the subscription before publishing.
			deadline := time.Now().Add(2 * time.Second)
			for srv.hub.Subscribers() == 0 && time.Now().Before(deadline) {
				time.Sleep(10 * time.Millisecond)
			}
			So(srv.hub.Subscribers(), ShouldEqual, 1)

			go func() {
				select {
				case snapshots <- gridSnapshot(77):
				case <-ctx.Done():
				}
			}()

			So(conn.SetReadDeadline(time.Now().Add(5*time.Second)), ShouldBeNil)
			var updates []fastview.EleUpdate
			So(conn.ReadJSON(&updates), ShouldBeNil)
			So(updates, ShouldNotBeEmpty)

			// The page model follows the snapshots.
			deadline = time.Now().Add(2 * time.Second)
			for srv.rootView.Model().Progress.Readouts[0].Value != "77" && time.Now().Before(deadline) {
				time.Sleep(10 * time.Millisecond)
			}
			So(srv.rootView.Model().Progress.Readouts[0].Value, ShouldEqual, "77")
		})
	})
}

func TestServeShutdown(t *testing.T) {
	Convey("Serve returns once its context is cancelled", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		srv, err := NewServer(ctx, "localhost:0", &models.Snapshot{}, make(chan *models.Snapshot), fakeStats{})
		So(err, ShouldBeNil)

		served := make(chan error, 1)
		go func() { served <- srv.Serve(ctx) }()
		time.Sleep(50 * time.Millisecond)
		cancel()

		select {
		case err = <-served:
			So(err, ShouldBeNil)
		case <-time.After(10 * time.Second):
			So("serve did not return", ShouldBeEmpty)
		}
	})
}
