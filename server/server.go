package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"log"
	"net"
	"net/http"
	"time"

	"sdmrl/models"
	"sdmrl/server/fastview"
	"sdmrl/server/root_view"

	"github.com/gorilla/mux"
)

const shutdownGracePeriod = 5 * time.Second

// StatsSource provides the current training statistics by name.
type StatsSource interface {
	Values() map[string]float64
}

// Server serves the training dashboard: a single page whose views are kept current
// over a websocket, and the raw statistics as json. Any number of pages may be open;
// each websocket subscribes to the same stream of view updates.
type Server struct {
	addr     string
	rootView *root_view.RootView
	hub      *fastview.Hub[[]fastview.EleUpdate]
	stats    StatsSource
	router   *mux.Router
}

// NewServer initializes all of the views and returns a server.
// The views consume snapshots until ctx is cancelled or the snapshot chan is closed.
func NewServer(
	ctx context.Context,
	addr string,
	initial *models.Snapshot,
	snapshots <-chan *models.Snapshot,
	stats StatsSource,
) (*Server, error) {
	rootView, err := root_view.NewRootView(ctx, initial, snapshots)
	if err != nil {
		return nil, fmt.Errorf("failed to build views: %w", err)
	}

	server := &Server{
		addr:     addr,
		rootView: rootView,
		hub:      fastview.NewHub(ctx.Done(), rootView.Updates()),
		stats:    stats,
	}

	router := mux.NewRouter()
	router.HandleFunc("/", server.serveIndex).Methods(http.MethodGet)
	router.HandleFunc("/ws", server.serveWebsocket)
	router.HandleFunc("/stats", server.serveStats).Methods(http.MethodGet)
	server.router = router

	return server, nil
}

// Handler returns the server's routes.
func (server *Server) Handler() http.Handler {
	return server.router
}

// Serve listens until ctx is cancelled, then shuts down gracefully.
func (server *Server) Serve(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:    server.addr,
		Handler: server.router,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	shutdownErr := make(chan error, 1)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
		defer cancel()
		shutdownErr <- httpServer.Shutdown(shutdownCtx)
	}()

	log.Printf("serving dashboard on http://%s", server.addr)
	if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}
	return <-shutdownErr
}

// serveWebsocket publishes view updates to the client until it disconnects.
func (server *Server) serveWebsocket(w http.ResponseWriter, r *http.Request) {
	cli, err := fastview.NewClient(server.hub, w, r)
	if err != nil {
		log.Println("websocket:", err)
		return
	}

	if err := cli.Sync(); err != nil {
		log.Println("websocket sync:", err)
	}
}

// serveStats writes the current statistics as a json object.
func (server *Server) serveStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(server.stats.Values()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// Serve the index.html main page, rendered from the latest snapshot.
func (server *Server) serveIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	if err := renderTemplate(w, server.rootView, server.rootView.Model()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func renderTemplate(
	w io.Writer,
	vc fastview.ViewComponent,
	data interface{},
) (err error) {
	t := template.New("index.html")
	var tname string
	if tname, err = vc.Parse(t); err != nil {
		return
	}
	if _, err = t.Parse(`{{ template "` + tname + `" . }}`); err != nil {
		return
	}

	err = t.Execute(w, data)
	return
}
