package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"log"
	"net/http"
	"time"

	"gnneval/evaluation"
	"gnneval/server/fastview"
	"gnneval/server/root_view"
	"gnneval/store"

	"github.com/gorilla/mux"
)

const shutdownGracePeriod = 5 * time.Second

// Server serves a live view of an evaluation run and the stored reports.
// The page's ele-update channel is consumed by a single websocket client at a
// time; further clients are refused until the current one disconnects.
type Server struct {
	addr     string
	rootView *root_view.RootView
	reports  store.Store
	router   *mux.Router
	// clientSem admits one websocket client.
	clientSem chan struct{}
}

// NewServer builds the views over the passed comparisons and routes:
//
//	GET /                 the live page
//	GET /ws               the page's update websocket
//	GET /api/reports      stored report summaries, newest first
//	GET /api/report       the newest stored report
//	GET /api/report/{id}  a stored report by run id
func NewServer(
	ctx context.Context,
	addr string,
	gridSize int,
	comparisons <-chan evaluation.Comparison,
	reports store.Store,
) (*Server, error) {
	rootView, err := root_view.NewRootView(ctx, gridSize, comparisons)
	if err != nil {
		return nil, fmt.Errorf("build views: %w", err)
	}

	server := &Server{
		addr:      addr,
		rootView:  rootView,
		reports:   reports,
		router:    mux.NewRouter(),
		clientSem: make(chan struct{}, 1),
	}
	server.router.HandleFunc("/", server.serveIndex).Methods(http.MethodGet)
	server.router.HandleFunc("/ws", server.serveWebsocket)
	server.router.HandleFunc("/api/reports", server.serveReports).Methods(http.MethodGet)
	server.router.HandleFunc("/api/report", server.serveReport).Methods(http.MethodGet)
	server.router.HandleFunc("/api/report/{id}", server.serveReport).Methods(http.MethodGet)
	return server, nil
}

// Handler returns the server's router.
func (server *Server) Handler() http.Handler {
	return server.router
}

// Serve listens until ctx is cancelled, then shuts down gracefully.
func (server *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:    server.addr,
		Handler: server.router,
	}

	errs := make(chan error, 1)
	go func() {
		errs <- srv.ListenAndServe()
	}()

	select {
	case err := <-errs:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errs; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

// serveWebsocket publishes the page's ele-updates to the client until it disconnects.
func (server *Server) serveWebsocket(w http.ResponseWriter, r *http.Request) {
	select {
	case server.clientSem <- struct{}{}:
		defer func() { <-server.clientSem }()
	default:
		http.Error(w, "another client is connected", http.StatusConflict)
		return
	}

	cli, err := fastview.NewClient(server.rootView.Updates(), w, r)
	if err != nil {
		log.Println("upgrade:", err)
		return
	}

	if err := cli.Sync(); err != nil {
		log.Println("sync:", err)
	}
}

// Serve the index.html main page.
func (server *Server) serveIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	if err := renderTemplate(w, server.rootView, server.rootView.Last()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (server *Server) serveReports(w http.ResponseWriter, r *http.Request) {
	summaries, err := server.reports.ListReports(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if summaries == nil {
		summaries = []store.Summary{}
	}
	writeJSON(w, summaries)
}

// serveReport writes the report named by the id path variable, or the newest if there is none.
func (server *Server) serveReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	runID, hasID := mux.Vars(r)["id"]
	if !hasID {
		summaries, err := server.reports.ListReports(ctx)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if len(summaries) == 0 {
			http.Error(w, "no reports", http.StatusNotFound)
			return
		}
		runID = summaries[0].RunID
	}

	rep, ok, err := server.reports.GetReport(ctx, runID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, "report not found: "+runID, http.StatusNotFound)
		return
	}
	writeJSON(w, rep)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Println("encode:", err)
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
