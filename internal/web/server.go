// Package web serves the local dashboard: a read-only view over the
// relay's processed messages, dedup windows, logs and errors.
package web

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os/exec"
	"runtime"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/inquiry-relay/inquiry-relay/internal/store"
)

//go:embed index.html
var indexHTML []byte

const defaultListLimit = 50

type Server struct {
	store      *store.Store
	port       int
	httpServer *http.Server
}

func NewServer(port int, st *store.Store) *Server {
	return &Server{store: st, port: port}
}

func (s *Server) setupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(securityHeaders)

	r.Get("/", s.handleIndex)

	r.Route("/api", func(r chi.Router) {
		r.Get("/stats", s.handleStats)
		r.Get("/messages", s.handleMessages)
		r.Get("/windows", s.handleWindows)
		r.Get("/logs", s.handleLogs)
		r.Get("/errors", s.handleErrors)
	})

	return r
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Content-Security-Policy",
			"default-src 'self'; script-src 'self' 'unsafe-inline'; style-src 'self' 'unsafe-inline'; connect-src 'self'")
		next.ServeHTTP(w, r)
	})
}

// Start serves the dashboard on localhost and blocks until shutdown
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("127.0.0.1:%d", s.port),
		Handler:      s.setupRouter(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		time.Sleep(500 * time.Millisecond)
		openBrowser(fmt.Sprintf("http://localhost:%d", s.port))
	}()

	fmt.Printf("Dashboard running at http://localhost:%d\n", s.port)
	fmt.Println("Press Ctrl+C to stop")

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(indexHTML)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.GetStats()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]int{
		"total":      stats.Total,
		"relayed":    stats.Relayed,
		"duplicates": stats.Duplicates,
		"failed":     stats.Failed,
		"windows":    stats.Windows,
	})
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	messages, err := s.store.RecentMessages(listLimit(r))
	if err != nil {
		writeError(w, err)
		return
	}

	type messageJSON struct {
		ID              int64     `json:"id"`
		Subject         string    `json:"subject"`
		DisplayTitle    string    `json:"display_title"`
		OriginatorEmail string    `json:"originator_email"`
		Duplicate       bool      `json:"duplicate"`
		WebhookSent     bool      `json:"webhook_sent"`
		Archived        bool      `json:"archived"`
		Error           string    `json:"error"`
		ReceivedAt      time.Time `json:"received_at"`
		ProcessedAt     time.Time `json:"processed_at"`
	}

	out := make([]messageJSON, 0, len(messages))
	for _, m := range messages {
		out = append(out, messageJSON{
			ID:              m.ID,
			Subject:         m.Subject,
			DisplayTitle:    m.DisplayTitle,
			OriginatorEmail: m.OriginatorEmail,
			Duplicate:       m.Duplicate,
			WebhookSent:     m.WebhookSent,
			Archived:        m.Archived,
			Error:           m.Error,
			ReceivedAt:      m.ReceivedAt,
			ProcessedAt:     m.ProcessedAt,
		})
	}
	writeJSON(w, map[string]interface{}{"messages": out})
}

func (s *Server) handleWindows(w http.ResponseWriter, r *http.Request) {
	windows, err := s.store.RecentWindows(listLimit(r))
	if err != nil {
		writeError(w, err)
		return
	}

	type windowJSON struct {
		Email          string    `json:"email"`
		Type           string    `json:"type"`
		FirstSeen      time.Time `json:"first_seen"`
		LastSeen       time.Time `json:"last_seen"`
		DisplaySubject string    `json:"display_subject"`
		Count          int       `json:"count"`
	}

	out := make([]windowJSON, 0, len(windows))
	for _, rec := range windows {
		out = append(out, windowJSON{
			Email:          rec.Identity.Email,
			Type:           rec.Identity.Type,
			FirstSeen:      rec.FirstSeen,
			LastSeen:       rec.LastSeen,
			DisplaySubject: rec.DisplaySubject,
			Count:          rec.Count,
		})
	}
	writeJSON(w, map[string]interface{}{"windows": out})
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	logs, err := s.store.RecentLogs(listLimit(r))
	if err != nil {
		writeError(w, err)
		return
	}

	type logJSON struct {
		Level     string    `json:"level"`
		Message   string    `json:"message"`
		CreatedAt time.Time `json:"created_at"`
	}

	out := make([]logJSON, 0, len(logs))
	for _, e := range logs {
		out = append(out, logJSON{Level: e.Level, Message: e.Message, CreatedAt: e.CreatedAt})
	}
	writeJSON(w, map[string]interface{}{"logs": out})
}

func (s *Server) handleErrors(w http.ResponseWriter, r *http.Request) {
	errs, err := s.store.RecentErrors(listLimit(r))
	if err != nil {
		writeError(w, err)
		return
	}

	type errorJSON struct {
		Stage     string    `json:"stage"`
		Message   string    `json:"message"`
		CreatedAt time.Time `json:"created_at"`
	}

	out := make([]errorJSON, 0, len(errs))
	for _, e := range errs {
		out = append(out, errorJSON{Stage: e.Stage, Message: e.Message, CreatedAt: e.CreatedAt})
	}
	writeJSON(w, map[string]interface{}{"errors": out})
}

func listLimit(r *http.Request) int {
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			return n
		}
	}
	return defaultListLimit
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Warning: failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

// openBrowser launches the default browser (best effort)
func openBrowser(url string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		log.Printf("Could not open browser: %v", err)
	}
}
