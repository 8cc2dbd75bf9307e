package httpapi

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/icefez/dispenser/internal/dispenser/service"
)

// The ops API is read-only by design: every mutation of stock, grants, or
// history goes through the chat surface where it is attributable to a user.

type Dependencies struct {
	Logger *log.Logger
	Addr   string
	Engine *service.Engine
	Access *service.AccessService
}

type Server struct {
	httpServer *http.Server
	logger     *log.Logger
	mux        *http.ServeMux
	engine     *service.Engine
	access     *service.AccessService
}

func NewServer(d Dependencies) *Server {
	mux := http.NewServeMux()

	s := &Server{
		logger: d.Logger,
		mux:    mux,
		engine: d.Engine,
		access: d.Access,
	}

	mux.HandleFunc("GET /v1/stock", s.handleStock)
	mux.HandleFunc("GET /v1/grants", s.handleGrants)
	mux.HandleFunc("GET /v1/history", s.handleHistory)

	handler := loggingMiddleware(d.Logger, mux)

	s.httpServer = &http.Server{
		Addr:              d.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

type stockResponse struct {
	Available int `json:"available"`
}

func (s *Server) handleStock(w http.ResponseWriter, r *http.Request) {
	n, err := s.engine.StockCount(r.Context())
	if err != nil {
		s.logger.Printf("stock error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		return
	}
	writeJSON(w, http.StatusOK, stockResponse{Available: n})
}

type grantResponse struct {
	Identity  string `json:"identity"`
	Label     string `json:"label"`
	ExpiresAt string `json:"expires_at,omitempty"`
	CreatedAt string `json:"created_at"`
}

func (s *Server) handleGrants(w http.ResponseWriter, r *http.Request) {
	grants, err := s.access.List(r.Context())
	if err != nil {
		s.logger.Printf("grants error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		return
	}

	out := make([]grantResponse, 0, len(grants))
	for _, g := range grants {
		gr := grantResponse{
			Identity:  g.Identity,
			Label:     g.Label,
			CreatedAt: g.CreatedAt.Format(time.RFC3339),
		}
		if g.ExpiresAt != nil {
			gr.ExpiresAt = g.ExpiresAt.Format(time.RFC3339)
		}
		out = append(out, gr)
	}
	writeJSON(w, http.StatusOK, out)
}

type historyResponse struct {
	BatchID        string `json:"batch_id"`
	RecipientID    string `json:"recipient_id"`
	RecipientLabel string `json:"recipient_label"`
	CredentialID   string `json:"credential_id"`
	DistributedBy  string `json:"distributed_by,omitempty"`
	Timestamp      string `json:"timestamp"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			writeError(w, http.StatusBadRequest, "bad_limit", "limit must be 1-500")
			return
		}
		limit = n
	}

	recs, err := s.engine.RecentHistory(r.Context(), limit)
	if err != nil {
		s.logger.Printf("history error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		return
	}

	out := make([]historyResponse, 0, len(recs))
	for _, rec := range recs {
		out = append(out, historyResponse{
			BatchID:        rec.BatchID,
			RecipientID:    rec.RecipientID,
			RecipientLabel: rec.RecipientLabel,
			CredentialID:   rec.CredentialID,
			DistributedBy:  rec.DistributedBy,
			Timestamp:      rec.CreatedAt.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorBody{Error: code, Message: msg})
}
