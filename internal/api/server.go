// Package api is the HTTP surface: the websocket room, file sharing, and
// read-only economy views.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"empirechat/internal/chat"
	"empirechat/internal/economy"
	"empirechat/internal/files"
	"empirechat/internal/ledger"
	"empirechat/internal/market"
	"empirechat/internal/metrics"
)

type Server struct {
	log     *slog.Logger
	hub     *chat.Hub
	store   ledger.Store
	market  *market.Market
	ranks   economy.RankTable
	files   *files.Store
	metrics *metrics.Collector
	topN    int
	mux     *chi.Mux
}

func New(logger *slog.Logger, hub *chat.Hub, store ledger.Store, mkt *market.Market, ranks economy.RankTable, fileStore *files.Store, collector *metrics.Collector, topN int) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		log:     logger,
		hub:     hub,
		store:   store,
		market:  mkt,
		ranks:   ranks,
		files:   fileStore,
		metrics: collector,
		topN:    topN,
		mux:     chi.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	r := s.mux
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	// The websocket connection outlives any sensible timeout; everything
	// else gets one.
	r.Get("/ws", s.hub.ServeWS)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))
		r.Post("/upload", s.handleUpload)
		r.Get("/uploads/{filename}", s.handleDownload)

		r.Route("/v1", func(r chi.Router) {
			r.Get("/ranking", s.handleRanking)
			r.Get("/accounts/{nickname}", s.handleAccount)
			r.Get("/market", s.handleMarket)
		})
	})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	nickname := r.FormValue("nickname")
	if nickname == "" {
		nickname = "Unknown"
	}

	url, err := s.files.SaveUpload(header.Filename, file)
	if err != nil {
		s.log.Error("upload failed", "nickname", nickname, "err", err)
		writeError(w, http.StatusInternalServerError, "upload failed")
		return
	}

	s.hub.Broadcast(economy.Message{
		Msg:  fmt.Sprintf("📂 %s shared a file: %s", nickname, url),
		Type: economy.MsgFile,
	})
	writeJSON(w, http.StatusOK, map[string]any{"url": url})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	path, err := s.files.Path(chi.URLParam(r, "filename"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	http.ServeFile(w, r, path)
}

func (s *Server) handleRanking(w http.ResponseWriter, r *http.Request) {
	limit := s.topN
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		if n < limit {
			limit = n
		}
	}
	top, err := s.store.TopByWealth(r.Context(), limit)
	if err != nil {
		s.log.Error("ranking query failed", "err", err)
		writeError(w, http.StatusInternalServerError, "ranking unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rows": top})
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	nickname := chi.URLParam(r, "nickname")
	acct, err := s.store.Snapshot(r.Context(), nickname)
	if errors.Is(err, ledger.ErrNotFound) {
		writeError(w, http.StatusNotFound, "account not found")
		return
	}
	if err != nil {
		s.log.Error("snapshot failed", "nickname", nickname, "err", err)
		writeError(w, http.StatusInternalServerError, "snapshot unavailable")
		return
	}
	total := acct.Wealth() + s.market.Value(acct.Holdings)
	writeJSON(w, http.StatusOK, map[string]any{
		"account": acct,
		"total":   total,
		"rank":    s.ranks.Rank(total),
	})
}

func (s *Server) handleMarket(w http.ResponseWriter, r *http.Request) {
	prices := map[string]int64{}
	for _, sym := range s.market.Symbols() {
		if p, err := s.market.Price(sym); err == nil {
			prices[sym] = p
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"prices": prices})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}
