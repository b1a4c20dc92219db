// Package service exposes a small read-only HTTP surface for
// introspecting a running Hub: GetInfo, served as GET /info.
package service

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/farcasterxyz/hubcore/common"
)

// Source is the narrow view of a Hub the service needs.
type Source interface {
	Version() string
	Nickname() string
	IsSynced() bool
	RootHash() [20]byte
}

// Service serves GetInfo over HTTP, for operators and for health
// checks.
type Service struct {
	sync.Mutex

	bindAddr string
	hub      Source
	logger   *logrus.Entry
	mux      *http.ServeMux
	srv      *http.Server
}

// NewService builds a Service bound to addr, with handlers registered
// on its own ServeMux so it never collides with a host application's
// DefaultServeMux.
func NewService(bindAddr string, hub Source, logger *logrus.Entry) *Service {
	s := &Service{
		bindAddr: bindAddr,
		hub:      hub,
		logger:   logger,
		mux:      http.NewServeMux(),
	}
	s.registerHandlers()
	return s
}

func (s *Service) registerHandlers() {
	s.logger.Debug("registering hub status handlers")
	s.mux.HandleFunc("/info", s.makeHandler(s.getInfo))
}

func (s *Service) makeHandler(fn func(http.ResponseWriter, *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.Lock()
		defer s.Unlock()
		w.Header().Set("Access-Control-Allow-Origin", "*")
		fn(w, r)
	}
}

// Serve calls ListenAndServe. It blocks; callers run it in its own
// goroutine.
func (s *Service) Serve() {
	s.logger.WithField("bind_addr", s.bindAddr).Info("serving hub status API")
	s.srv = &http.Server{Addr: s.bindAddr, Handler: s.mux}
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		s.logger.WithError(err).Error("status API stopped")
	}
}

// Stop shuts the HTTP server down, if it was ever started.
func (s *Service) Stop() error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Close()
}

type infoResponse struct {
	Version  string `json:"version"`
	Nickname string `json:"nickname"`
	IsSynced bool   `json:"is_synced"`
	RootHash string `json:"root_hash"`
}

func (s *Service) getInfo(w http.ResponseWriter, r *http.Request) {
	root := s.hub.RootHash()
	resp := infoResponse{
		Version:  s.hub.Version(),
		Nickname: s.hub.Nickname(),
		IsSynced: s.hub.IsSynced(),
		RootHash: common.EncodeToString(root[:]),
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.WithError(err).Error("failed to encode GetInfo response")
	}
}
