package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"nestzone-clara-backend/internal/dialogue"
	"nestzone-clara-backend/internal/nestzone"
)

// POST /api/register
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var form dialogue.RegistrationForm
	if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	sid := s.sessionFor(w, r, "")
	ctx, cancel := context.WithTimeout(r.Context(), chatTimeout)
	defer cancel()
	out, err := s.turn(sid, func(st *dialogue.State) (dialogue.Outcome, error) {
		return s.engine.SubmitRegistration(ctx, st, form)
	})
	if err != nil {
		s.writeTurnError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.chatResponse(sid, out, ""))
}

// POST /api/login
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var form dialogue.LoginForm
	if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	sid := s.sessionFor(w, r, "")
	ctx, cancel := context.WithTimeout(r.Context(), chatTimeout)
	defer cancel()
	out, err := s.turn(sid, func(st *dialogue.State) (dialogue.Outcome, error) {
		return s.engine.SubmitLogin(ctx, st, form)
	})
	if err != nil {
		s.writeTurnError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.chatResponse(sid, out, ""))
}

// POST /api/logout
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	sid := s.sessionFor(w, r, "")
	ctx, cancel := context.WithTimeout(r.Context(), chatTimeout)
	defer cancel()
	out, err := s.turn(sid, func(st *dialogue.State) (dialogue.Outcome, error) {
		return s.engine.Logout(ctx, st), nil
	})
	if err != nil {
		s.writeTurnError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.chatResponse(sid, out, ""))
}

// account returns the logged-in visitor of the session, if any.
func (s *Server) account(sid string) *dialogue.Account {
	snap, ok := s.store.Snapshot(sid)
	if !ok {
		return nil
	}
	return snap.Account
}

// GET /api/me
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	acct := s.account(s.sessionFor(w, r, ""))
	if acct == nil {
		s.writeError(w, http.StatusUnauthorized, "not logged in")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), chatTimeout)
	defer cancel()
	info, err := s.backend.UserInfo(ctx, acct.Token)
	if err != nil {
		s.writeBackendError(w, err, "failed to load account")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"account": acct, "user": info})
}

// GET /api/properties/{id}
func (s *Server) handleGetProperty(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		s.writeError(w, http.StatusBadRequest, "property id is required")
		return
	}
	var token string
	if acct := s.account(s.sessionFor(w, r, "")); acct != nil {
		token = acct.Token
	}
	ctx, cancel := context.WithTimeout(r.Context(), chatTimeout)
	defer cancel()
	p, err := s.backend.GetProperty(ctx, token, nestzone.ID(id))
	if err != nil {
		s.writeBackendError(w, err, "failed to load property")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"property": p, "title": p.DisplayTitle(), "image": p.Image()})
}

// GET /api/properties/mine
func (s *Server) handleMyProperties(w http.ResponseWriter, r *http.Request) {
	acct := s.account(s.sessionFor(w, r, ""))
	if acct == nil {
		s.writeError(w, http.StatusUnauthorized, "not logged in")
		return
	}
	q := r.URL.Query()
	filter := nestzone.PropertyFilter{
		LocationID: nestzone.ID(strings.TrimSpace(q.Get("locationId"))),
		Type:       strings.TrimSpace(q.Get("type")),
	}
	ctx, cancel := context.WithTimeout(r.Context(), chatTimeout)
	defer cancel()
	props, err := s.backend.SearchUserProperties(ctx, acct.Token, filter)
	if err != nil {
		s.writeBackendError(w, err, "failed to load your properties")
		return
	}
	if props == nil {
		props = []nestzone.Property{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"properties": props})
}

// DELETE /api/properties/{id}
func (s *Server) handleDeleteProperty(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		s.writeError(w, http.StatusBadRequest, "property id is required")
		return
	}
	acct := s.account(s.sessionFor(w, r, ""))
	if acct == nil {
		s.writeError(w, http.StatusUnauthorized, "not logged in")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), chatTimeout)
	defer cancel()
	msg, err := s.backend.DeleteProperty(ctx, acct.Token, nestzone.ID(id))
	if err != nil {
		s.writeBackendError(w, err, "failed to delete property")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": msg})
}

// POST /api/properties/bookmark
func (s *Server) handleBookmark(w http.ResponseWriter, r *http.Request) {
	var body nestzone.Bookmark
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.PropertyID == "" {
		s.writeError(w, http.StatusBadRequest, "propertyId is required")
		return
	}
	acct := s.account(s.sessionFor(w, r, ""))
	if acct == nil {
		s.writeError(w, http.StatusUnauthorized, "not logged in")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), chatTimeout)
	defer cancel()
	msg, err := s.backend.BookmarkProperty(ctx, acct.Token, body)
	if err != nil {
		s.writeBackendError(w, err, "failed to bookmark property")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": msg})
}
