package http

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"billscan/internal/auth"
	"billscan/internal/storage"
)

// handleGoogleLogin sends the browser to Google's consent screen. A
// loopback redirect parameter asks for the token to be delivered to a
// local listener instead of the frontend.
func (s *Server) handleGoogleLogin(w http.ResponseWriter, r *http.Request) {
	redirect := r.URL.Query().Get("redirect")
	if redirect != "" && !auth.IsLoopbackURL(redirect) {
		writeError(w, http.StatusBadRequest, "redirect must be a loopback http url")
		return
	}

	state, err := s.jwt.GenerateState(redirect)
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to generate oauth state", "error", err)
		writeError(w, http.StatusInternalServerError, "could not start sign-in")
		return
	}
	http.Redirect(w, r, s.oauth.AuthCodeURL(state), http.StatusFound)
}

func (s *Server) handleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	if e := q.Get("error"); e != "" {
		slog.WarnContext(ctx, "Google sign-in denied", "error", e)
		writeError(w, http.StatusBadRequest, "authorization failed: "+e)
		return
	}

	redirect, err := s.jwt.ValidateState(q.Get("state"))
	if err != nil {
		slog.WarnContext(ctx, "Rejected oauth callback", "error", err)
		writeError(w, http.StatusBadRequest, auth.ErrInvalidState.Error())
		return
	}

	code := q.Get("code")
	if code == "" {
		writeError(w, http.StatusBadRequest, "missing authorization code")
		return
	}

	tok, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		slog.ErrorContext(ctx, "OAuth code exchange failed", "error", err)
		writeError(w, http.StatusBadGateway, "token exchange failed")
		return
	}

	info, err := s.oauth.UserInfo(ctx, tok)
	if err != nil || info.Email == "" {
		slog.ErrorContext(ctx, "Fetching Google profile failed", "error", err)
		writeError(w, http.StatusBadGateway, "could not read Google profile")
		return
	}

	user, err := s.users.UpsertUser(ctx, info.Email, info.Name, tok.RefreshToken)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to store user", "email", info.Email, "error", err)
		writeError(w, http.StatusInternalServerError, "could not store user")
		return
	}

	token, err := s.jwt.Generate(user)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to issue session token", "user_id", user.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "could not issue session")
		return
	}

	slog.InfoContext(ctx, "User signed in", "user_id", user.ID, "email", user.Email)

	switch {
	case redirect != "":
		http.Redirect(w, r, withToken(redirect, token), http.StatusFound)
	case s.frontendURL != "":
		http.Redirect(w, r, withToken(s.frontendURL+"/auth/callback", token), http.StatusFound)
	default:
		http.SetCookie(w, &http.Cookie{
			Name:     auth.CookieName,
			Value:    token,
			Path:     "/",
			MaxAge:   int(s.jwt.Lifetime().Seconds()),
			HttpOnly: true,
			Secure:   r.TLS != nil,
			SameSite: http.SameSiteLaxMode,
		})
		http.Redirect(w, r, "/", http.StatusFound)
	}
}

func withToken(target, token string) string {
	u, err := url.Parse(target)
	if err != nil {
		return target
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}

// handleLogout clears the dashboard cookie. API clients drop their token.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, "/", http.StatusFound)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	user, err := s.users.GetUser(r.Context(), auth.UserID(r.Context()))
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to load user", "error", err)
		writeError(w, http.StatusInternalServerError, "could not load user")
		return
	}
	writeJSON(w, http.StatusOK, userResponse{ID: user.ID, Email: user.Email, Name: user.Name})
}
