package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"
)

const callbackPath = "/callback"

// CallbackServer listens on a loopback port for the redirect that
// finishes browser sign-in and carries the session token.
type CallbackServer struct {
	ln     net.Listener
	srv    *http.Server
	tokens chan string
}

// ListenCallback starts the listener. addr defaults to an ephemeral
// port on 127.0.0.1.
func ListenCallback(addr string) (*CallbackServer, error) {
	if addr == "" {
		addr = "127.0.0.1:0"
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listening for sign-in callback: %w", err)
	}

	c := &CallbackServer{ln: ln, tokens: make(chan string, 1)}
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+callbackPath, c.handleCallback)
	c.srv = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := c.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Sign-in callback server stopped", "error", err)
		}
	}()
	return c, nil
}

// RedirectURL is the address to hand to the server's sign-in endpoint.
func (c *CallbackServer) RedirectURL() string {
	return "http://" + c.ln.Addr().String() + callbackPath
}

func (c *CallbackServer) handleCallback(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "missing token", http.StatusBadRequest)
		return
	}
	select {
	case c.tokens <- token:
	default:
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte("<!doctype html><p>Signed in to billscan. You can close this tab.</p>"))
}

// Wait returns the first token received, or ctx's error.
func (c *CallbackServer) Wait(ctx context.Context) (string, error) {
	select {
	case token := <-c.tokens:
		return token, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (c *CallbackServer) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return c.srv.Shutdown(ctx)
}
