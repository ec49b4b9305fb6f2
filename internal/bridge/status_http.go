package bridge

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/gaspardpetit/editorbridge/internal/lifecycle"
	"github.com/gaspardpetit/editorbridge/internal/logx"
)

// TokenHeader carries the control token.
const TokenHeader = "X-Auth-Token"

// VersionInfo describes the running binary.
type VersionInfo struct {
	Version   string `json:"version"`
	BuildSHA  string `json:"build_sha"`
	BuildDate string `json:"build_date"`
}

type statusResponse struct {
	Status
	Restricted bool `json:"restricted_mode"`
}

// NewStatusHandler serves the status and control API. Control routes need
// token in the X-Auth-Token header.
func NewStatusHandler(b *Bridge, coord *lifecycle.Coordinator, token string, vi VersionInfo) http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"http://localhost:*", "http://127.0.0.1:*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", TokenHeader},
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("ok")) })
	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, statusResponse{Status: b.Status(), Restricted: coord.Restricted()})
	})
	r.Get("/version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, vi)
	})

	r.Route("/control", func(cr chi.Router) {
		cr.Use(tokenMiddleware(token))
		cr.Post("/reconnect", func(w http.ResponseWriter, r *http.Request) {
			handleEvent(w, r, coord, lifecycle.ManualReconnect)
		})
		cr.Post("/lifecycle/{event}", func(w http.ResponseWriter, r *http.Request) {
			ev, err := lifecycle.ParseEvent(chi.URLParam(r, "event"))
			if err != nil {
				writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
				return
			}
			handleEvent(w, r, coord, ev)
		})
		cr.Post("/port/{port}", func(w http.ResponseWriter, r *http.Request) {
			port, err := strconv.Atoi(chi.URLParam(r, "port"))
			if err != nil || port < 1 || port > 65535 {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid port"})
				return
			}
			ep := b.SetPort(port)
			writeJSON(w, http.StatusOK, ep)
		})
	})
	return r
}

func handleEvent(w http.ResponseWriter, r *http.Request, coord *lifecycle.Coordinator, ev lifecycle.Event) {
	if err := coord.Handle(r.Context(), ev); err != nil {
		logx.Log.Warn().Err(err).Str("event", ev.String()).Msg("lifecycle event failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"event": ev.String()})
}

func tokenMiddleware(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(TokenHeader)
			if token == "" || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// StartStatusServer serves h on addr and returns the address it listens on.
func StartStatusServer(ctx context.Context, addr string, h http.Handler) (string, error) {
	srv := &http.Server{Handler: h, ReadHeaderTimeout: 5 * time.Second}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", err
	}
	actual := ln.Addr().String()
	go func() {
		<-ctx.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}()
	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			logx.Log.Error().Err(err).Str("addr", actual).Msg("status server error")
		}
	}()
	return actual, nil
}

// LoadOrCreateToken returns the control token stored at path, creating a
// random one readable only by the owner when the file does not exist.
func LoadOrCreateToken(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err == nil {
		if tok := strings.TrimSpace(string(b)); tok != "" {
			return tok, nil
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", err
	}
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	tok := hex.EncodeToString(raw)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, []byte(tok+"\n"), 0o600); err != nil {
		return "", err
	}
	return tok, nil
}
