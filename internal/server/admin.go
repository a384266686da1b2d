package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"

	"github.com/Real-Craft-Tech/stampwire/internal/config"
	"github.com/Real-Craft-Tech/stampwire/internal/dispatcher"
)

const defaultListLimit = 50

// GenerateAdminToken issues a short-lived HS256 bearer token for the admin
// API.
func GenerateAdminToken(cfg config.JWTConfig, subject string) (string, error) {
	now := time.Now()

	claims := jwt.RegisteredClaims{
		Issuer:    cfg.Issuer,
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(cfg.TTL)),
		NotBefore: jwt.NewNumericDate(now),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(cfg.Secret))
}

// AdminAuthMiddleware rejects requests without a valid admin bearer token.
func AdminAuthMiddleware(cfg config.JWTConfig) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractBearerToken(r)
			if token == "" {
				writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
				return
			}

			if err := validateAdminToken(cfg, token); err != nil {
				log.Debug().Err(err).Msg("Rejected admin token")
				writeError(w, http.StatusUnauthorized, "invalid_token", "invalid or expired token")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func validateAdminToken(cfg config.JWTConfig, tokenString string) error {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(cfg.Secret), nil
	}, jwt.WithIssuer(cfg.Issuer), jwt.WithExpirationRequired())
	if err != nil {
		return err
	}
	if !token.Valid {
		return errors.New("invalid token")
	}
	return nil
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if after, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return after
	}
	return ""
}

// adminHandlers expose the receipt log, dispatch queue, and DLQ for
// operators.
type adminHandlers struct {
	server *Server
	queue  *dispatcher.QueueStore
}

func newAdminHandlers(srv *Server) *adminHandlers {
	return &adminHandlers{
		server: srv,
		queue:  dispatcher.NewQueueStore(srv.db),
	}
}

func (h *adminHandlers) listReceipts(w http.ResponseWriter, r *http.Request) {
	receipts, err := h.server.receipts.Recent(r.Context(), listLimit(r))
	if err != nil {
		log.Error().Err(err).Msg("Failed to list receipts")
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list receipts")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"receipts": receipts})
}

func (h *adminHandlers) listQueue(w http.ResponseWriter, r *http.Request) {
	queued, err := h.queue.ListQueue(r.Context(), listLimit(r))
	if err != nil {
		log.Error().Err(err).Msg("Failed to list queue")
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list queue")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"deliveries": queued})
}

func (h *adminHandlers) listDLQ(w http.ResponseWriter, r *http.Request) {
	entries, err := h.queue.ListDLQ(r.Context(), listLimit(r))
	if err != nil {
		log.Error().Err(err).Msg("Failed to list DLQ")
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list DLQ")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (h *adminHandlers) requeueDLQ(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if err := h.queue.Requeue(r.Context(), id); err != nil {
		log.Error().Err(err).Str("dlq_id", id).Msg("Failed to requeue DLQ entry")
		writeError(w, http.StatusNotFound, "not_found", "no such DLQ entry")
		return
	}

	log.Info().Str("dlq_id", id).Msg("Requeued DLQ entry")
	writeJSON(w, http.StatusOK, map[string]any{"requeued": true})
}

func listLimit(r *http.Request) int {
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 1000 {
			return n
		}
	}
	return defaultListLimit
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"error": message, "code": code})
}
