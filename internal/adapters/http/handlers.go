package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/bazarly/auth-service/internal/application"
)

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeMessage(w, http.StatusOK, "ok")
}

func (h *Handler) readyz(w http.ResponseWriter, r *http.Request) {
	if h.ready != nil {
		if err := h.ready(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "NOT_READY", err.Error())
			return
		}
	}
	writeMessage(w, http.StatusOK, "ready")
}

func (h *Handler) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := bearerTokenFromHeader(r.Header.Get("Authorization"))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing bearer token")
			return
		}

		claims, err := h.service.ValidateToken(r.Context(), raw)
		if err != nil {
			mapDomainError(w, err)
			return
		}

		ctx := context.WithValue(r.Context(), ctxKeyClaims, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) otpSend(w http.ResponseWriter, r *http.Request) {
	var req application.SendCodeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	res, err := h.service.SendCode(r.Context(), req)
	if err != nil {
		mapDomainError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) otpVerify(w http.ResponseWriter, r *http.Request) {
	var req application.VerifyCodeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	res, err := h.service.VerifyCode(r.Context(), req)
	if err != nil {
		mapDomainError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) registerComplete(w http.ResponseWriter, r *http.Request) {
	var req application.CompleteRegistrationRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	req.DisplayName = strings.TrimSpace(req.DisplayName)

	res, err := h.service.CompleteRegistration(r.Context(), req)
	if err != nil {
		mapDomainError(w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, res)
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	raw, err := bearerTokenFromHeader(r.Header.Get("Authorization"))
	if err != nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing bearer token")
		return
	}

	res, err := h.service.Refresh(r.Context(), raw)
	if err != nil {
		mapDomainError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing bearer token")
		return
	}

	res, err := h.service.Me(r.Context(), claims.IdentityID)
	if err != nil {
		mapDomainError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) meUpdate(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing bearer token")
		return
	}

	var req application.UpdateProfileRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	res, err := h.service.UpdateProfile(r.Context(), claims.IdentityID, req)
	if err != nil {
		mapDomainError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) meDeactivate(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing bearer token")
		return
	}

	if err := h.service.Deactivate(r.Context(), claims.IdentityID); err != nil {
		mapDomainError(w, err)
		return
	}
	writeMessage(w, http.StatusOK, "account deactivated")
}

func (h *Handler) jwks(w http.ResponseWriter, _ *http.Request) {
	keys, err := h.service.PublicJWKs()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"keys": keys})
}

func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("request body must contain a single JSON value")
	}
	return nil
}

func readIP(r *http.Request) string {
	if xff := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); xff != "" {
		parts := strings.Split(xff, ",")
		if len(parts) > 0 {
			return strings.TrimSpace(parts[0])
		}
	}
	addr := strings.TrimSpace(r.RemoteAddr)
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		// RemoteAddr without a port, e.g. from tests or unix sockets.
		return addr
	}
	return host
}
