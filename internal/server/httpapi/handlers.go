package httpapi

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/dmitrijs2005/walletgate/internal/common"
	"github.com/dmitrijs2005/walletgate/internal/server/models"
	"github.com/dmitrijs2005/walletgate/internal/server/services"
	"github.com/shopspring/decimal"
)

// maxBodyBytes bounds request bodies; SIWE messages are well under this.
const maxBodyBytes = 64 << 10

type loginRequest struct {
	Message   string `json:"message"`
	Signature string `json:"signature"`
}

type creditRequest struct {
	UserID      int64           `json:"userId"`
	Amount      decimal.Decimal `json:"amount"`
	ExternalRef string          `json:"externalRef"`
}

type debitRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	ExternalRef string          `json:"externalRef"`
}

type resetRequest struct {
	Keys []string `json:"keys"`
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %w", common.ErrInvalidRequest, err)
	}
	return nil
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.gateway.Login(r.Context(), services.LoginRequest{
		Message:   req.Message,
		Signature: req.Signature,
		RemoteIP:  clientIP(r),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handlePaymentWebhook(w http.ResponseWriter, r *http.Request) {
	secret := []byte(r.Header.Get(common.WebhookSecretHeaderName))
	if len(s.webhookSecret) == 0 || subtle.ConstantTimeCompare(secret, s.webhookSecret) != 1 {
		s.logger.Warn(r.Context(), "webhook rejected", "remote_ip", clientIP(r))
		s.writeError(w, r, common.ErrorUnauthorized)
		return
	}

	var req creditRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.UserID <= 0 {
		s.writeError(w, r, fmt.Errorf("%w: userId is required", common.ErrInvalidRequest))
		return
	}

	receipt, err := s.ledger.Credit(r.Context(), req.UserID, req.Amount, req.ExternalRef)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, receipt)
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())

	b, err := s.ledger.BalanceOf(r.Context(), userID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, b)
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())

	page, err := parsePage(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	list, err := s.ledger.Transactions(r.Context(), userID, page)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, list)
}

func parsePage(r *http.Request) (models.Page, error) {
	q := r.URL.Query()
	var page models.Page

	for name, dst := range map[string]*int{"limit": &page.Limit, "offset": &page.Offset} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return page, fmt.Errorf("%w: bad %s", common.ErrInvalidRequest, name)
		}
		*dst = n
	}

	switch q.Get("order") {
	case "", "desc":
	case "asc":
		page.Ascending = true
	default:
		return page, fmt.Errorf("%w: order must be asc or desc", common.ErrInvalidRequest)
	}

	return page, nil
}

func (s *Server) handleDebit(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())

	var req debitRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	receipt, err := s.ledger.Debit(r.Context(), userID, req.Amount, req.ExternalRef)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, receipt)
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())

	a, err := s.ledger.Audit(r.Context(), userID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleResetRateLimit(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	// An empty body resets every key.
	if err := decodeBody(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(w, r, err)
		return
	}

	s.limiter.Reset(req.Keys...)
	s.logger.Info(r.Context(), "login rate limit reset", "keys", req.Keys)

	writeJSON(w, http.StatusOK, map[string]any{"reset": true, "keys": req.Keys})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		if err := s.db.PingContext(r.Context()); err != nil {
			s.logger.Error(r.Context(), "health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
