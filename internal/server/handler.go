// Package server exposes the REST API over gin. Handlers bind and validate
// the request, call the bank core, and translate domain errors to HTTP codes.
package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/nupay/banking-service/internal/auth"
	"github.com/nupay/banking-service/internal/bank"
	"github.com/nupay/banking-service/internal/events"
	"github.com/nupay/banking-service/internal/model"
)

var logger = log.With().Str("pkg", "server").Logger()

// Handler wires the bank core, the auth gate and the optional event
// publisher into gin handlers.
type Handler struct {
	svc       *bank.Service
	gate      *auth.Gate
	publisher *events.Publisher
}

func NewHandler(svc *bank.Service, gate *auth.Gate, publisher *events.Publisher) *Handler {
	return &Handler{svc: svc, gate: gate, publisher: publisher}
}

const callerKey = "caller_email"

// authRequired resolves the bearer token to a caller email or aborts 401.
func (h *Handler) authRequired(c *gin.Context) {
	email, err := h.gate.Authenticate(c.GetHeader("Authorization"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Invalid token"})
		return
	}
	c.Set(callerKey, email)
	c.Next()
}

func callerEmail(c *gin.Context) string {
	return c.GetString(callerKey)
}

type registerRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
	Name     string `json:"name" binding:"required"`
	Phone    string `json:"phone"`
	CardNo   string `json:"cardNo"`
	AccNo    string `json:"accNo"`
}

func (h *Handler) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": bindingMessage(err)})
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		h.serverError(c, err)
		return
	}
	account := &model.Account{
		Email:        req.Email,
		PasswordHash: hash,
		Name:         req.Name,
		Phone:        req.Phone,
		CardNo:       req.CardNo,
		AccNo:        req.AccNo,
	}
	if err := h.svc.Register(c.Request.Context(), account); err != nil {
		if errors.Is(err, bank.ErrConflict) {
			c.JSON(http.StatusConflict, gin.H{"message": "User already exists"})
			return
		}
		h.serverError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "User registered successfully", "user": account})
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": bindingMessage(err)})
		return
	}

	account, err := h.svc.AccountByEmail(c.Request.Context(), req.Email)
	if err != nil {
		if errors.Is(err, bank.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"message": "User not found"})
			return
		}
		h.serverError(c, err)
		return
	}
	if !auth.CheckPassword(account.PasswordHash, req.Password) {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Invalid credentials"})
		return
	}

	token, err := h.gate.IssueToken(account.Email)
	if err != nil {
		h.serverError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "user": account})
}

func (h *Handler) profile(c *gin.Context) {
	account, err := h.svc.AccountByEmail(c.Request.Context(), callerEmail(c))
	if err != nil {
		if errors.Is(err, bank.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"message": "User not found"})
			return
		}
		h.serverError(c, err)
		return
	}
	c.JSON(http.StatusOK, account)
}

type updateProfileRequest struct {
	Name   *string `json:"name"`
	Email  *string `json:"email" binding:"omitempty,email"`
	Phone  *string `json:"phone"`
	CardNo *string `json:"cardNo"`
	AccNo  *string `json:"accNo"`
}

func (h *Handler) updateProfile(c *gin.Context) {
	var req updateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": bindingMessage(err)})
		return
	}

	account, err := h.svc.UpdateProfile(c.Request.Context(), callerEmail(c), bank.ProfileUpdate{
		Name:   req.Name,
		Email:  req.Email,
		Phone:  req.Phone,
		CardNo: req.CardNo,
		AccNo:  req.AccNo,
	})
	if err != nil {
		switch {
		case errors.Is(err, bank.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"message": "User not found"})
		case errors.Is(err, bank.ErrConflict):
			c.JSON(http.StatusConflict, gin.H{"message": "Profile values already in use"})
		default:
			h.serverError(c, err)
		}
		return
	}
	c.JSON(http.StatusOK, account)
}

type addCardRequest struct {
	RawNfcData string `json:"rawNfcData"`
	NuID       string `json:"nuId"`
	Pin        string `json:"pin" binding:"required"`
}

func (h *Handler) addCard(c *gin.Context) {
	var req addCardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": bindingMessage(err)})
		return
	}
	if req.RawNfcData == "" && req.NuID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Either NFC data or NU ID is required"})
		return
	}

	raw := req.RawNfcData
	if raw == "" {
		raw = req.NuID
	}
	pinHash, err := auth.HashPassword(req.Pin)
	if err != nil {
		h.serverError(c, err)
		return
	}
	card := model.Card{NfcID: auth.CardFingerprint(raw), PinHash: pinHash}

	cards, err := h.svc.AddCard(c.Request.Context(), callerEmail(c), card)
	if err != nil {
		if errors.Is(err, bank.ErrConflict) {
			c.JSON(http.StatusBadRequest, gin.H{"message": "Card or NU ID is already added"})
			return
		}
		h.serverError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Card added successfully", "cards": cards})
}

type transferRequest struct {
	FromName string          `json:"fromName" binding:"required"`
	ToName   string          `json:"toName" binding:"required"`
	Amount   decimal.Decimal `json:"amount"`
}

func (h *Handler) transfer(c *gin.Context) {
	var req transferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": bindingMessage(err)})
		return
	}

	caller, err := h.svc.AccountByEmail(c.Request.Context(), callerEmail(c))
	if err != nil {
		if errors.Is(err, bank.ErrNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"message": "Invalid token"})
			return
		}
		h.serverError(c, err)
		return
	}

	res, err := h.svc.Transfer(c.Request.Context(),
		caller.Name, req.FromName, req.ToName, req.Amount, c.GetHeader("Idempotency-Key"))
	if err != nil {
		h.transferError(c, err)
		return
	}

	if h.publisher != nil {
		ev := model.TransferEvent{
			TransferID: res.Entry.ID,
			FromName:   res.Entry.FromName,
			ToName:     res.Entry.ToName,
			Amount:     res.Entry.Amount,
			CreatedAt:  res.Entry.CreatedAt,
		}
		if err := h.publisher.Push(c.Request.Context(), ev); err != nil {
			logger.Error().Err(err).Str("transfer_id", ev.TransferID).Msg("failed to publish transfer event")
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"message":         "Transfer successful.",
		"senderBalance":   res.SenderBalance,
		"receiverBalance": res.ReceiverBalance,
		"transaction":     res.Entry,
	})
}

func (h *Handler) transferError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, bank.ErrInvalidAmount), errors.Is(err, bank.ErrSameAccount):
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid transfer details."})
	case errors.Is(err, bank.ErrInsufficientFunds):
		c.JSON(http.StatusBadRequest, gin.H{"message": "Insufficient balance."})
	case errors.Is(err, bank.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"message": "Sender or Receiver not found."})
	case errors.Is(err, bank.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"message": "Transfers must come from your own account."})
	case errors.Is(err, bank.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"message": "Idempotency key already used."})
	case errors.Is(err, bank.ErrUnavailable):
		logger.Error().Err(err).Msg("store unavailable during transfer")
		c.JSON(http.StatusServiceUnavailable, gin.H{"message": "Service unavailable, outcome unknown. Retry with the same Idempotency-Key."})
	default:
		h.serverError(c, err)
	}
}

func (h *Handler) transactions(c *gin.Context) {
	name := c.Query("name")
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "name query parameter is required"})
		return
	}
	entries, err := h.svc.Statements(c.Request.Context(), name)
	if err != nil {
		h.serverError(c, err)
		return
	}
	if entries == nil {
		entries = []model.LedgerEntry{}
	}
	c.JSON(http.StatusOK, entries)
}

func (h *Handler) listAccounts(c *gin.Context) {
	accounts, err := h.svc.ListAccounts(c.Request.Context())
	if err != nil {
		h.serverError(c, err)
		return
	}
	if accounts == nil {
		accounts = []model.Account{}
	}
	c.JSON(http.StatusOK, accounts)
}

// serverError logs the cause and returns an opaque 500.
func (h *Handler) serverError(c *gin.Context, err error) {
	logger.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	c.JSON(http.StatusInternalServerError, gin.H{"message": "Server error"})
}

// bindingMessage turns a bind failure into a per-field message instead of
// echoing the validator's internals.
func bindingMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		if fe.Tag() == "required" {
			return fmt.Sprintf("%s is required", fe.Field())
		}
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
	return "invalid request body"
}
