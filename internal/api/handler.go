// Package api serves voucher issuance over HTTP.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/udao-org/udao-voucher/internal/auth"
	"github.com/udao-org/udao-voucher/internal/voucher"
)

// Signed-request actions accepted by the voucher routes. The request's
// resource_id must name the family.
const (
	ActionIssue  = "voucher.issue"
	ActionList   = "voucher.list"
	ActionLookup = "voucher.get"
)

// DigestHeader carries the typed-data digest of an issued voucher.
const DigestHeader = "X-Voucher-Digest"

// Ledger is satisfied by *ledger.Ledger.
type Ledger interface {
	Record(ctx context.Context, v *voucher.Voucher) (bool, error)
	List(ctx context.Context, family string, account common.Address, offset, limit int64) ([]json.RawMessage, error)
	Count(ctx context.Context, family string, account common.Address) (int64, error)
	Lookup(ctx context.Context, digest common.Hash) (json.RawMessage, error)
}

// Access decides who may obtain vouchers. Admins issue any voucher of any
// family. Other wallets may only request vouchers addressed to themselves,
// and only for the families listed in SelfService.
type Access struct {
	Admins      []common.Address
	SelfService []string
}

// Handler wires the voucher routes onto a Gin engine.
type Handler struct {
	signers     map[string]*voucher.Signer
	order       []string
	ledger      Ledger
	admins      map[common.Address]bool
	selfService map[string]bool
	log         *zap.Logger
}

func NewHandler(signers []*voucher.Signer, ledger Ledger, access Access, log *zap.Logger) *Handler {
	h := &Handler{
		signers:     make(map[string]*voucher.Signer, len(signers)),
		ledger:      ledger,
		admins:      make(map[common.Address]bool, len(access.Admins)),
		selfService: make(map[string]bool, len(access.SelfService)),
		log:         log,
	}
	for _, s := range signers {
		id := s.Family().ID
		h.signers[id] = s
		h.order = append(h.order, id)
	}
	for _, a := range access.Admins {
		h.admins[a] = true
	}
	for _, id := range access.SelfService {
		h.selfService[id] = true
	}
	return h
}

// RegisterPublic mounts routes that need no wallet signature.
func (h *Handler) RegisterPublic(rg *gin.RouterGroup) {
	rg.GET("/families", h.handleFamilies)
}

// Register mounts the voucher routes. auth.Middleware should already be
// applied to the group.
func (h *Handler) Register(rg *gin.RouterGroup) {
	rg.POST("/vouchers/:family", h.withSigner(ActionIssue, h.handleIssue))
	rg.GET("/vouchers/:family", h.withSigner(ActionList, h.handleList))
	rg.GET("/vouchers/:family/:digest", h.withSigner(ActionLookup, h.handleLookup))
}

// ── Families ──────────────────────────────────────────────────────────────────

type fieldInfo struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type familyInfo struct {
	ID                string      `json:"id"`
	PrimaryType       string      `json:"primaryType"`
	EncodeType        string      `json:"encodeType"`
	TypeHash          common.Hash `json:"typeHash"`
	Fields            []fieldInfo `json:"fields"`
	AccountField      string      `json:"accountField"`
	DomainName        string      `json:"domainName"`
	DomainVersion     string      `json:"domainVersion"`
	VerifyingContract string      `json:"verifyingContract"`
	Signer            string      `json:"signer"`
	SelfService       bool        `json:"selfService"`
}

func (h *Handler) handleFamilies(c *gin.Context) {
	out := make([]familyInfo, 0, len(h.order))
	for _, id := range h.order {
		s := h.signers[id]
		f := s.Family()
		fields := make([]fieldInfo, len(f.Schema.Fields))
		for i, fd := range f.Schema.Fields {
			fields[i] = fieldInfo{Name: fd.Name, Type: fd.Type}
		}
		out = append(out, familyInfo{
			ID:                f.ID,
			PrimaryType:       f.Schema.PrimaryType,
			EncodeType:        f.Schema.EncodeType(),
			TypeHash:          f.Schema.TypeHash(),
			Fields:            fields,
			AccountField:      f.AccountField,
			DomainName:        f.DomainName,
			DomainVersion:     f.DomainVersion,
			VerifyingContract: s.VerifyingContract().Hex(),
			Signer:            s.SignerAddress().Hex(),
			SelfService:       h.selfService[f.ID],
		})
	}
	c.JSON(http.StatusOK, out)
}

// ── Issue ─────────────────────────────────────────────────────────────────────

func (h *Handler) handleIssue(c *gin.Context, s *voucher.Signer) {
	wallet := auth.Wallet(c)
	f := s.Family()

	var fields map[string]any
	dec := json.NewDecoder(c.Request.Body)
	dec.UseNumber()
	if err := dec.Decode(&fields); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	account, ok := accountOf(fields, f.AccountField)
	if !ok {
		// Signing rejects the object; only the family check applies.
		account = wallet
	}
	if !h.mayIssue(f.ID, wallet, account) {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}

	v, err := s.Sign(c.Request.Context(), fields)
	if err != nil {
		h.fail(c, f.ID, err)
		return
	}

	isNew, err := h.ledger.Record(c.Request.Context(), v)
	if err != nil {
		// The voucher is valid either way; only the history is affected.
		h.log.Error("record voucher",
			zap.String("family", f.ID),
			zap.String("digest", v.Digest().Hex()),
			zap.Error(err))
	} else if isNew {
		h.log.Info("voucher issued",
			zap.String("family", f.ID),
			zap.String("account", v.Account().Hex()),
			zap.String("wallet", wallet.Hex()),
			zap.String("digest", v.Digest().Hex()))
	}

	raw, err := json.Marshal(v)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.Header(DigestHeader, v.Digest().Hex())
	c.Data(http.StatusOK, "application/json; charset=utf-8", raw)
}

// ── List / Lookup ─────────────────────────────────────────────────────────────

func (h *Handler) handleList(c *gin.Context, s *voucher.Signer) {
	account := auth.Wallet(c)
	if q := c.Query("account"); q != "" {
		if !common.IsHexAddress(q) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid account"})
			return
		}
		account = common.HexToAddress(q)
	}
	if !h.mayRead(auth.Wallet(c), account) {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}
	offset, err := queryInt(c, "offset")
	if err != nil || offset < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid offset"})
		return
	}
	limit, err := queryInt(c, "limit")
	if err != nil || limit < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}

	ctx := c.Request.Context()
	family := s.Family().ID
	total, err := h.ledger.Count(ctx, family, account)
	if err != nil {
		h.log.Error("count vouchers", zap.String("family", family), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	vs, err := h.ledger.List(ctx, family, account, offset, limit)
	if err != nil {
		h.log.Error("list vouchers", zap.String("family", family), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"account": account.Hex(), "count": total, "vouchers": vs})
}

func (h *Handler) handleLookup(c *gin.Context, s *voucher.Signer) {
	digest, err := hexDigest(c.Param("digest"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid digest"})
		return
	}
	ctx := c.Request.Context()

	entry, err := h.ledger.Lookup(ctx, digest)
	if err != nil {
		h.log.Error("lookup voucher", zap.String("digest", digest.Hex()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if entry == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "voucher not found"})
		return
	}

	d, err := s.Domain(ctx)
	if err != nil {
		h.fail(c, s.Family().ID, err)
		return
	}
	v, err := voucher.ParseVoucher(s.Family(), d, entry)
	if err != nil || v.Digest() != digest {
		// Recorded under another family or domain.
		c.JSON(http.StatusNotFound, gin.H{"error": "voucher not found"})
		return
	}
	if !h.mayRead(auth.Wallet(c), v.Account()) {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", bytes.TrimSpace(entry))
}

// ── helpers ───────────────────────────────────────────────────────────────────

// withSigner resolves :family and checks that the signed request was made
// for action on that family.
func (h *Handler) withSigner(action string, next func(*gin.Context, *voucher.Signer)) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("family")
		s, ok := h.signers[id]
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown voucher family"})
			return
		}
		req, ok := auth.Request(c)
		if !ok || req.Action != action || req.ResourceID != id {
			c.JSON(http.StatusForbidden, gin.H{"error": "signed request does not cover this action"})
			return
		}
		next(c, s)
	}
}

func (h *Handler) fail(c *gin.Context, family string, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		h.log.Error("sign voucher", zap.String("family", family), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, voucher.ErrSchemaMismatch):
		return http.StatusBadRequest
	case errors.Is(err, voucher.ErrUnknownFamily):
		return http.StatusNotFound
	case errors.Is(err, voucher.ErrSigningUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
