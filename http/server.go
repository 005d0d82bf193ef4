// Package http exposes the checkout entry points and read-only queries over
// HTTP. Requests to undefined routes — the HTTP rendering of unsolicited
// direct payments and undefined entry points — always fail with
// rejected_payment; there is no path by which the service accepts value
// outside the purchase handlers.
package http

import (
	"io"
	"math/big"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	logging "github.com/ipfs/go-log/v2"

	indietreat "github.com/indietreat/indietreat/go"
	"github.com/indietreat/indietreat/go/checkout"
)

var log = logging.Logger("checkout-http")

// RequestIDHeader carries the per-request identifier assigned by the server.
const RequestIDHeader = "X-Request-Id"

// Server serves one checkout variant plus the shared read queries.
type Server struct {
	engine *gin.Engine
	native *checkout.NativeCheckout
	token  *checkout.TokenCheckout
}

// NewNativeServer creates an HTTP server for the native-value variant.
func NewNativeServer(c *checkout.NativeCheckout) *Server {
	s := &Server{native: c}
	s.setup()
	return s
}

// NewTokenServer creates an HTTP server for the token variant, including
// the permit entry point.
func NewTokenServer(c *checkout.TokenCheckout) *Server {
	s := &Server{token: c}
	s.setup()
	return s
}

// Handler returns the server as a standard http.Handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on addr until the listener fails.
func (s *Server) Run(addr string) error {
	log.Infow("serving checkout API", "addr", addr)
	return s.engine.Run(addr)
}

func (s *Server) setup() {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), requestID())

	v1 := engine.Group("/v1")
	if s.native != nil {
		v1.POST("/stores/:storeId/purchases", s.handleNativePurchase)
	}
	if s.token != nil {
		v1.POST("/stores/:storeId/purchases", s.handleTokenPurchase)
		v1.POST("/stores/:storeId/purchases/permit", s.handlePermitPurchase)
	}
	v1.GET("/stores/:storeId/purchases/:purchaseId", s.handleGetPurchase)
	v1.GET("/stores/:storeId/count", s.handleCount)
	v1.GET("/stores/:storeId/exists", s.handleExists)

	// Anything outside the defined entry points is an unsolicited payment
	// attempt or an undefined call and is rejected unconditionally.
	engine.NoRoute(rejectPayment)
	engine.NoMethod(rejectPayment)
	engine.HandleMethodNotAllowed = true

	s.engine = engine
}

// requestID tags every request with a UUID for log correlation.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header(RequestIDHeader, uuid.NewString())
		c.Next()
	}
}

func rejectPayment(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{
		"code":    indietreat.ErrCodeRejectedPayment,
		"message": "no such entry point; direct payments are not accepted",
	})
}

// ============================================================================
// Request / response shapes
// ============================================================================

type nativePurchaseRequest struct {
	ProductName string `json:"productName"`
	Username    string `json:"username"`
	UserID      uint64 `json:"userId"`
	Buyer       string `json:"buyer"`
	Wallet      string `json:"wallet"`
	Value       string `json:"value"`
}

type tokenPurchaseRequest struct {
	ProductName string `json:"productName"`
	Username    string `json:"username"`
	UserID      uint64 `json:"userId"`
	Buyer       string `json:"buyer"`
	Wallet      string `json:"wallet"`
	Amount      string `json:"amount"`
}

type permitPurchaseRequest struct {
	tokenPurchaseRequest
	Deadline  int64  `json:"deadline"`
	Signature string `json:"signature"`
}

// PurchaseResponse is the wire form of a purchase; amounts are decimal
// strings so values above 2^53 survive JSON round-trips.
type PurchaseResponse struct {
	StoreID     uint64 `json:"storeId"`
	PurchaseID  uint64 `json:"purchaseId"`
	ProductName string `json:"productName"`
	Username    string `json:"username"`
	UserID      uint64 `json:"userId"`
	Timestamp   int64  `json:"timestamp"`
	Amount      string `json:"amount"`
	Wallet      string `json:"wallet"`
}

// ToResponse converts a PurchaseMade notification to its wire form.
func ToResponse(e indietreat.PurchaseMade) PurchaseResponse {
	return PurchaseResponse{
		StoreID:     e.StoreID,
		PurchaseID:  e.PurchaseID,
		ProductName: e.ProductName,
		Username:    e.Username,
		UserID:      e.UserID,
		Timestamp:   e.Timestamp,
		Amount:      e.Amount.String(),
		Wallet:      e.Wallet,
	}
}

// ============================================================================
// Handlers
// ============================================================================

func (s *Server) handleNativePurchase(c *gin.Context) {
	storeID, ok := pathID(c, "storeId")
	if !ok {
		return
	}

	var req nativePurchaseRequest
	if !bindValidated(c, nativePurchaseSchema, &req) {
		return
	}

	value, ok := new(big.Int).SetString(req.Value, 10)
	if !ok {
		writeError(c, indietreat.NewCheckoutError(indietreat.ErrCodeInvalidInput, "invalid value", nil))
		return
	}

	event, err := s.native.Purchase(c.Request.Context(), storeID, indietreat.PurchaseParams{
		ProductName: req.ProductName,
		Username:    req.Username,
		UserID:      req.UserID,
		Wallet:      req.Wallet,
	}, req.Buyer, value)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, ToResponse(event))
}

func (s *Server) handleTokenPurchase(c *gin.Context) {
	storeID, ok := pathID(c, "storeId")
	if !ok {
		return
	}

	var req tokenPurchaseRequest
	if !bindValidated(c, tokenPurchaseSchema, &req) {
		return
	}

	amount, ok := new(big.Int).SetString(req.Amount, 10)
	if !ok {
		writeError(c, indietreat.NewCheckoutError(indietreat.ErrCodeInvalidInput, "invalid amount", nil))
		return
	}

	event, err := s.token.Purchase(c.Request.Context(), storeID, indietreat.PurchaseParams{
		ProductName: req.ProductName,
		Username:    req.Username,
		UserID:      req.UserID,
		Wallet:      req.Wallet,
	}, req.Buyer, amount)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, ToResponse(event))
}

func (s *Server) handlePermitPurchase(c *gin.Context) {
	storeID, ok := pathID(c, "storeId")
	if !ok {
		return
	}

	var req permitPurchaseRequest
	if !bindValidated(c, permitPurchaseSchema, &req) {
		return
	}

	amount, ok := new(big.Int).SetString(req.Amount, 10)
	if !ok {
		writeError(c, indietreat.NewCheckoutError(indietreat.ErrCodeInvalidInput, "invalid amount", nil))
		return
	}
	signature, err := indietreat.HexToBytes(req.Signature)
	if err != nil {
		writeError(c, indietreat.NewCheckoutError(indietreat.ErrCodeInvalidSignature, err.Error(), nil))
		return
	}

	event, err := s.token.PurchaseWithPermit(c.Request.Context(), storeID, indietreat.PurchaseParams{
		ProductName: req.ProductName,
		Username:    req.Username,
		UserID:      req.UserID,
		Wallet:      req.Wallet,
	}, req.Buyer, amount, req.Deadline, signature)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, ToResponse(event))
}

func (s *Server) handleGetPurchase(c *gin.Context) {
	storeID, ok := pathID(c, "storeId")
	if !ok {
		return
	}
	purchaseID, ok := pathID(c, "purchaseId")
	if !ok {
		return
	}

	p, err := s.ledgerQueries().GetPurchase(storeID, purchaseID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ToResponse(indietreat.PurchaseMade{
		StoreID:     storeID,
		PurchaseID:  purchaseID,
		ProductName: p.ProductName,
		Username:    p.Username,
		UserID:      p.UserID,
		Timestamp:   p.Timestamp,
		Amount:      p.Amount,
		Wallet:      p.Wallet,
	}))
}

func (s *Server) handleCount(c *gin.Context) {
	storeID, ok := pathID(c, "storeId")
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"storeId": storeID,
		"count":   s.ledgerQueries().GetStorePurchaseCount(storeID),
	})
}

func (s *Server) handleExists(c *gin.Context) {
	storeID, ok := pathID(c, "storeId")
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"storeId": storeID,
		"exists":  s.ledgerQueries().StoreExists(storeID),
	})
}

// storeQueries is the read surface shared by both variants.
type storeQueries interface {
	GetPurchase(storeID, purchaseID uint64) (indietreat.Purchase, error)
	GetStorePurchaseCount(storeID uint64) uint64
	StoreExists(storeID uint64) bool
}

func (s *Server) ledgerQueries() storeQueries {
	if s.native != nil {
		return s.native
	}
	return s.token
}

// ============================================================================
// Helpers
// ============================================================================

func pathID(c *gin.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil {
		writeError(c, indietreat.NewCheckoutError(
			indietreat.ErrCodeInvalidInput, "path parameter "+name+" must be an unsigned integer", nil))
		return 0, false
	}
	return id, true
}

func bindValidated(c *gin.Context, schema string, out interface{}) bool {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		writeError(c, indietreat.NewCheckoutError(indietreat.ErrCodeInvalidInput, "failed to read request body", nil))
		return false
	}
	if err := validateBody(schema, body); err != nil {
		writeError(c, indietreat.NewCheckoutError(indietreat.ErrCodeInvalidInput, err.Error(), nil))
		return false
	}
	if err := bindJSON(body, out); err != nil {
		writeError(c, indietreat.NewCheckoutError(indietreat.ErrCodeInvalidInput, err.Error(), nil))
		return false
	}
	return true
}

// StatusForCode maps checkout error codes to HTTP status.
func StatusForCode(code string) int {
	switch code {
	case indietreat.ErrCodeInvalidInput:
		return http.StatusBadRequest
	case indietreat.ErrCodeNotFound, indietreat.ErrCodeRejectedPayment:
		return http.StatusNotFound
	case indietreat.ErrCodeInvalidSignature, indietreat.ErrCodePermitExpired:
		return http.StatusUnauthorized
	case indietreat.ErrCodeInsufficientAuthorization,
		indietreat.ErrCodeForwardFailed,
		indietreat.ErrCodeTransferFailed:
		return http.StatusPaymentRequired
	case indietreat.ErrCodePurchaseAborted:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	code := indietreat.ErrorCode(err)
	status := StatusForCode(code)
	if code == "" {
		code = "internal_error"
	}
	if status >= 500 {
		log.Errorw("purchase request failed", "code", code, "err", err)
	} else {
		log.Debugw("purchase request rejected", "code", code, "err", err)
	}
	c.JSON(status, gin.H{"code": code, "message": err.Error()})
}
