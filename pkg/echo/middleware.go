// Package echo mounts the checkout entry points on a labstack/echo
// application, for services that already run echo and want to embed the
// checkout rather than run the standalone gin server.
package echo

import (
	"math/big"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	indietreat "github.com/indietreat/indietreat/go"
	"github.com/indietreat/indietreat/go/checkout"
	checkouthttp "github.com/indietreat/indietreat/go/http"
)

type purchaseRequest struct {
	ProductName string `json:"productName"`
	Username    string `json:"username"`
	UserID      uint64 `json:"userId"`
	Buyer       string `json:"buyer"`
	Wallet      string `json:"wallet"`
	Value       string `json:"value"`
	Amount      string `json:"amount"`
	Deadline    int64  `json:"deadline"`
	Signature   string `json:"signature"`
}

// MountNative registers the native-variant entry points and read queries
// under prefix (e.g. "/v1").
func MountNative(e *echo.Echo, prefix string, c *checkout.NativeCheckout) {
	g := e.Group(prefix)
	g.POST("/stores/:storeId/purchases", func(ec echo.Context) error {
		storeID, req, err := decode(ec)
		if err != nil {
			return fail(ec, err)
		}
		value, ok := new(big.Int).SetString(req.Value, 10)
		if !ok {
			return fail(ec, indietreat.NewCheckoutError(indietreat.ErrCodeInvalidInput, "invalid value", nil))
		}
		event, err := c.Purchase(ec.Request().Context(), storeID, params(req), req.Buyer, value)
		if err != nil {
			return fail(ec, err)
		}
		return ec.JSON(http.StatusCreated, checkouthttp.ToResponse(event))
	})
	mountQueries(g, c)
}

// MountToken registers the token-variant entry points, including the permit
// entry point, and the read queries under prefix.
func MountToken(e *echo.Echo, prefix string, c *checkout.TokenCheckout) {
	g := e.Group(prefix)
	g.POST("/stores/:storeId/purchases", func(ec echo.Context) error {
		storeID, req, err := decode(ec)
		if err != nil {
			return fail(ec, err)
		}
		amount, ok := new(big.Int).SetString(req.Amount, 10)
		if !ok {
			return fail(ec, indietreat.NewCheckoutError(indietreat.ErrCodeInvalidInput, "invalid amount", nil))
		}
		event, err := c.Purchase(ec.Request().Context(), storeID, params(req), req.Buyer, amount)
		if err != nil {
			return fail(ec, err)
		}
		return ec.JSON(http.StatusCreated, checkouthttp.ToResponse(event))
	})
	g.POST("/stores/:storeId/purchases/permit", func(ec echo.Context) error {
		storeID, req, err := decode(ec)
		if err != nil {
			return fail(ec, err)
		}
		amount, ok := new(big.Int).SetString(req.Amount, 10)
		if !ok {
			return fail(ec, indietreat.NewCheckoutError(indietreat.ErrCodeInvalidInput, "invalid amount", nil))
		}
		signature, err := indietreat.HexToBytes(req.Signature)
		if err != nil {
			return fail(ec, indietreat.NewCheckoutError(indietreat.ErrCodeInvalidSignature, err.Error(), nil))
		}
		event, err := c.PurchaseWithPermit(ec.Request().Context(), storeID, params(req), req.Buyer, amount, req.Deadline, signature)
		if err != nil {
			return fail(ec, err)
		}
		return ec.JSON(http.StatusCreated, checkouthttp.ToResponse(event))
	})
	mountQueries(g, c)
}

type storeQueries interface {
	GetPurchase(storeID, purchaseID uint64) (indietreat.Purchase, error)
	GetStorePurchaseCount(storeID uint64) uint64
	StoreExists(storeID uint64) bool
}

func mountQueries(g *echo.Group, q storeQueries) {
	g.GET("/stores/:storeId/purchases/:purchaseId", func(ec echo.Context) error {
		storeID, err := pathID(ec, "storeId")
		if err != nil {
			return fail(ec, err)
		}
		purchaseID, err := pathID(ec, "purchaseId")
		if err != nil {
			return fail(ec, err)
		}
		p, err := q.GetPurchase(storeID, purchaseID)
		if err != nil {
			return fail(ec, err)
		}
		return ec.JSON(http.StatusOK, checkouthttp.ToResponse(indietreat.PurchaseMade{
			StoreID:     storeID,
			PurchaseID:  purchaseID,
			ProductName: p.ProductName,
			Username:    p.Username,
			UserID:      p.UserID,
			Timestamp:   p.Timestamp,
			Amount:      p.Amount,
			Wallet:      p.Wallet,
		}))
	})
	g.GET("/stores/:storeId/count", func(ec echo.Context) error {
		storeID, err := pathID(ec, "storeId")
		if err != nil {
			return fail(ec, err)
		}
		return ec.JSON(http.StatusOK, map[string]interface{}{
			"storeId": storeID,
			"count":   q.GetStorePurchaseCount(storeID),
		})
	})
	g.GET("/stores/:storeId/exists", func(ec echo.Context) error {
		storeID, err := pathID(ec, "storeId")
		if err != nil {
			return fail(ec, err)
		}
		return ec.JSON(http.StatusOK, map[string]interface{}{
			"storeId": storeID,
			"exists":  q.StoreExists(storeID),
		})
	})
}

func decode(ec echo.Context) (uint64, purchaseRequest, error) {
	storeID, err := pathID(ec, "storeId")
	if err != nil {
		return 0, purchaseRequest{}, err
	}
	var req purchaseRequest
	if err := ec.Bind(&req); err != nil {
		return 0, purchaseRequest{}, indietreat.NewCheckoutError(
			indietreat.ErrCodeInvalidInput, "failed to decode request body", nil)
	}
	return storeID, req, nil
}

func params(req purchaseRequest) indietreat.PurchaseParams {
	return indietreat.PurchaseParams{
		ProductName: req.ProductName,
		Username:    req.Username,
		UserID:      req.UserID,
		Wallet:      req.Wallet,
	}
}

func pathID(ec echo.Context, name string) (uint64, error) {
	id, err := strconv.ParseUint(ec.Param(name), 10, 64)
	if err != nil {
		return 0, indietreat.NewCheckoutError(
			indietreat.ErrCodeInvalidInput, "path parameter "+name+" must be an unsigned integer", nil)
	}
	return id, nil
}

func fail(ec echo.Context, err error) error {
	code := indietreat.ErrorCode(err)
	status := checkouthttp.StatusForCode(code)
	if code == "" {
		code = "internal_error"
	}
	return ec.JSON(status, map[string]string{"code": code, "message": err.Error()})
}
