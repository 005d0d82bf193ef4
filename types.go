package indietreat

import "math/big"

// Purchase is one immutable entry in a store's purchase log.
type Purchase struct {
	ProductName string   `json:"productName"` // free-form product label
	Username    string   `json:"username"`    // free-form display name of the buyer
	UserID      uint64   `json:"userId"`      // external user identifier
	Timestamp   int64    `json:"timestamp"`   // unix time at recording
	Amount      *big.Int `json:"amount"`      // payment amount in smallest unit
	Wallet      string   `json:"wallet"`      // seller/recipient address (hex)
}

// PurchaseParams carries the caller-supplied purchase fields shared by all
// entry points. The amount is supplied separately: the native variant derives
// it from the attached value, the token variant takes it as a parameter.
type PurchaseParams struct {
	ProductName string `json:"productName"`
	Username    string `json:"username"`
	UserID      uint64 `json:"userId"`
	Wallet      string `json:"wallet"`
}

// PurchaseMade is the notification emitted on every successful purchase.
// StoreID and PurchaseID are the filterable fields.
type PurchaseMade struct {
	StoreID     uint64   `json:"storeId"`
	PurchaseID  uint64   `json:"purchaseId"`
	ProductName string   `json:"productName"`
	Username    string   `json:"username"`
	UserID      uint64   `json:"userId"`
	Timestamp   int64    `json:"timestamp"`
	Amount      *big.Int `json:"amount"`
	Wallet      string   `json:"wallet"`
}

// Record returns the purchase record carried by the notification.
func (e PurchaseMade) Record() Purchase {
	return Purchase{
		ProductName: e.ProductName,
		Username:    e.Username,
		UserID:      e.UserID,
		Timestamp:   e.Timestamp,
		Amount:      e.Amount,
		Wallet:      e.Wallet,
	}
}
