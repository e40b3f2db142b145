package dto

// CartItem is one normalized storefront line item. Destination-less items
// are platform items. Unknown request fields are ignored by the decoder.
type CartItem struct {
	ID                 string `json:"id"`
	ConnectedAccountID string `json:"connectedAccountId,omitempty"`
	UnitPrice          int64  `json:"unitPrice"`
	Quantity           int64  `json:"quantity"`
	Name               string `json:"name"`
	SellerName         string `json:"sellerName,omitempty"`
	SellerEmail        string `json:"sellerEmail,omitempty"`
}

type CheckoutRequest struct {
	Items      []*CartItem `json:"items"`
	BuyerID    string      `json:"buyerId"`
	BuyerEmail string      `json:"buyerEmail,omitempty"`
}

type CheckoutResponse struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
}
