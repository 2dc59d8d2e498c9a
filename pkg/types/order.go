package types

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// OrderStatus is the relayer-side state of a submitted cross-chain order
type OrderStatus string

const (
	OrderCreated         OrderStatus = "created"
	OrderPending         OrderStatus = "pending"
	OrderSrcDeployed     OrderStatus = "src-deployed"
	OrderDstDeployed     OrderStatus = "dst-deployed"
	OrderPartiallyFilled OrderStatus = "partially-filled"
	OrderFilled          OrderStatus = "filled"
	OrderExpired         OrderStatus = "expired"
	OrderCancelled       OrderStatus = "cancelled"
)

var knownStatuses = map[OrderStatus]bool{
	OrderCreated:         true,
	OrderPending:         true,
	OrderSrcDeployed:     true,
	OrderDstDeployed:     true,
	OrderPartiallyFilled: true,
	OrderFilled:          true,
	OrderExpired:         true,
	OrderCancelled:       true,
}

// ParseOrderStatus normalizes an upstream status string
func ParseOrderStatus(s string) (OrderStatus, error) {
	status := OrderStatus(strings.ToLower(strings.TrimSpace(s)))
	if !status.Valid() {
		return "", fmt.Errorf("unknown order status %q", s)
	}
	return status, nil
}

// Valid reports whether s is a known wire value
func (s OrderStatus) Valid() bool {
	return knownStatuses[s]
}

// IsTerminal reports whether no further transition may follow this status
func (s OrderStatus) IsTerminal() bool {
	return s == OrderFilled || s == OrderExpired || s == OrderCancelled
}

// OrderDomain is the EIP-712 domain declared by the builder
type OrderDomain struct {
	Name              string `json:"name"`
	Version           string `json:"version"`
	ChainID           int64  `json:"chainId"`
	VerifyingContract string `json:"verifyingContract"`
}

// OrderMessage holds the signable order fields. Integers are decimal
// strings, addresses are lowercase hex.
type OrderMessage struct {
	Salt         string `json:"salt"`
	MakerAsset   string `json:"makerAsset"`
	TakerAsset   string `json:"takerAsset"`
	Maker        string `json:"maker"`
	Receiver     string `json:"receiver"`
	MakingAmount string `json:"makingAmount"`
	TakingAmount string `json:"takingAmount"`
	MakerTraits  string `json:"makerTraits"`
}

// OrderTypedData is the typed-data section of a build response
type OrderTypedData struct {
	Domain      OrderDomain  `json:"domain"`
	PrimaryType string       `json:"primaryType"`
	Message     OrderMessage `json:"message"`
}

// BuiltOrder is a fully formed order returned by the builder. Extension is
// an opaque protocol blob that must reach the relayer byte for byte.
type BuiltOrder struct {
	TypedData OrderTypedData `json:"typedData"`
	Extension string         `json:"extension"`
	OrderHash string         `json:"orderHash,omitempty"`
	QuoteID   string         `json:"quoteId"`
	SrcChain  int            `json:"srcChain"`
	DstChain  int            `json:"dstChain"`

	seal common.Hash
}

// Seal fingerprints the current extension
func (o *BuiltOrder) Seal() {
	o.seal = crypto.Keccak256Hash([]byte(o.Extension))
}

// ExtensionIntact reports whether the order was sealed and its extension
// still matches the fingerprint
func (o *BuiltOrder) ExtensionIntact() bool {
	return o.seal != (common.Hash{}) && o.seal == crypto.Keccak256Hash([]byte(o.Extension))
}

// SignedOrder is a built order plus the maker signature
type SignedOrder struct {
	BuiltOrder
	Signature string `json:"signature"`
}

// SubmitResult is the relayer answer to an accepted order
type SubmitResult struct {
	OrderHash string      `json:"orderHash"`
	Status    OrderStatus `json:"status"`
}

// Fill is one settlement step reported by the relayer
type Fill struct {
	TxHash             string `json:"txHash"`
	FilledMakingAmount string `json:"filledMakingAmount"`
	FilledTakingAmount string `json:"filledTakingAmount"`
}

// StatusReport is one answer of the status endpoint
type StatusReport struct {
	OrderHash string      `json:"orderHash"`
	Status    OrderStatus `json:"status"`
	Fills     []Fill      `json:"fills,omitempty"`
	SrcTxHash string      `json:"srcTxHash,omitempty"`
	DstTxHash string      `json:"dstTxHash,omitempty"`
}

// OrderRecord is the locally tracked view of a submitted order
type OrderRecord struct {
	ID        string      `json:"id"`
	OrderHash string      `json:"orderHash,omitempty"`
	QuoteID   string      `json:"quoteId"`
	Status    OrderStatus `json:"status"`
	SrcChain  int         `json:"srcChain"`
	DstChain  int         `json:"dstChain"`
	Maker     string      `json:"maker"`
	SrcToken  string      `json:"srcToken,omitempty"`
	DstToken  string      `json:"dstToken,omitempty"`
	SrcAmount string      `json:"srcAmount,omitempty"`
	DstAmount string      `json:"dstAmount,omitempty"`
	Progress  int         `json:"progress"`
	Fills     []Fill      `json:"fills,omitempty"`
	SrcTxHash string      `json:"srcTxHash,omitempty"`
	DstTxHash string      `json:"dstTxHash,omitempty"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// Key returns the storage key: the order hash, or the id before one exists
func (r *OrderRecord) Key() string {
	if r.OrderHash != "" {
		return r.OrderHash
	}
	return r.ID
}

// IsTerminal reports whether the record has reached a final status
func (r *OrderRecord) IsTerminal() bool {
	return r.Status.IsTerminal()
}

// Clone returns a deep copy of the record
func (r *OrderRecord) Clone() *OrderRecord {
	if r == nil {
		return nil
	}
	c := *r
	if r.Fills != nil {
		c.Fills = append([]Fill(nil), r.Fills...)
	}
	return &c
}

// ApplyStatus moves the record to next. It returns false and leaves the
// record untouched once a terminal status has been reached.
func (r *OrderRecord) ApplyStatus(next OrderStatus, at time.Time) bool {
	if r.Status.IsTerminal() {
		return false
	}
	if r.Status == next {
		return false
	}
	r.Status = next
	r.UpdatedAt = at
	return true
}
