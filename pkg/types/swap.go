package types

import "encoding/json"

// SwapRequest represents a user's swap command
type SwapRequest struct {
	Amount        string // human readable amount, e.g. "1.5"
	AmountRaw     string // integer base units, filled once decimals are known
	SourceToken   string
	DestToken     string
	SourceChain   int
	DestChain     int
	Decimals      int32
	WalletAddress string
}

// PresetDetail carries the auction parameters of one quote preset. The core
// never interprets these values, they are shown to the user and sent back to
// the builder untouched through Quote.Raw.
type PresetDetail struct {
	AuctionDuration    int64         `json:"auctionDuration"`
	AuctionStartAmount string        `json:"auctionStartAmount"`
	AuctionEndAmount   string        `json:"auctionEndAmount"`
	StartAuctionIn     int64         `json:"startAuctionIn"`
	InitialRateBump    int64         `json:"initialRateBump"`
	TokenFee           string        `json:"tokenFee,omitempty"`
	BankFee            string        `json:"bankFee,omitempty"`
	Points             []AuctionPoint `json:"points,omitempty"`
}

// AuctionPoint is a single point of a preset's auction curve
type AuctionPoint struct {
	Coefficient int64 `json:"coefficient"`
	Delay       int64 `json:"delay"`
}

// Quote is an immutable snapshot of a priceable cross-chain swap.
// Amounts are raw integer token units kept as decimal strings.
type Quote struct {
	QuoteID   string                  `json:"quoteId"`
	SrcAmount string                  `json:"srcTokenAmount"`
	DstAmount string                  `json:"dstTokenAmount"`
	SrcChain  int                     `json:"srcChain"`
	DstChain  int                     `json:"dstChain"`
	SrcToken  string                  `json:"srcToken"`
	DstToken  string                  `json:"dstToken"`
	Presets   map[string]PresetDetail `json:"presets"`

	// Raw is the verbatim upstream quote body
	Raw json.RawMessage `json:"-"`
}

// TxPayload is an unsigned transaction handed to the wallet
type TxPayload struct {
	To    string `json:"to"`
	Data  string `json:"data"`
	Value string `json:"value"`
}

// Receipt is the outcome of a mined transaction
type Receipt struct {
	TxHash      string `json:"txHash"`
	Success     bool   `json:"success"`
	BlockNumber uint64 `json:"blockNumber,omitempty"`
}
