// Package order keeps the local bookkeeping of submitted cross-chain orders.
package order

import (
	"errors"
	"strings"

	"xswap/pkg/types"
)

var (
	ErrNotFound      = errors.New("order record not found")
	ErrAlreadyExists = errors.New("order record already exists")
	ErrNoKey         = errors.New("order record has neither hash nor id")
)

// Store is a keyed collection of order records. Writes replace whole
// records; records handed out are copies.
type Store interface {
	Create(rec *types.OrderRecord) error
	Get(key string) (*types.OrderRecord, error)
	Update(rec *types.OrderRecord) error
	Delete(key string) error
	List(filter Filter) ([]*types.OrderRecord, error)
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	Maker      string
	ChainID    int // matches either side of the route
	ActiveOnly bool
}

// Match reports whether rec passes the filter
func (f Filter) Match(rec *types.OrderRecord) bool {
	if f.Maker != "" && !strings.EqualFold(f.Maker, rec.Maker) {
		return false
	}
	if f.ChainID != 0 && rec.SrcChain != f.ChainID && rec.DstChain != f.ChainID {
		return false
	}
	if f.ActiveOnly && rec.IsTerminal() {
		return false
	}
	return true
}
