package stock

import (
	"errors"
)

// SizeLedger is the per-product, per-size counter pair. Available stock is
// always stock - reserved; reserved units are earmarked by open checkout
// sessions and only leave the ledger through Confirm.
type SizeLedger struct {
	ProductID string
	Size      string
	Stock     int
	Reserved  int
	UnitPrice int64
}

func (l SizeLedger) Available() int {
	return l.Stock - l.Reserved
}

func (l SizeLedger) CanReserve(qty int) bool {
	return qty > 0 && l.Available() >= qty
}

// Line is one requested (product, size, quantity) mutation against the ledger.
type Line struct {
	ProductID string
	Size      string
	Quantity  int
}

func NewLine(productID, size string, quantity int) (Line, error) {
	if productID == "" {
		return Line{}, errors.New("product id cannot be empty")
	}
	if size == "" {
		return Line{}, errors.New("size cannot be empty")
	}
	if quantity <= 0 {
		return Line{}, errors.New("quantity must be positive")
	}
	return Line{ProductID: productID, Size: size, Quantity: quantity}, nil
}
