// Package ledger applies financial mutations to a portfolio collection.
//
// Every operation is a pure transform: it takes the full collection plus
// operation arguments and returns a new collection, leaving the input
// untouched. Business-rule violations are reported through the sentinel
// errors below and never partially apply.
package ledger

import "errors"

var (
	// ErrNotFound means the mutation target (portfolio, item, cash item)
	// does not exist.
	ErrNotFound = errors.New("ledger: not found")

	// ErrInsufficientQuantity means a reduction asked for more units than held.
	ErrInsufficientQuantity = errors.New("ledger: insufficient quantity")

	// ErrInsufficientCash means a debit would drive a cash balance negative.
	ErrInsufficientCash = errors.New("ledger: insufficient cash")

	// ErrLastPortfolio guards deletion of the only remaining portfolio.
	ErrLastPortfolio = errors.New("ledger: cannot delete the last portfolio")

	// ErrReadOnlyPortfolio rejects mutations of the aggregate pseudo-portfolio.
	ErrReadOnlyPortfolio = errors.New("ledger: portfolio is read-only")

	// ErrInvalidInput rejects operations with nonsensical arguments
	// (non-positive amounts or prices).
	ErrInvalidInput = errors.New("ledger: invalid input")
)
