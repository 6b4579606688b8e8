// Package memory provides mutex-guarded repositories for local development and tests.
package memory

import (
	"fmt"
	"sync"

	domain "github.com/hanko-field/storefront/internal/domain"
)

type errorKind int

const (
	kindNotFound errorKind = iota + 1
	kindConflict
)

// Error implements repositories.RepositoryError for the in-memory store.
type Error struct {
	Op   string
	kind errorKind
	msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.msg)
}

func (e *Error) IsNotFound() bool    { return e.kind == kindNotFound }
func (e *Error) IsConflict() bool    { return e.kind == kindConflict }
func (e *Error) IsUnavailable() bool { return false }

func notFound(op, id string) error {
	return &Error{Op: op, kind: kindNotFound, msg: fmt.Sprintf("%s not found", id)}
}

func conflict(op, msg string) error {
	return &Error{Op: op, kind: kindConflict, msg: msg}
}

// Store holds every collection behind one lock. Repositories obtained from the same Store
// share it.
type Store struct {
	mu        sync.Mutex
	discounts map[string]domain.Discount
	coupons   map[string]domain.Coupon
	orders    map[string]domain.Order
	products  map[string]domain.Product
}

// NewStore constructs an empty store.
func NewStore() *Store {
	return &Store{
		discounts: make(map[string]domain.Discount),
		coupons:   make(map[string]domain.Coupon),
		orders:    make(map[string]domain.Order),
		products:  make(map[string]domain.Product),
	}
}

func (s *Store) lock() func() {
	s.mu.Lock()
	return s.mu.Unlock
}
