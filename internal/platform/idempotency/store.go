// Package idempotency replays stored responses for repeated Idempotency-Key requests so money
// mutations (order creation, coupon redemption, refunds) run at most once per key.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"time"
)

// DefaultTTL bounds how long a key is remembered.
const DefaultTTL = 24 * time.Hour

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
)

// ReservationState is the outcome of Store.Reserve.
type ReservationState int

const (
	// ReservationStateNew means the caller owns the key and must SaveResponse or Release it.
	ReservationStateNew ReservationState = iota
	// ReservationStateCompleted means Record holds a response to replay.
	ReservationStateCompleted
	// ReservationStatePending means another request holds the key.
	ReservationStatePending
)

type Reservation struct {
	State  ReservationState
	Record Record
}

// Record is one stored key.
type Record struct {
	Key             string
	Fingerprint     string
	Status          Status
	ResponseStatus  int
	ResponseHeaders map[string][]string
	ResponseBody    []byte
	CreatedAt       time.Time
	UpdatedAt       time.Time
	ExpiresAt       time.Time
}

func (r Record) expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && !now.Before(r.ExpiresAt)
}

// Response is the captured handler output.
type Response struct {
	Status  int
	Headers http.Header
	Body    []byte
}

// Store persists reservations and responses.
type Store interface {
	Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error)
	SaveResponse(ctx context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error
	Release(ctx context.Context, key, fingerprint string) error
	CleanupExpired(ctx context.Context, now time.Time, limit int) (int, error)
}

// ErrFingerprintMismatch is returned when a key is reused for a different request.
var ErrFingerprintMismatch = errors.New("idempotency: key reserved for different request fingerprint")

func newPendingRecord(key, fingerprint string, now time.Time, ttl time.Duration) Record {
	return Record{
		Key:         key,
		Fingerprint: fingerprint,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
		ExpiresAt:   now.Add(ttl),
	}
}

// reserveRecord decides the reservation outcome for an existing record.
func reserveRecord(existing Record, found bool, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, bool, error) {
	if !found || existing.expired(now) {
		return Reservation{State: ReservationStateNew, Record: newPendingRecord(key, fingerprint, now, ttl)}, true, nil
	}
	if existing.Fingerprint != fingerprint {
		return Reservation{}, false, ErrFingerprintMismatch
	}
	if existing.Status == StatusCompleted {
		return Reservation{State: ReservationStateCompleted, Record: existing}, false, nil
	}
	return Reservation{State: ReservationStatePending, Record: existing}, false, nil
}

func documentID(key string) string {
	return sha256Hex([]byte(key))
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

var hopByHop = map[string]bool{
	"Content-Length":      true,
	"Date":                true,
	"Connection":          true,
	"Keep-Alive":          true,
	"Proxy-Authenticate":  true,
	"Proxy-Authorization": true,
	"Te":                  true,
	"Trailers":            true,
	"Transfer-Encoding":   true,
	"Upgrade":             true,
}

func storableHeaders(header http.Header) map[string][]string {
	out := make(map[string][]string, len(header))
	for name, values := range header {
		name = http.CanonicalHeaderKey(name)
		if hopByHop[name] {
			continue
		}
		out[name] = append([]string(nil), values...)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
