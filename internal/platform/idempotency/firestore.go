package idempotency

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	pfirestore "github.com/hanko-field/storefront/internal/platform/firestore"
)

const defaultCollection = "idempotencyKeys"

// FirestoreStore keeps keys in Firestore so every API instance shares them.
type FirestoreStore struct {
	provider   *pfirestore.Provider
	collection string
}

// NewFirestoreStore stores keys in collection, or idempotencyKeys when empty.
func NewFirestoreStore(provider *pfirestore.Provider, collection string) (*FirestoreStore, error) {
	if provider == nil {
		return nil, errors.New("idempotency: firestore provider is required")
	}
	if collection == "" {
		collection = defaultCollection
	}
	return &FirestoreStore{provider: provider, collection: collection}, nil
}

func (s *FirestoreStore) ref(ctx context.Context, key string) (*firestore.DocumentRef, error) {
	client, err := s.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(s.collection).Doc(documentID(key)), nil
}

func (s *FirestoreStore) Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	var result Reservation
	err := s.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := s.ref(ctx, key)
		if err != nil {
			return err
		}
		existing, found, err := getRecord(tx, ref)
		if err != nil {
			return err
		}
		res, write, err := reserveRecord(existing, found, key, fingerprint, now.UTC(), ttl)
		if err != nil {
			return err
		}
		if write {
			if err := tx.Set(ref, toDocument(res.Record)); err != nil {
				return err
			}
		}
		result = res
		return nil
	})
	if errors.Is(err, ErrFingerprintMismatch) {
		return Reservation{}, ErrFingerprintMismatch
	}
	return result, err
}

func (s *FirestoreStore) SaveResponse(ctx context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now = now.UTC()
	err := s.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := s.ref(ctx, key)
		if err != nil {
			return err
		}
		record, found, err := getRecord(tx, ref)
		if err != nil {
			return err
		}
		if found && record.Fingerprint != fingerprint {
			return ErrFingerprintMismatch
		}
		if !found {
			record = newPendingRecord(key, fingerprint, now, ttl)
		}
		record.Status = StatusCompleted
		record.ResponseStatus = resp.Status
		record.ResponseHeaders = storableHeaders(resp.Headers)
		record.ResponseBody = append([]byte(nil), resp.Body...)
		record.UpdatedAt = now
		record.ExpiresAt = now.Add(ttl)
		return tx.Set(ref, toDocument(record))
	})
	if errors.Is(err, ErrFingerprintMismatch) {
		return ErrFingerprintMismatch
	}
	return err
}

func (s *FirestoreStore) Release(ctx context.Context, key, fingerprint string) error {
	return s.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := s.ref(ctx, key)
		if err != nil {
			return err
		}
		record, found, err := getRecord(tx, ref)
		if err != nil || !found || record.Fingerprint != fingerprint {
			return err
		}
		return tx.Delete(ref)
	})
}

// CleanupExpired deletes up to limit expired keys in one batch.
func (s *FirestoreStore) CleanupExpired(ctx context.Context, now time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}
	client, err := s.provider.Client(ctx)
	if err != nil {
		return 0, err
	}
	docs, err := client.Collection(s.collection).Where("expiresAt", "<=", now.UTC()).Limit(limit).Documents(ctx).GetAll()
	if err != nil {
		return 0, pfirestore.WrapError("idempotency.cleanup", err)
	}
	if len(docs) == 0 {
		return 0, nil
	}
	writer := client.BulkWriter(ctx)
	jobs := make([]*firestore.BulkWriterJob, 0, len(docs))
	for _, doc := range docs {
		job, err := writer.Delete(doc.Ref)
		if err != nil {
			writer.End()
			return 0, pfirestore.WrapError("idempotency.cleanup", err)
		}
		jobs = append(jobs, job)
	}
	writer.End()
	for _, job := range jobs {
		if _, err := job.Results(); err != nil {
			return 0, pfirestore.WrapError("idempotency.cleanup", err)
		}
	}
	return len(docs), nil
}

type recordDocument struct {
	Key             string              `firestore:"key"`
	Fingerprint     string              `firestore:"fingerprint"`
	Status          string              `firestore:"status"`
	ResponseStatus  int                 `firestore:"responseStatus"`
	ResponseHeaders map[string][]string `firestore:"responseHeaders"`
	ResponseBody    []byte              `firestore:"responseBody"`
	CreatedAt       time.Time           `firestore:"createdAt"`
	UpdatedAt       time.Time           `firestore:"updatedAt"`
	ExpiresAt       time.Time           `firestore:"expiresAt"`
}

func toDocument(r Record) recordDocument {
	return recordDocument{
		Key:             r.Key,
		Fingerprint:     r.Fingerprint,
		Status:          string(r.Status),
		ResponseStatus:  r.ResponseStatus,
		ResponseHeaders: r.ResponseHeaders,
		ResponseBody:    r.ResponseBody,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
		ExpiresAt:       r.ExpiresAt,
	}
}

func getRecord(tx *firestore.Transaction, ref *firestore.DocumentRef) (Record, bool, error) {
	snap, err := tx.Get(ref)
	switch status.Code(err) {
	case codes.OK:
	case codes.NotFound:
		return Record{}, false, nil
	default:
		return Record{}, false, err
	}
	var doc recordDocument
	if err := snap.DataTo(&doc); err != nil {
		return Record{}, false, err
	}
	return Record{
		Key:             doc.Key,
		Fingerprint:     doc.Fingerprint,
		Status:          Status(doc.Status),
		ResponseStatus:  doc.ResponseStatus,
		ResponseHeaders: doc.ResponseHeaders,
		ResponseBody:    doc.ResponseBody,
		CreatedAt:       doc.CreatedAt,
		UpdatedAt:       doc.UpdatedAt,
		ExpiresAt:       doc.ExpiresAt,
	}, true, nil
}
