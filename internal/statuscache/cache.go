package statuscache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mbouombouo/studiostay-backend/internal/booking"
	"github.com/mbouombouo/studiostay-backend/pkg/enums"
	pkgerrors "github.com/mbouombouo/studiostay-backend/pkg/errors"
	"github.com/mbouombouo/studiostay-backend/pkg/logger"
	"github.com/mbouombouo/studiostay-backend/pkg/redis"
)

const claimTTL = 10 * time.Minute

// Entry is the cached view of an in-flight or settled payment. It carries the
// booking intent snapshot so a webhook or poll callback can materialize the
// reservation without the original request context.
type Entry struct {
	Reference     string              `json:"reference"`
	Status        enums.GatewayStatus `json:"status"`
	Message       string              `json:"message,omitempty"`
	AmountCents   int                 `json:"amount_cents"`
	Channel       string              `json:"channel,omitempty"`
	Phone         string              `json:"phone,omitempty"`
	ReservationID uuid.UUID           `json:"reservation_id"`
	UserID        uuid.UUID           `json:"user_id"`
	Intent        booking.Intent      `json:"intent"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

// Age returns how long ago the entry was first written.
func (e *Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.CreatedAt)
}

// Cache stores payment status entries keyed by provider reference. Terminal
// entries are immutable: once a payment is success, failed or timeout the
// stored status never changes again.
type Cache struct {
	store  redis.KV
	ttl    time.Duration
	logger *logger.Logger
}

// New builds a cache over the given store.
func New(store redis.KV, ttl time.Duration, logg *logger.Logger) (*Cache, error) {
	if store == nil {
		return nil, fmt.Errorf("statuscache: store is required")
	}
	if logg == nil {
		return nil, fmt.Errorf("statuscache: logger is required")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Cache{store: store, ttl: ttl, logger: logg}, nil
}

// Put writes the entry unless doing so would rewrite a terminal status. A
// terminal entry receiving a different status is logged and dropped; the same
// terminal status is a harmless duplicate.
func (c *Cache) Put(ctx context.Context, entry *Entry) error {
	if entry == nil || entry.Reference == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "cache entry requires a reference")
	}

	now := time.Now().UTC()
	existing, err := c.Get(ctx, entry.Reference)
	if err != nil && !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
		return err
	}
	if existing != nil {
		if entry.CreatedAt.IsZero() {
			entry.CreatedAt = existing.CreatedAt
		}
		if existing.Status.IsTerminal() && existing.Status != entry.Status {
			ctx = c.logger.WithReference(ctx, entry.Reference)
			c.logger.Warn(c.logger.WithFields(ctx, map[string]any{
				"stored_status":   existing.Status.String(),
				"rejected_status": entry.Status.String(),
			}), "ignoring status overwrite on settled payment")
			return nil
		}
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	entry.UpdatedAt = now

	payload, err := json.Marshal(entry)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode status entry")
	}
	if err := c.store.Set(ctx, redis.PaymentStatusKey(entry.Reference), payload, c.ttl); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "store status entry")
	}
	return nil
}

// Get returns the entry for the reference, or CodeNotFound.
func (c *Cache) Get(ctx context.Context, reference string) (*Entry, error) {
	raw, err := c.store.Get(ctx, redis.PaymentStatusKey(reference))
	if err != nil {
		if err == redis.ErrNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment reference not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "read status entry")
	}
	var entry Entry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode status entry")
	}
	return &entry, nil
}

// Claim takes the single-flight reconciliation claim for the reference. Only
// the caller that receives true may mutate the ledger for this payment.
func (c *Cache) Claim(ctx context.Context, reference string) (bool, error) {
	ok, err := c.store.SetNX(ctx, redis.ReconcileClaimKey(reference), "1", claimTTL)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "acquire reconcile claim")
	}
	return ok, nil
}

// ReleaseClaim gives the claim back after a failed reconciliation so a later
// webhook or poll tick can retry.
func (c *Cache) ReleaseClaim(ctx context.Context, reference string) error {
	if err := c.store.Del(ctx, redis.ReconcileClaimKey(reference)); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "release reconcile claim")
	}
	return nil
}

// PendingReferences lists references whose cached status is still pending.
// Used by the poller resume loop after a worker restart.
func (c *Cache) PendingReferences(ctx context.Context) ([]*Entry, error) {
	keys, err := c.store.Scan(ctx, redis.PaymentStatusKey("*"))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "scan status entries")
	}

	var pending []*Entry
	for _, key := range keys {
		raw, err := c.store.Get(ctx, key)
		if err != nil {
			if err == redis.ErrNotFound {
				continue
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "read status entry")
		}
		var entry Entry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			c.logger.Error(ctx, "skipping undecodable status entry", err)
			continue
		}
		if entry.Status.IsTerminal() {
			continue
		}
		pending = append(pending, &entry)
	}
	return pending, nil
}
