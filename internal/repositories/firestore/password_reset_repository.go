package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	domain "github.com/fashion-shop/api/internal/domain"
	pfirestore "github.com/fashion-shop/api/internal/platform/firestore"
)

const passwordResetCollection = "passwordResetTokens"

// PasswordResetRepository tracks issued reset tokens keyed by JWT ID so each
// token can be redeemed at most once.
type PasswordResetRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[passwordResetDocument]
}

// NewPasswordResetRepository constructs a Firestore-backed reset token repository.
func NewPasswordResetRepository(provider *pfirestore.Provider) (*PasswordResetRepository, error) {
	if provider == nil {
		return nil, errors.New("password reset repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[passwordResetDocument](provider, passwordResetCollection, nil, nil)
	return &PasswordResetRepository{provider: provider, base: base}, nil
}

// Insert records a freshly issued token.
func (r *PasswordResetRepository) Insert(ctx context.Context, token domain.PasswordResetToken) error {
	if r == nil || r.base == nil {
		return errors.New("password reset repository not initialised")
	}
	if strings.TrimSpace(token.ID) == "" {
		return errors.New("password reset token id is required")
	}
	ref, err := r.base.DocumentRef(ctx, token.ID)
	if err != nil {
		return err
	}
	doc := passwordResetDocument{
		UserID:    strings.TrimSpace(token.UserID),
		Used:      token.Used,
		ExpiresAt: token.ExpiresAt.UTC(),
		CreatedAt: token.CreatedAt.UTC(),
	}
	if _, err := ref.Create(ctx, doc); err != nil {
		return pfirestore.WrapError("passwordResets.insert", err)
	}
	return nil
}

// FindByID loads a token record by its JWT ID.
func (r *PasswordResetRepository) FindByID(ctx context.Context, jti string) (domain.PasswordResetToken, error) {
	if r == nil || r.base == nil {
		return domain.PasswordResetToken{}, errors.New("password reset repository not initialised")
	}
	doc, err := r.base.Get(ctx, jti)
	if err != nil {
		return domain.PasswordResetToken{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// MarkUsed flips the used flag. It fails with a conflict when the token was
// already redeemed, which is what makes redemption single-use under races.
func (r *PasswordResetRepository) MarkUsed(ctx context.Context, jti string, at time.Time) error {
	if r == nil || r.provider == nil {
		return errors.New("password reset repository not initialised")
	}
	jti = strings.TrimSpace(jti)
	if jti == "" {
		return errors.New("password reset token id is required")
	}

	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.base.DocumentRef(ctx, jti)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var doc passwordResetDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode password reset token %s: %w", jti, err)
		}
		if doc.Used {
			return pfirestore.NewConflictError("passwordResets.markUsed",
				fmt.Errorf("password reset token %s already used", jti))
		}
		doc.Used = true
		doc.UsedAt = ptrTime(at.UTC())
		return tx.Set(ref, doc)
	})
	if err != nil {
		return pfirestore.WrapError("passwordResets.markUsed", err)
	}
	return nil
}

// DeleteExpired removes up to limit tokens that expired before the given
// time and reports how many were deleted.
func (r *PasswordResetRepository) DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error) {
	if r == nil || r.provider == nil {
		return 0, errors.New("password reset repository not initialised")
	}
	if limit <= 0 {
		limit = 100
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return 0, err
	}

	query := client.Collection(passwordResetCollection).
		Where("expiresAt", "<", before.UTC()).
		Limit(limit)

	iter := query.Documents(ctx)
	defer iter.Stop()

	deleted := 0
	batch := client.BulkWriter(ctx)
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return deleted, pfirestore.WrapError("passwordResets.deleteExpired", err)
		}
		if _, err := batch.Delete(snap.Ref); err != nil {
			return deleted, pfirestore.WrapError("passwordResets.deleteExpired", err)
		}
		deleted++
	}
	batch.End()
	return deleted, nil
}

type passwordResetDocument struct {
	UserID    string     `firestore:"userId"`
	Used      bool       `firestore:"used"`
	UsedAt    *time.Time `firestore:"usedAt,omitempty"`
	ExpiresAt time.Time  `firestore:"expiresAt"`
	CreatedAt time.Time  `firestore:"createdAt"`
}

func (d passwordResetDocument) toDomain(id string) domain.PasswordResetToken {
	return domain.PasswordResetToken{
		ID:        id,
		UserID:    d.UserID,
		Used:      d.Used,
		ExpiresAt: d.ExpiresAt,
		CreatedAt: d.CreatedAt,
	}
}

func ptrTime(t time.Time) *time.Time {
	return &t
}
