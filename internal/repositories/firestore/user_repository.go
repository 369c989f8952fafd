package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	firestorepb "cloud.google.com/go/firestore/apiv1/firestorepb"

	domain "github.com/fashion-shop/api/internal/domain"
	pfirestore "github.com/fashion-shop/api/internal/platform/firestore"
	"github.com/fashion-shop/api/internal/platform/pagination"
	"github.com/fashion-shop/api/internal/repositories"
)

const userCollection = "users"

// UserRepository persists account records in Firestore.
type UserRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[userDocument]
}

// NewUserRepository constructs a Firestore-backed user repository.
func NewUserRepository(provider *pfirestore.Provider) (*UserRepository, error) {
	if provider == nil {
		return nil, errors.New("user repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[userDocument](provider, userCollection, nil, nil)
	return &UserRepository{provider: provider, base: base}, nil
}

// Insert creates the account document. It fails with a conflict when the ID is
// already taken.
func (r *UserRepository) Insert(ctx context.Context, user domain.User) error {
	if r == nil || r.base == nil {
		return errors.New("user repository not initialised")
	}
	if strings.TrimSpace(user.ID) == "" {
		return errors.New("user id is required")
	}

	ref, err := r.base.DocumentRef(ctx, user.ID)
	if err != nil {
		return err
	}
	if _, err := ref.Create(ctx, fromDomainUser(user)); err != nil {
		return pfirestore.WrapError("users.insert", err)
	}
	return nil
}

// Update overwrites the account document.
func (r *UserRepository) Update(ctx context.Context, user domain.User) error {
	if r == nil || r.base == nil {
		return errors.New("user repository not initialised")
	}
	if strings.TrimSpace(user.ID) == "" {
		return errors.New("user id is required")
	}
	if _, err := r.base.Set(ctx, user.ID, fromDomainUser(user)); err != nil {
		return err
	}
	return nil
}

// Delete removes the account document. Deleting a missing account is not an error.
func (r *UserRepository) Delete(ctx context.Context, userID string) error {
	if r == nil || r.base == nil {
		return errors.New("user repository not initialised")
	}
	ref, err := r.base.DocumentRef(ctx, userID)
	if err != nil {
		return err
	}
	if _, err := ref.Delete(ctx); err != nil {
		return pfirestore.WrapError("users.delete", err)
	}
	return nil
}

// FindByID loads the account by its document ID.
func (r *UserRepository) FindByID(ctx context.Context, userID string) (domain.User, error) {
	if r == nil || r.base == nil {
		return domain.User{}, errors.New("user repository not initialised")
	}
	doc, err := r.base.Get(ctx, userID)
	if err != nil {
		return domain.User{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// FindByEmail loads the account holding the normalised email address.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (domain.User, error) {
	if r == nil || r.base == nil {
		return domain.User{}, errors.New("user repository not initialised")
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return domain.User{}, errors.New("email is required")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("email", "==", email).Limit(1)
	})
	if err != nil {
		return domain.User{}, err
	}
	if len(docs) == 0 {
		return domain.User{}, pfirestore.NewNotFoundError("users.findByEmail", fmt.Errorf("user with email %s not found", email))
	}
	return docs[0].Data.toDomain(docs[0].ID), nil
}

// List returns accounts ordered by creation time, newest first.
func (r *UserRepository) List(ctx context.Context, filter repositories.UserListFilter) (domain.CursorPage[domain.User], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.User]{}, errors.New("user repository not initialised")
	}

	pageSize := normalizePageSize(filter.Pager.PageSize)

	cursor, err := pagination.DecodeToken(filter.Pager.PageToken)
	if err != nil {
		return domain.CursorPage[domain.User]{}, pfirestore.WrapError("users.list", err)
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if filter.Role != nil {
			q = q.Where("role", "==", string(*filter.Role))
		}
		if filter.Banned != nil {
			q = q.Where("banned", "==", *filter.Banned)
		}
		q = q.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if len(cursor.StartAfter) == 2 {
			if after, ok := cursorTime(cursor.StartAfter[0]); ok {
				q = q.StartAfter(after, cursor.StartAfter[1])
			}
		}
		return q.Limit(pageSize + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.User]{}, err
	}

	users := make([]domain.User, 0, len(docs))
	for _, doc := range docs {
		users = append(users, doc.Data.toDomain(doc.ID))
	}

	hasMore := len(users) > pageSize
	if hasMore {
		users = users[:pageSize]
	}
	var nextToken string
	if hasMore && len(users) > 0 {
		last := users[len(users)-1]
		nextToken, err = pagination.EncodeToken(pagination.Cursor{
			StartAfter: []any{last.CreatedAt.UTC().Format(time.RFC3339Nano), last.ID},
		})
		if err != nil {
			return domain.CursorPage[domain.User]{}, pfirestore.WrapError("users.list", err)
		}
	}

	return domain.CursorPage[domain.User]{Items: users, NextPageToken: nextToken}, nil
}

// Count returns the total number of accounts.
func (r *UserRepository) Count(ctx context.Context) (int64, error) {
	if r == nil || r.provider == nil {
		return 0, errors.New("user repository not initialised")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return 0, err
	}
	results, err := client.Collection(userCollection).Query.NewAggregationQuery().WithCount("total").Get(ctx)
	if err != nil {
		return 0, pfirestore.WrapError("users.count", err)
	}
	value, ok := results["total"]
	if !ok {
		return 0, errors.New("users.count: aggregation result missing")
	}
	count, ok := value.(*firestorepb.Value)
	if !ok {
		return 0, fmt.Errorf("users.count: unexpected aggregation type %T", value)
	}
	return count.GetIntegerValue(), nil
}

// SetBanned flips the ban flag and records the ban metadata.
func (r *UserRepository) SetBanned(ctx context.Context, userID string, banned bool, reason string, at time.Time) error {
	if r == nil || r.base == nil {
		return errors.New("user repository not initialised")
	}

	updates := []firestore.Update{
		{Path: "banned", Value: banned},
		{Path: "updatedAt", Value: at.UTC()},
	}
	if banned {
		updates = append(updates,
			firestore.Update{Path: "banReason", Value: strings.TrimSpace(reason)},
			firestore.Update{Path: "bannedAt", Value: at.UTC()},
		)
	} else {
		updates = append(updates,
			firestore.Update{Path: "banReason", Value: firestore.Delete},
			firestore.Update{Path: "bannedAt", Value: firestore.Delete},
		)
	}
	_, err := r.base.Update(ctx, userID, updates)
	return err
}

// SetRole changes the account role.
func (r *UserRepository) SetRole(ctx context.Context, userID string, role domain.Role, at time.Time) error {
	if r == nil || r.base == nil {
		return errors.New("user repository not initialised")
	}
	_, err := r.base.Update(ctx, userID, []firestore.Update{
		{Path: "role", Value: string(role)},
		{Path: "updatedAt", Value: at.UTC()},
	})
	return err
}

// UpdatePasswordHash swaps the stored credential hash.
func (r *UserRepository) UpdatePasswordHash(ctx context.Context, userID string, hash string, at time.Time) error {
	if r == nil || r.base == nil {
		return errors.New("user repository not initialised")
	}
	if hash == "" {
		return errors.New("password hash is required")
	}
	_, err := r.base.Update(ctx, userID, []firestore.Update{
		{Path: "passwordHash", Value: hash},
		{Path: "updatedAt", Value: at.UTC()},
	})
	return err
}

type userDocument struct {
	Email        string     `firestore:"email"`
	PasswordHash string     `firestore:"passwordHash"`
	Name         string     `firestore:"name"`
	Phone        string     `firestore:"phone,omitempty"`
	Address      string     `firestore:"address,omitempty"`
	City         string     `firestore:"city,omitempty"`
	Country      string     `firestore:"country,omitempty"`
	Role         string     `firestore:"role"`
	Banned       bool       `firestore:"banned"`
	BanReason    string     `firestore:"banReason,omitempty"`
	BannedAt     *time.Time `firestore:"bannedAt,omitempty"`
	CreatedAt    time.Time  `firestore:"createdAt"`
	UpdatedAt    time.Time  `firestore:"updatedAt"`
}

func fromDomainUser(user domain.User) userDocument {
	return userDocument{
		Email:        strings.ToLower(strings.TrimSpace(user.Email)),
		PasswordHash: user.PasswordHash,
		Name:         strings.TrimSpace(user.Name),
		Phone:        strings.TrimSpace(user.Phone),
		Address:      strings.TrimSpace(user.Address),
		City:         strings.TrimSpace(user.City),
		Country:      strings.TrimSpace(user.Country),
		Role:         string(user.Role),
		Banned:       user.Banned,
		BanReason:    strings.TrimSpace(user.BanReason),
		BannedAt:     user.BannedAt,
		CreatedAt:    user.CreatedAt.UTC(),
		UpdatedAt:    user.UpdatedAt.UTC(),
	}
}

func (d userDocument) toDomain(id string) domain.User {
	role := domain.Role(d.Role)
	if role == "" {
		role = domain.RoleUser
	}
	return domain.User{
		ID:           id,
		Email:        d.Email,
		PasswordHash: d.PasswordHash,
		Name:         d.Name,
		Phone:        d.Phone,
		Address:      d.Address,
		City:         d.City,
		Country:      d.Country,
		Role:         role,
		Banned:       d.Banned,
		BanReason:    d.BanReason,
		BannedAt:     d.BannedAt,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}
