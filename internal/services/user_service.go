package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	domain "github.com/fashion-shop/api/internal/domain"
	"github.com/fashion-shop/api/internal/repositories"
)

// ErrUserInvalidInput indicates the caller supplied malformed input.
var ErrUserInvalidInput = errors.New("user service: invalid input")

// ErrUserNotFound indicates the account does not exist.
var ErrUserNotFound = errors.New("user service: not found")

// ErrUserInvalidCredentials indicates the current password did not match.
var ErrUserInvalidCredentials = errors.New("user service: invalid credentials")

// ErrUserUnavailable indicates a backend failure.
var ErrUserUnavailable = errors.New("user service: unavailable")

// UserServiceDeps wires the collaborators for account self-management.
type UserServiceDeps struct {
	Users      repositories.UserRepository
	Carts      repositories.CartRepository
	Clock      func() time.Time
	BcryptCost int
	Logger     func(context.Context, string, map[string]any)
}

type userService struct {
	users      repositories.UserRepository
	carts      repositories.CartRepository
	now        func() time.Time
	bcryptCost int
	logger     func(context.Context, string, map[string]any)
}

var _ UserService = (*userService)(nil)

// NewUserService constructs a UserService enforcing dependency validation.
func NewUserService(deps UserServiceDeps) (UserService, error) {
	if deps.Users == nil {
		return nil, errors.New("user service: user repository is required")
	}
	if deps.Carts == nil {
		return nil, errors.New("user service: cart repository is required")
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.BcryptCost <= 0 {
		deps.BcryptCost = bcrypt.DefaultCost
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	clock := deps.Clock
	return &userService{
		users:      deps.Users,
		carts:      deps.Carts,
		now:        func() time.Time { return clock().UTC() },
		bcryptCost: deps.BcryptCost,
		logger:     logger,
	}, nil
}

// GetProfile returns the caller's account with the credential hash stripped.
func (s *userService) GetProfile(ctx context.Context, userID string) (User, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return User{}, fmt.Errorf("%w: user id is required", ErrUserInvalidInput)
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return User{}, s.translateRepoError(err)
	}
	user.PasswordHash = ""
	return user, nil
}

// UpdateProfile patches the supplied profile fields, leaving nil fields untouched.
func (s *userService) UpdateProfile(ctx context.Context, cmd UpdateProfileCommand) (User, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return User{}, fmt.Errorf("%w: user id is required", ErrUserInvalidInput)
	}
	if cmd.Name == nil && cmd.Phone == nil && cmd.Address == nil && cmd.City == nil && cmd.Country == nil {
		return User{}, fmt.Errorf("%w: no fields to update", ErrUserInvalidInput)
	}
	if cmd.Name != nil && strings.TrimSpace(*cmd.Name) == "" {
		return User{}, fmt.Errorf("%w: name cannot be empty", ErrUserInvalidInput)
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return User{}, s.translateRepoError(err)
	}

	if cmd.Name != nil {
		user.Name = strings.TrimSpace(*cmd.Name)
	}
	if cmd.Phone != nil {
		user.Phone = strings.TrimSpace(*cmd.Phone)
	}
	if cmd.Address != nil {
		user.Address = strings.TrimSpace(*cmd.Address)
	}
	if cmd.City != nil {
		user.City = strings.TrimSpace(*cmd.City)
	}
	if cmd.Country != nil {
		user.Country = strings.TrimSpace(*cmd.Country)
	}
	user.UpdatedAt = s.now()

	if err := s.users.Update(ctx, user); err != nil {
		return User{}, s.translateRepoError(err)
	}
	user.PasswordHash = ""
	return user, nil
}

// ChangePassword swaps the credential after re-verifying the current one.
func (s *userService) ChangePassword(ctx context.Context, cmd ChangePasswordCommand) error {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return fmt.Errorf("%w: user id is required", ErrUserInvalidInput)
	}
	if cmd.CurrentPassword == "" {
		return fmt.Errorf("%w: current password is required", ErrUserInvalidInput)
	}
	if len(cmd.NewPassword) < minPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", ErrUserInvalidInput, minPasswordLength)
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return s.translateRepoError(err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(cmd.CurrentPassword)); err != nil {
		return ErrUserInvalidCredentials
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(cmd.NewPassword), s.bcryptCost)
	if err != nil {
		return fmt.Errorf("%w: hash password: %v", ErrUserUnavailable, err)
	}
	if err := s.users.UpdatePasswordHash(ctx, userID, string(hash), s.now()); err != nil {
		return s.translateRepoError(err)
	}

	s.logger(ctx, "user.password_changed", map[string]any{"userId": userID})
	return nil
}

// BecomeSeller upgrades a shopper to the seller role. Accounts that already
// sell keep their role; admins are never downgraded.
func (s *userService) BecomeSeller(ctx context.Context, userID string) (User, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return User{}, fmt.Errorf("%w: user id is required", ErrUserInvalidInput)
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return User{}, s.translateRepoError(err)
	}
	if user.Role == domain.RoleSeller || user.Role == domain.RoleAdmin {
		user.PasswordHash = ""
		return user, nil
	}

	now := s.now()
	if err := s.users.SetRole(ctx, userID, domain.RoleSeller, now); err != nil {
		return User{}, s.translateRepoError(err)
	}
	user.Role = domain.RoleSeller
	user.UpdatedAt = now
	user.PasswordHash = ""

	s.logger(ctx, "user.became_seller", map[string]any{"userId": userID})
	return user, nil
}

// DeleteAccount removes the account and its cart. Orders are retained for
// record keeping.
func (s *userService) DeleteAccount(ctx context.Context, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("%w: user id is required", ErrUserInvalidInput)
	}

	if _, err := s.users.FindByID(ctx, userID); err != nil {
		return s.translateRepoError(err)
	}

	if err := s.carts.Clear(ctx, userID); err != nil {
		return s.translateRepoError(err)
	}
	if err := s.users.Delete(ctx, userID); err != nil {
		return s.translateRepoError(err)
	}

	s.logger(ctx, "user.deleted", map[string]any{"userId": userID})
	return nil
}

func (s *userService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return ErrUserNotFound
		default:
			return ErrUserUnavailable
		}
	}
	return ErrUserUnavailable
}
