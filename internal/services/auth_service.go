package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/crypto/bcrypt"

	domain "github.com/fashion-shop/api/internal/domain"
	"github.com/fashion-shop/api/internal/platform/auth"
	"github.com/fashion-shop/api/internal/repositories"
)

// ErrAuthInvalidInput indicates the caller supplied malformed input.
var ErrAuthInvalidInput = errors.New("auth service: invalid input")

// ErrAuthInvalidCredentials indicates the email/password pair does not match.
var ErrAuthInvalidCredentials = errors.New("auth service: invalid credentials")

// ErrAuthEmailTaken indicates the email is already registered.
var ErrAuthEmailTaken = errors.New("auth service: email already registered")

// ErrAuthAccountBanned indicates the account is banned from signing in.
var ErrAuthAccountBanned = errors.New("auth service: account banned")

// ErrAuthTokenInvalid indicates a reset token that is malformed, forged, or
// already redeemed.
var ErrAuthTokenInvalid = errors.New("auth service: token invalid")

// ErrAuthTokenExpired indicates a reset token past its expiry.
var ErrAuthTokenExpired = errors.New("auth service: token expired")

// ErrAuthUnavailable indicates a backend failure.
var ErrAuthUnavailable = errors.New("auth service: unavailable")

const minPasswordLength = 8

type authTokenManager interface {
	IssueAccessToken(uid, email, role string) (string, time.Time, error)
	IssueResetToken(uid string) (auth.ResetToken, error)
	VerifyResetToken(token string) (userID, jti string, err error)
}

// AuthServiceDeps wires the collaborators for registration and credential flows.
type AuthServiceDeps struct {
	Users        repositories.UserRepository
	Resets       repositories.PasswordResetRepository
	Tokens       authTokenManager
	Mail         MailSender
	Clock        func() time.Time
	IDGenerator  func() string
	ResetURLBase string
	BcryptCost   int
	Logger       func(context.Context, string, map[string]any)
}

type authService struct {
	users      repositories.UserRepository
	resets     repositories.PasswordResetRepository
	tokens     authTokenManager
	mail       MailSender
	now        func() time.Time
	newID      func() string
	resetBase  string
	bcryptCost int
	logger     func(context.Context, string, map[string]any)
}

var _ AuthService = (*authService)(nil)
var _ auth.AccountChecker = (*authService)(nil)

// NewAuthService constructs an AuthService enforcing dependency validation.
func NewAuthService(deps AuthServiceDeps) (AuthService, error) {
	if deps.Users == nil {
		return nil, errors.New("auth service: user repository is required")
	}
	if deps.Resets == nil {
		return nil, errors.New("auth service: password reset repository is required")
	}
	if deps.Tokens == nil {
		return nil, errors.New("auth service: token manager is required")
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.IDGenerator == nil {
		deps.IDGenerator = func() string { return ulid.Make().String() }
	}
	if deps.BcryptCost <= 0 {
		deps.BcryptCost = bcrypt.DefaultCost
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	clock := deps.Clock
	return &authService{
		users:      deps.Users,
		resets:     deps.Resets,
		tokens:     deps.Tokens,
		mail:       deps.Mail,
		now:        func() time.Time { return clock().UTC() },
		newID:      deps.IDGenerator,
		resetBase:  strings.TrimRight(strings.TrimSpace(deps.ResetURLBase), "/"),
		bcryptCost: deps.BcryptCost,
		logger:     logger,
	}, nil
}

// Register creates a shopper account and signs the caller in.
func (s *authService) Register(ctx context.Context, cmd RegisterCommand) (AuthSession, error) {
	email, err := normalizeEmail(cmd.Email)
	if err != nil {
		return AuthSession{}, err
	}
	if err := validatePassword(cmd.Password); err != nil {
		return AuthSession{}, err
	}
	name := strings.TrimSpace(cmd.Name)
	if name == "" {
		return AuthSession{}, fmt.Errorf("%w: name is required", ErrAuthInvalidInput)
	}

	if _, err := s.users.FindByEmail(ctx, email); err == nil {
		return AuthSession{}, ErrAuthEmailTaken
	} else if !isRepoNotFound(err) {
		return AuthSession{}, s.translateRepoError(err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(cmd.Password), s.bcryptCost)
	if err != nil {
		return AuthSession{}, fmt.Errorf("%w: hash password: %v", ErrAuthUnavailable, err)
	}

	now := s.now()
	user := domain.User{
		ID:           s.newID(),
		Email:        email,
		PasswordHash: string(hash),
		Name:         name,
		Role:         domain.RoleUser,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Insert(ctx, user); err != nil {
		// The unique-email check above races with concurrent registrations;
		// the insert conflict is the authoritative answer.
		if isRepoConflict(err) {
			return AuthSession{}, ErrAuthEmailTaken
		}
		return AuthSession{}, s.translateRepoError(err)
	}

	s.logger(ctx, "auth.registered", map[string]any{"userId": user.ID})
	return s.session(user)
}

// Login exchanges credentials for a session token.
func (s *authService) Login(ctx context.Context, cmd LoginCommand) (AuthSession, error) {
	email, err := normalizeEmail(cmd.Email)
	if err != nil {
		return AuthSession{}, err
	}
	if cmd.Password == "" {
		return AuthSession{}, fmt.Errorf("%w: password is required", ErrAuthInvalidInput)
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if isRepoNotFound(err) {
			return AuthSession{}, ErrAuthInvalidCredentials
		}
		return AuthSession{}, s.translateRepoError(err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(cmd.Password)); err != nil {
		return AuthSession{}, ErrAuthInvalidCredentials
	}
	if user.Banned {
		return AuthSession{}, ErrAuthAccountBanned
	}

	return s.session(user)
}

// RequestPasswordReset issues a single-use reset token and mails the link.
func (s *authService) RequestPasswordReset(ctx context.Context, email string) error {
	email, err := normalizeEmail(email)
	if err != nil {
		return err
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if isRepoNotFound(err) {
			// Report success so the endpoint cannot enumerate accounts.
			return nil
		}
		return s.translateRepoError(err)
	}

	token, err := s.tokens.IssueResetToken(user.ID)
	if err != nil {
		return fmt.Errorf("%w: issue reset token: %v", ErrAuthUnavailable, err)
	}

	now := s.now()
	record := domain.PasswordResetToken{
		ID:        token.JTI,
		UserID:    user.ID,
		ExpiresAt: token.ExpiresAt,
		CreatedAt: now,
	}
	if err := s.resets.Insert(ctx, record); err != nil {
		return s.translateRepoError(err)
	}

	if s.mail != nil {
		link := token.Token
		if s.resetBase != "" {
			link = fmt.Sprintf("%s?token=%s", s.resetBase, token.Token)
		}
		body := fmt.Sprintf(
			"Hello %s,\r\n\r\nA password reset was requested for your account. Use the link below within %s:\r\n\r\n%s\r\n\r\nIf you did not request this, ignore this message.\r\n",
			user.Name, time.Until(token.ExpiresAt).Round(time.Minute), link,
		)
		if err := s.mail.SendMail(ctx, user.Email, "Reset your password", body); err != nil {
			s.logger(ctx, "auth.reset_mail_failed", map[string]any{
				"userId": user.ID,
				"error":  err.Error(),
			})
			return fmt.Errorf("%w: send reset mail: %v", ErrAuthUnavailable, err)
		}
	}

	s.logger(ctx, "auth.reset_requested", map[string]any{"userId": user.ID})
	return nil
}

// ResetPassword redeems a reset token. Each token works exactly once; marking
// it used is a conditional write so concurrent redemptions cannot both win.
func (s *authService) ResetPassword(ctx context.Context, cmd ResetPasswordCommand) error {
	if strings.TrimSpace(cmd.Token) == "" {
		return fmt.Errorf("%w: token is required", ErrAuthInvalidInput)
	}
	if err := validatePassword(cmd.NewPassword); err != nil {
		return err
	}

	userID, jti, err := s.tokens.VerifyResetToken(cmd.Token)
	if err != nil {
		if errors.Is(err, auth.ErrTokenExpired) {
			return ErrAuthTokenExpired
		}
		return ErrAuthTokenInvalid
	}

	record, err := s.resets.FindByID(ctx, jti)
	if err != nil {
		if isRepoNotFound(err) {
			return ErrAuthTokenInvalid
		}
		return s.translateRepoError(err)
	}
	if record.UserID != userID {
		return ErrAuthTokenInvalid
	}
	now := s.now()
	if record.Used {
		return ErrAuthTokenInvalid
	}
	if now.After(record.ExpiresAt) {
		return ErrAuthTokenExpired
	}

	if err := s.resets.MarkUsed(ctx, jti, now); err != nil {
		if isRepoConflict(err) {
			return ErrAuthTokenInvalid
		}
		return s.translateRepoError(err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(cmd.NewPassword), s.bcryptCost)
	if err != nil {
		return fmt.Errorf("%w: hash password: %v", ErrAuthUnavailable, err)
	}
	if err := s.users.UpdatePasswordHash(ctx, userID, string(hash), now); err != nil {
		return s.translateRepoError(err)
	}

	s.logger(ctx, "auth.password_reset", map[string]any{"userId": userID})
	return nil
}

// AccountStatus reports whether the account exists and is banned. It backs the
// request middleware so revoked accounts are cut off before their token expires.
func (s *authService) AccountStatus(ctx context.Context, uid string) (auth.AccountStatus, error) {
	user, err := s.users.FindByID(ctx, uid)
	if err != nil {
		if isRepoNotFound(err) {
			return auth.AccountStatus{Exists: false}, nil
		}
		return auth.AccountStatus{}, s.translateRepoError(err)
	}
	return auth.AccountStatus{Exists: true, Banned: user.Banned}, nil
}

func (s *authService) session(user domain.User) (AuthSession, error) {
	token, expiresAt, err := s.tokens.IssueAccessToken(user.ID, user.Email, string(user.Role))
	if err != nil {
		return AuthSession{}, fmt.Errorf("%w: issue access token: %v", ErrAuthUnavailable, err)
	}
	user.PasswordHash = ""
	return AuthSession{User: user, Token: token, ExpiresAt: expiresAt}, nil
}

func (s *authService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsNotFound() {
		return ErrAuthInvalidCredentials
	}
	return ErrAuthUnavailable
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", fmt.Errorf("%w: email is required", ErrAuthInvalidInput)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%w: email is malformed", ErrAuthInvalidInput)
	}
	return email, nil
}

func validatePassword(password string) error {
	if len(password) < minPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", ErrAuthInvalidInput, minPasswordLength)
	}
	return nil
}
