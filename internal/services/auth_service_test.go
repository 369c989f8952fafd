package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	domain "github.com/fashion-shop/api/internal/domain"
	"github.com/fashion-shop/api/internal/platform/auth"
	"github.com/fashion-shop/api/internal/repositories"
)

type stubUserRepository struct {
	insertFn         func(ctx context.Context, user domain.User) error
	updateFn         func(ctx context.Context, user domain.User) error
	deleteFn         func(ctx context.Context, userID string) error
	findByIDFn       func(ctx context.Context, userID string) (domain.User, error)
	findByEmailFn    func(ctx context.Context, email string) (domain.User, error)
	listFn           func(ctx context.Context, filter repositories.UserListFilter) (domain.CursorPage[domain.User], error)
	countFn          func(ctx context.Context) (int64, error)
	setBannedFn      func(ctx context.Context, userID string, banned bool, reason string, at time.Time) error
	setRoleFn        func(ctx context.Context, userID string, role domain.Role, at time.Time) error
	updatePasswordFn func(ctx context.Context, userID string, hash string, at time.Time) error
}

func (s *stubUserRepository) Insert(ctx context.Context, user domain.User) error {
	if s.insertFn == nil {
		return nil
	}
	return s.insertFn(ctx, user)
}

func (s *stubUserRepository) Update(ctx context.Context, user domain.User) error {
	if s.updateFn == nil {
		return nil
	}
	return s.updateFn(ctx, user)
}

func (s *stubUserRepository) Delete(ctx context.Context, userID string) error {
	if s.deleteFn == nil {
		return nil
	}
	return s.deleteFn(ctx, userID)
}

func (s *stubUserRepository) FindByID(ctx context.Context, userID string) (domain.User, error) {
	if s.findByIDFn == nil {
		return domain.User{}, &repoError{notFound: true}
	}
	return s.findByIDFn(ctx, userID)
}

func (s *stubUserRepository) FindByEmail(ctx context.Context, email string) (domain.User, error) {
	if s.findByEmailFn == nil {
		return domain.User{}, &repoError{notFound: true}
	}
	return s.findByEmailFn(ctx, email)
}

func (s *stubUserRepository) List(ctx context.Context, filter repositories.UserListFilter) (domain.CursorPage[domain.User], error) {
	if s.listFn == nil {
		return domain.CursorPage[domain.User]{}, errors.New("unexpected List")
	}
	return s.listFn(ctx, filter)
}

func (s *stubUserRepository) Count(ctx context.Context) (int64, error) {
	if s.countFn == nil {
		return 0, errors.New("unexpected Count")
	}
	return s.countFn(ctx)
}

func (s *stubUserRepository) SetBanned(ctx context.Context, userID string, banned bool, reason string, at time.Time) error {
	if s.setBannedFn == nil {
		return nil
	}
	return s.setBannedFn(ctx, userID, banned, reason, at)
}

func (s *stubUserRepository) SetRole(ctx context.Context, userID string, role domain.Role, at time.Time) error {
	if s.setRoleFn == nil {
		return nil
	}
	return s.setRoleFn(ctx, userID, role, at)
}

func (s *stubUserRepository) UpdatePasswordHash(ctx context.Context, userID string, hash string, at time.Time) error {
	if s.updatePasswordFn == nil {
		return nil
	}
	return s.updatePasswordFn(ctx, userID, hash, at)
}

var _ repositories.UserRepository = (*stubUserRepository)(nil)

type stubResetRepository struct {
	insertFn        func(ctx context.Context, token domain.PasswordResetToken) error
	findFn          func(ctx context.Context, jti string) (domain.PasswordResetToken, error)
	markUsedFn      func(ctx context.Context, jti string, at time.Time) error
	deleteExpiredFn func(ctx context.Context, before time.Time, limit int) (int, error)
}

func (s *stubResetRepository) Insert(ctx context.Context, token domain.PasswordResetToken) error {
	if s.insertFn == nil {
		return nil
	}
	return s.insertFn(ctx, token)
}

func (s *stubResetRepository) FindByID(ctx context.Context, jti string) (domain.PasswordResetToken, error) {
	if s.findFn == nil {
		return domain.PasswordResetToken{}, &repoError{notFound: true}
	}
	return s.findFn(ctx, jti)
}

func (s *stubResetRepository) MarkUsed(ctx context.Context, jti string, at time.Time) error {
	if s.markUsedFn == nil {
		return nil
	}
	return s.markUsedFn(ctx, jti, at)
}

func (s *stubResetRepository) DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error) {
	if s.deleteExpiredFn == nil {
		return 0, nil
	}
	return s.deleteExpiredFn(ctx, before, limit)
}

var _ repositories.PasswordResetRepository = (*stubResetRepository)(nil)

type stubTokenIssuer struct {
	issueAccessFn func(uid, email, role string) (string, time.Time, error)
	issueResetFn  func(uid string) (auth.ResetToken, error)
	verifyResetFn func(token string) (string, string, error)
}

func (s *stubTokenIssuer) IssueAccessToken(uid, email, role string) (string, time.Time, error) {
	if s.issueAccessFn == nil {
		return "access-token", time.Date(2024, 6, 1, 13, 0, 0, 0, time.UTC), nil
	}
	return s.issueAccessFn(uid, email, role)
}

func (s *stubTokenIssuer) IssueResetToken(uid string) (auth.ResetToken, error) {
	if s.issueResetFn == nil {
		return auth.ResetToken{
			Token:     "reset-token",
			JTI:       "jti-1",
			UserID:    uid,
			ExpiresAt: time.Date(2024, 6, 1, 13, 0, 0, 0, time.UTC),
		}, nil
	}
	return s.issueResetFn(uid)
}

func (s *stubTokenIssuer) VerifyResetToken(token string) (string, string, error) {
	if s.verifyResetFn == nil {
		return "", "", auth.ErrTokenInvalid
	}
	return s.verifyResetFn(token)
}

type stubMailSender struct {
	sent []struct {
		To      string
		Subject string
		Body    string
	}
	err error
}

func (s *stubMailSender) SendMail(ctx context.Context, to, subject, body string) error {
	s.sent = append(s.sent, struct {
		To      string
		Subject string
		Body    string
	}{to, subject, body})
	return s.err
}

func newAuthServiceForTest(t *testing.T, deps AuthServiceDeps) AuthService {
	t.Helper()
	if deps.Users == nil {
		deps.Users = &stubUserRepository{}
	}
	if deps.Resets == nil {
		deps.Resets = &stubResetRepository{}
	}
	if deps.Tokens == nil {
		deps.Tokens = &stubTokenIssuer{}
	}
	if deps.Clock == nil {
		deps.Clock = func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) }
	}
	if deps.BcryptCost == 0 {
		deps.BcryptCost = bcrypt.MinCost
	}
	svc, err := NewAuthService(deps)
	if err != nil {
		t.Fatalf("NewAuthService: %v", err)
	}
	return svc
}

func hashPassword(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	return string(hash)
}

func TestRegisterCreatesAccountAndSession(t *testing.T) {
	var inserted domain.User
	users := &stubUserRepository{
		insertFn: func(ctx context.Context, user domain.User) error {
			inserted = user
			return nil
		},
	}
	svc := newAuthServiceForTest(t, AuthServiceDeps{
		Users:       users,
		IDGenerator: func() string { return "user-1" },
	})

	session, err := svc.Register(context.Background(), RegisterCommand{
		Email:    " Shopper@Example.COM ",
		Password: "correct horse",
		Name:     "Shopper",
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	if inserted.Email != "shopper@example.com" {
		t.Fatalf("expected normalised email, got %q", inserted.Email)
	}
	if inserted.Role != domain.RoleUser {
		t.Fatalf("expected default user role, got %s", inserted.Role)
	}
	if inserted.PasswordHash == "" || strings.Contains(inserted.PasswordHash, "correct horse") {
		t.Fatalf("expected stored hash, got %q", inserted.PasswordHash)
	}
	if session.Token != "access-token" {
		t.Fatalf("expected session token, got %q", session.Token)
	}
	if session.User.PasswordHash != "" {
		t.Fatalf("session must never carry the password hash")
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	users := &stubUserRepository{
		findByEmailFn: func(ctx context.Context, email string) (domain.User, error) {
			return domain.User{ID: "existing", Email: email}, nil
		},
	}
	svc := newAuthServiceForTest(t, AuthServiceDeps{Users: users})

	_, err := svc.Register(context.Background(), RegisterCommand{
		Email:    "taken@example.com",
		Password: "password1",
		Name:     "Dup",
	})
	if !errors.Is(err, ErrAuthEmailTaken) {
		t.Fatalf("expected email taken, got %v", err)
	}
}

func TestRegisterInsertConflictIsEmailTaken(t *testing.T) {
	users := &stubUserRepository{
		insertFn: func(ctx context.Context, user domain.User) error {
			return &repoError{conflict: true}
		},
	}
	svc := newAuthServiceForTest(t, AuthServiceDeps{Users: users})

	_, err := svc.Register(context.Background(), RegisterCommand{
		Email:    "raced@example.com",
		Password: "password1",
		Name:     "Race",
	})
	if !errors.Is(err, ErrAuthEmailTaken) {
		t.Fatalf("expected email taken on insert conflict, got %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	svc := newAuthServiceForTest(t, AuthServiceDeps{})

	cases := []RegisterCommand{
		{Email: "", Password: "password1", Name: "A"},
		{Email: "not-an-email", Password: "password1", Name: "A"},
		{Email: "a@example.com", Password: "short", Name: "A"},
		{Email: "a@example.com", Password: "password1", Name: "  "},
	}
	for i, cmd := range cases {
		if _, err := svc.Register(context.Background(), cmd); !errors.Is(err, ErrAuthInvalidInput) {
			t.Fatalf("case %d: expected invalid input, got %v", i, err)
		}
	}
}

func TestLoginChecksCredentialsWithoutEnumeration(t *testing.T) {
	hash := hashPassword(t, "password1")
	users := &stubUserRepository{
		findByEmailFn: func(ctx context.Context, email string) (domain.User, error) {
			if email == "known@example.com" {
				return domain.User{ID: "user-1", Email: email, PasswordHash: hash}, nil
			}
			return domain.User{}, &repoError{notFound: true}
		},
	}
	svc := newAuthServiceForTest(t, AuthServiceDeps{Users: users})

	ctx := context.Background()
	if _, err := svc.Login(ctx, LoginCommand{Email: "unknown@example.com", Password: "password1"}); !errors.Is(err, ErrAuthInvalidCredentials) {
		t.Fatalf("expected invalid credentials for unknown email, got %v", err)
	}
	if _, err := svc.Login(ctx, LoginCommand{Email: "known@example.com", Password: "wrong password"}); !errors.Is(err, ErrAuthInvalidCredentials) {
		t.Fatalf("expected invalid credentials for wrong password, got %v", err)
	}

	session, err := svc.Login(ctx, LoginCommand{Email: "known@example.com", Password: "password1"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if session.User.ID != "user-1" || session.Token == "" {
		t.Fatalf("unexpected session: %+v", session)
	}
}

func TestLoginBannedAccount(t *testing.T) {
	hash := hashPassword(t, "password1")
	users := &stubUserRepository{
		findByEmailFn: func(ctx context.Context, email string) (domain.User, error) {
			return domain.User{ID: "user-1", Email: email, PasswordHash: hash, Banned: true}, nil
		},
	}
	svc := newAuthServiceForTest(t, AuthServiceDeps{Users: users})

	if _, err := svc.Login(context.Background(), LoginCommand{Email: "banned@example.com", Password: "password1"}); !errors.Is(err, ErrAuthAccountBanned) {
		t.Fatalf("expected account banned, got %v", err)
	}
}

func TestRequestPasswordResetUnknownEmailSucceeds(t *testing.T) {
	inserts := 0
	resets := &stubResetRepository{
		insertFn: func(ctx context.Context, token domain.PasswordResetToken) error {
			inserts++
			return nil
		},
	}
	svc := newAuthServiceForTest(t, AuthServiceDeps{Resets: resets})

	if err := svc.RequestPasswordReset(context.Background(), "nobody@example.com"); err != nil {
		t.Fatalf("expected success for unknown email, got %v", err)
	}
	if inserts != 0 {
		t.Fatalf("expected no token stored for unknown email")
	}
}

func TestRequestPasswordResetStoresTokenAndMails(t *testing.T) {
	users := &stubUserRepository{
		findByEmailFn: func(ctx context.Context, email string) (domain.User, error) {
			return domain.User{ID: "user-1", Email: email, Name: "Shopper"}, nil
		},
	}
	var stored domain.PasswordResetToken
	resets := &stubResetRepository{
		insertFn: func(ctx context.Context, token domain.PasswordResetToken) error {
			stored = token
			return nil
		},
	}
	mailer := &stubMailSender{}
	svc := newAuthServiceForTest(t, AuthServiceDeps{
		Users:        users,
		Resets:       resets,
		Mail:         mailer,
		ResetURLBase: "https://shop.example.com/reset/",
	})

	if err := svc.RequestPasswordReset(context.Background(), "shopper@example.com"); err != nil {
		t.Fatalf("RequestPasswordReset: %v", err)
	}
	if stored.ID != "jti-1" || stored.UserID != "user-1" {
		t.Fatalf("unexpected stored token: %+v", stored)
	}
	if len(mailer.sent) != 1 {
		t.Fatalf("expected one mail, got %d", len(mailer.sent))
	}
	if mailer.sent[0].To != "shopper@example.com" {
		t.Fatalf("unexpected recipient %s", mailer.sent[0].To)
	}
	if !strings.Contains(mailer.sent[0].Body, "https://shop.example.com/reset?token=reset-token") {
		t.Fatalf("expected reset link in body, got %q", mailer.sent[0].Body)
	}
}

func TestRequestPasswordResetWithoutMailerStoresToken(t *testing.T) {
	users := &stubUserRepository{
		findByEmailFn: func(ctx context.Context, email string) (domain.User, error) {
			return domain.User{ID: "user-1", Email: email}, nil
		},
	}
	inserts := 0
	resets := &stubResetRepository{
		insertFn: func(ctx context.Context, token domain.PasswordResetToken) error {
			inserts++
			return nil
		},
	}
	svc := newAuthServiceForTest(t, AuthServiceDeps{Users: users, Resets: resets})

	if err := svc.RequestPasswordReset(context.Background(), "shopper@example.com"); err != nil {
		t.Fatalf("RequestPasswordReset: %v", err)
	}
	if inserts != 1 {
		t.Fatalf("expected token stored even without mailer")
	}
}

func TestResetPasswordRedeemsTokenOnce(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	tokens := &stubTokenIssuer{
		verifyResetFn: func(token string) (string, string, error) {
			return "user-1", "jti-1", nil
		},
	}
	marked := 0
	resets := &stubResetRepository{
		findFn: func(ctx context.Context, jti string) (domain.PasswordResetToken, error) {
			return domain.PasswordResetToken{ID: jti, UserID: "user-1", ExpiresAt: now.Add(time.Hour)}, nil
		},
		markUsedFn: func(ctx context.Context, jti string, at time.Time) error {
			marked++
			return nil
		},
	}
	var newHash string
	users := &stubUserRepository{
		updatePasswordFn: func(ctx context.Context, userID string, hash string, at time.Time) error {
			newHash = hash
			return nil
		},
	}
	svc := newAuthServiceForTest(t, AuthServiceDeps{
		Users:  users,
		Resets: resets,
		Tokens: tokens,
		Clock:  func() time.Time { return now },
	})

	if err := svc.ResetPassword(context.Background(), ResetPasswordCommand{Token: "reset-token", NewPassword: "brand new pass"}); err != nil {
		t.Fatalf("ResetPassword: %v", err)
	}
	if marked != 1 {
		t.Fatalf("expected token marked used once, got %d", marked)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(newHash), []byte("brand new pass")); err != nil {
		t.Fatalf("expected stored hash of new password: %v", err)
	}
}

func TestResetPasswordRejectsReplays(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	tokens := &stubTokenIssuer{
		verifyResetFn: func(token string) (string, string, error) {
			return "user-1", "jti-1", nil
		},
	}

	t.Run("already used", func(t *testing.T) {
		resets := &stubResetRepository{
			findFn: func(ctx context.Context, jti string) (domain.PasswordResetToken, error) {
				return domain.PasswordResetToken{ID: jti, UserID: "user-1", Used: true, ExpiresAt: now.Add(time.Hour)}, nil
			},
		}
		svc := newAuthServiceForTest(t, AuthServiceDeps{Resets: resets, Tokens: tokens, Clock: func() time.Time { return now }})
		if err := svc.ResetPassword(context.Background(), ResetPasswordCommand{Token: "t", NewPassword: "brand new pass"}); !errors.Is(err, ErrAuthTokenInvalid) {
			t.Fatalf("expected token invalid for used token, got %v", err)
		}
	})

	t.Run("concurrent redemption", func(t *testing.T) {
		resets := &stubResetRepository{
			findFn: func(ctx context.Context, jti string) (domain.PasswordResetToken, error) {
				return domain.PasswordResetToken{ID: jti, UserID: "user-1", ExpiresAt: now.Add(time.Hour)}, nil
			},
			markUsedFn: func(ctx context.Context, jti string, at time.Time) error {
				return &repoError{conflict: true}
			},
		}
		svc := newAuthServiceForTest(t, AuthServiceDeps{Resets: resets, Tokens: tokens, Clock: func() time.Time { return now }})
		if err := svc.ResetPassword(context.Background(), ResetPasswordCommand{Token: "t", NewPassword: "brand new pass"}); !errors.Is(err, ErrAuthTokenInvalid) {
			t.Fatalf("expected token invalid when the mark races, got %v", err)
		}
	})

	t.Run("expired record", func(t *testing.T) {
		resets := &stubResetRepository{
			findFn: func(ctx context.Context, jti string) (domain.PasswordResetToken, error) {
				return domain.PasswordResetToken{ID: jti, UserID: "user-1", ExpiresAt: now.Add(-time.Minute)}, nil
			},
		}
		svc := newAuthServiceForTest(t, AuthServiceDeps{Resets: resets, Tokens: tokens, Clock: func() time.Time { return now }})
		if err := svc.ResetPassword(context.Background(), ResetPasswordCommand{Token: "t", NewPassword: "brand new pass"}); !errors.Is(err, ErrAuthTokenExpired) {
			t.Fatalf("expected token expired, got %v", err)
		}
	})

	t.Run("user mismatch", func(t *testing.T) {
		resets := &stubResetRepository{
			findFn: func(ctx context.Context, jti string) (domain.PasswordResetToken, error) {
				return domain.PasswordResetToken{ID: jti, UserID: "someone-else", ExpiresAt: now.Add(time.Hour)}, nil
			},
		}
		svc := newAuthServiceForTest(t, AuthServiceDeps{Resets: resets, Tokens: tokens, Clock: func() time.Time { return now }})
		if err := svc.ResetPassword(context.Background(), ResetPasswordCommand{Token: "t", NewPassword: "brand new pass"}); !errors.Is(err, ErrAuthTokenInvalid) {
			t.Fatalf("expected token invalid for foreign token, got %v", err)
		}
	})
}

func TestResetPasswordExpiredSignature(t *testing.T) {
	tokens := &stubTokenIssuer{
		verifyResetFn: func(token string) (string, string, error) {
			return "", "", auth.ErrTokenExpired
		},
	}
	svc := newAuthServiceForTest(t, AuthServiceDeps{Tokens: tokens})

	if err := svc.ResetPassword(context.Background(), ResetPasswordCommand{Token: "stale", NewPassword: "brand new pass"}); !errors.Is(err, ErrAuthTokenExpired) {
		t.Fatalf("expected token expired, got %v", err)
	}
}

func TestAccountStatus(t *testing.T) {
	users := &stubUserRepository{
		findByIDFn: func(ctx context.Context, userID string) (domain.User, error) {
			switch userID {
			case "banned":
				return domain.User{ID: userID, Banned: true}, nil
			case "active":
				return domain.User{ID: userID}, nil
			}
			return domain.User{}, &repoError{notFound: true}
		},
	}
	svc := newAuthServiceForTest(t, AuthServiceDeps{Users: users})

	ctx := context.Background()
	status, err := svc.AccountStatus(ctx, "active")
	if err != nil || !status.Exists || status.Banned {
		t.Fatalf("unexpected active status %+v err %v", status, err)
	}
	status, err = svc.AccountStatus(ctx, "banned")
	if err != nil || !status.Banned {
		t.Fatalf("unexpected banned status %+v err %v", status, err)
	}
	status, err = svc.AccountStatus(ctx, "ghost")
	if err != nil || status.Exists {
		t.Fatalf("unexpected missing status %+v err %v", status, err)
	}
}
