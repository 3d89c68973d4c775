package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/service-desk/internal/auth"
	"github.com/spec-kit/service-desk/internal/domain"
	"github.com/spec-kit/service-desk/internal/repository"
)

type fakeUserRepo struct {
	byID   map[string]*domain.User
	nextID int
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{byID: make(map[string]*domain.User)}
}

func (f *fakeUserRepo) Create(_ context.Context, user *domain.User) error {
	f.nextID++
	user.ID = fmt.Sprintf("user-%d", f.nextID)
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	clone := *user
	f.byID[user.ID] = &clone
	return nil
}

func (f *fakeUserRepo) Update(_ context.Context, user *domain.User) error {
	if _, ok := f.byID[user.ID]; !ok {
		return pgx.ErrNoRows
	}
	clone := *user
	f.byID[user.ID] = &clone
	return nil
}

func (f *fakeUserRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	user, ok := f.byID[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := *user
	return &clone, nil
}

func (f *fakeUserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	for _, user := range f.byID {
		if user.Email == email {
			clone := *user
			return &clone, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (f *fakeUserRepo) List(_ context.Context, _, _ int) ([]domain.User, error) {
	var result []domain.User
	for _, user := range f.byID {
		result = append(result, *user)
	}
	return result, nil
}

type fakeResetRepo struct {
	byToken map[string]*repository.PasswordResetToken
	nextID  int
}

func newFakeResetRepo() *fakeResetRepo {
	return &fakeResetRepo{byToken: make(map[string]*repository.PasswordResetToken)}
}

func (f *fakeResetRepo) Create(_ context.Context, token *repository.PasswordResetToken) error {
	f.nextID++
	token.ID = fmt.Sprintf("reset-%d", f.nextID)
	token.CreatedAt = time.Now()
	f.byToken[token.Token] = token
	return nil
}

func (f *fakeResetRepo) GetByToken(_ context.Context, tokenStr string) (*repository.PasswordResetToken, error) {
	token, ok := f.byToken[tokenStr]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := *token
	return &clone, nil
}

func (f *fakeResetRepo) MarkUsed(_ context.Context, id string) error {
	for _, token := range f.byToken {
		if token.ID == id {
			usedAt := time.Now()
			token.UsedAt = &usedAt
			return nil
		}
	}
	return pgx.ErrNoRows
}

type authFixture struct {
	svc    *AuthService
	users  *fakeUserRepo
	resets *fakeResetRepo
	now    time.Time
}

func newAuthFixture() *authFixture {
	f := &authFixture{
		users:  newFakeUserRepo(),
		resets: newFakeResetRepo(),
		now:    time.Date(2025, time.June, 15, 10, 0, 0, 0, time.UTC),
	}
	tokens := auth.NewTokenManager("test-secret", 15*time.Minute, 7*24*time.Hour, auth.NewMemoryRefreshStore())
	f.svc = NewAuthService(AuthDependencies{
		UserRepo:          f.users,
		PasswordResetRepo: f.resets,
		Tokens:            tokens,
		BcryptCost:        4,
		ResetTTL:          30 * time.Minute,
	}).WithClock(func() time.Time { return f.now })
	return f
}

func (f *authFixture) register(t *testing.T, email string) *domain.User {
	t.Helper()
	user, _, err := f.svc.Register(context.Background(), RegisterInput{
		Email:     email,
		Password:  "correct horse",
		FirstName: "Ada",
		LastName:  "Lovelace",
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	return user
}

func TestRegisterIssuesSessionWithUserRole(t *testing.T) {
	f := newAuthFixture()

	user, pair, err := f.svc.Register(context.Background(), RegisterInput{
		Email:     "  Ada@Example.COM ",
		Password:  "correct horse",
		FirstName: "Ada",
		LastName:  "Lovelace",
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if user.Email != "ada@example.com" {
		t.Errorf("email not normalized: %q", user.Email)
	}
	if user.Role != domain.RoleUser {
		t.Errorf("Role = %q, want user", user.Role)
	}
	if user.LastLogin == nil {
		t.Error("LastLogin not stamped")
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Error("token pair incomplete")
	}
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	f := newAuthFixture()
	f.register(t, "ada@example.com")

	_, _, err := f.svc.Register(context.Background(), RegisterInput{
		Email:     "ada@example.com",
		Password:  "another pass",
		FirstName: "A",
		LastName:  "L",
	})
	assertDomainCode(t, err, "CONFLICT")
}

func TestRegisterRejectsShortPassword(t *testing.T) {
	f := newAuthFixture()

	_, _, err := f.svc.Register(context.Background(), RegisterInput{
		Email:     "ada@example.com",
		Password:  "short",
		FirstName: "A",
		LastName:  "L",
	})
	assertDomainCode(t, err, "VALIDATION_FAILED")
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	f := newAuthFixture()
	f.register(t, "ada@example.com")

	_, _, err := f.svc.Login(context.Background(), "ada@example.com", "wrong password")
	assertDomainCode(t, err, "UNAUTHORIZED")

	// Unknown email yields the same error as a wrong password.
	_, _, err = f.svc.Login(context.Background(), "nobody@example.com", "correct horse")
	assertDomainCode(t, err, "UNAUTHORIZED")
}

func TestLoginRejectsInactiveAccount(t *testing.T) {
	f := newAuthFixture()
	user := f.register(t, "ada@example.com")

	stored, _ := f.users.GetByID(context.Background(), user.ID)
	stored.Active = false
	if err := f.users.Update(context.Background(), stored); err != nil {
		t.Fatalf("Update: %v", err)
	}

	_, _, err := f.svc.Login(context.Background(), "ada@example.com", "correct horse")
	assertDomainCode(t, err, "UNAUTHORIZED")
}

func TestRefreshReturnsCurrentUser(t *testing.T) {
	f := newAuthFixture()
	f.register(t, "ada@example.com")

	registered, pair, err := f.svc.Login(context.Background(), "ada@example.com", "correct horse")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	user, accessToken, expiresAt, err := f.svc.Refresh(context.Background(), pair.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if user.ID != registered.ID {
		t.Errorf("refreshed user = %q, want %q", user.ID, registered.ID)
	}
	if accessToken == "" || expiresAt.IsZero() {
		t.Error("minted access token incomplete")
	}
}

func TestLogoutRevokesRefreshLineage(t *testing.T) {
	f := newAuthFixture()
	f.register(t, "ada@example.com")

	_, pair, err := f.svc.Login(context.Background(), "ada@example.com", "correct horse")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if err := f.svc.Logout(context.Background(), pair.RefreshToken); err != nil {
		t.Fatalf("Logout: %v", err)
	}

	_, _, _, err = f.svc.Refresh(context.Background(), pair.RefreshToken)
	assertDomainCode(t, err, "UNAUTHORIZED")
}

func TestLogoutIsIdempotent(t *testing.T) {
	f := newAuthFixture()

	if err := f.svc.Logout(context.Background(), "not-a-token"); err != nil {
		t.Errorf("Logout with garbage token: %v", err)
	}
}

func TestChangePasswordVerifiesCurrent(t *testing.T) {
	f := newAuthFixture()
	user := f.register(t, "ada@example.com")

	err := f.svc.ChangePassword(context.Background(), user.ID, "wrong password", "new password 1")
	assertDomainCode(t, err, "UNAUTHORIZED")

	if err := f.svc.ChangePassword(context.Background(), user.ID, "correct horse", "new password 1"); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}
	if _, _, err := f.svc.Login(context.Background(), "ada@example.com", "new password 1"); err != nil {
		t.Errorf("login with new password: %v", err)
	}
	_, _, err = f.svc.Login(context.Background(), "ada@example.com", "correct horse")
	assertDomainCode(t, err, "UNAUTHORIZED")
}

func TestPasswordResetDoesNotDiscloseEmails(t *testing.T) {
	f := newAuthFixture()

	token, err := f.svc.RequestPasswordReset(context.Background(), "nobody@example.com")
	if err != nil {
		t.Fatalf("RequestPasswordReset: %v", err)
	}
	if token != nil {
		t.Errorf("token issued for unknown email: %+v", token)
	}
}

func TestPasswordResetRoundTrip(t *testing.T) {
	f := newAuthFixture()
	f.register(t, "ada@example.com")

	token, err := f.svc.RequestPasswordReset(context.Background(), "ada@example.com")
	if err != nil {
		t.Fatalf("RequestPasswordReset: %v", err)
	}
	if token == nil || token.Token == "" {
		t.Fatal("no token issued")
	}
	if !token.ExpiresAt.Equal(f.now.Add(30 * time.Minute)) {
		t.Errorf("ExpiresAt = %v", token.ExpiresAt)
	}

	if err := f.svc.ConfirmPasswordReset(context.Background(), token.Token, "reset password 1"); err != nil {
		t.Fatalf("ConfirmPasswordReset: %v", err)
	}
	if _, _, err := f.svc.Login(context.Background(), "ada@example.com", "reset password 1"); err != nil {
		t.Errorf("login after reset: %v", err)
	}

	// The token is single use.
	err = f.svc.ConfirmPasswordReset(context.Background(), token.Token, "reset password 2")
	assertDomainCode(t, err, "VALIDATION_FAILED")
}

func TestPasswordResetExpires(t *testing.T) {
	f := newAuthFixture()
	f.register(t, "ada@example.com")

	token, err := f.svc.RequestPasswordReset(context.Background(), "ada@example.com")
	if err != nil {
		t.Fatalf("RequestPasswordReset: %v", err)
	}

	f.now = f.now.Add(31 * time.Minute)
	err = f.svc.ConfirmPasswordReset(context.Background(), token.Token, "reset password 1")
	assertDomainCode(t, err, "VALIDATION_FAILED")
}

func TestListUsersAdminOnly(t *testing.T) {
	f := newAuthFixture()
	user := f.register(t, "ada@example.com")

	_, err := f.svc.ListUsers(context.Background(), user, 50, 0)
	assertDomainCode(t, err, "FORBIDDEN")

	admin := &domain.User{ID: "admin-1", Role: domain.RoleAdmin}
	result, err := f.svc.ListUsers(context.Background(), admin, 50, 0)
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if len(result) != 1 {
		t.Errorf("users = %d, want 1", len(result))
	}
}
