package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	domainauth "campusmarket/internal/domain/auth"
	domainuser "campusmarket/internal/domain/user"
	"campusmarket/internal/infra/storage/memory"
)

type plainHasher struct{}

func (plainHasher) Hash(password string) (string, error) { return "hash:" + password, nil }

func (plainHasher) Compare(hash, password string) error {
	if hash != "hash:"+password {
		return errors.New("mismatch")
	}
	return nil
}

type sequenceTokens struct{ n int }

func (g *sequenceTokens) NewToken() (string, error) {
	g.n++
	return string(rune('a'-1+g.n)) + "-token", nil
}

func newTestService() *Service {
	return &Service{
		Users:      memory.NewUserRepository(),
		Sessions:   memory.NewSessionStore(),
		Passwords:  plainHasher{},
		Tokens:     &sequenceTokens{},
		SessionTTL: time.Hour,
	}
}

func TestRegisterIssuesSession(t *testing.T) {
	svc := newTestService()
	result, err := svc.Register(context.Background(), RegisterParams{
		Email:    "Alice@Example.EDU",
		Name:     "Alice",
		Password: "correct horse",
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if result.Token == "" {
		t.Error("no session token issued")
	}
	if result.User.Email != "alice@example.edu" {
		t.Errorf("email not normalized: %q", result.User.Email)
	}

	resolved, err := svc.ResolveToken(context.Background(), result.Token)
	if err != nil {
		t.Fatalf("ResolveToken: %v", err)
	}
	if resolved.User.ID != result.User.ID {
		t.Errorf("resolved wrong user %q", resolved.User.ID)
	}
}

func TestRegisterRejectsShortPassword(t *testing.T) {
	svc := newTestService()
	_, err := svc.Register(context.Background(), RegisterParams{
		Email: "a@b.edu", Name: "A", Password: "short",
	})
	if !errors.Is(err, ErrPasswordTooShort) {
		t.Fatalf("got %v, want password length error", err)
	}
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	svc := newTestService()
	params := RegisterParams{Email: "a@b.edu", Name: "A", Password: "long enough"}
	if _, err := svc.Register(context.Background(), params); err != nil {
		t.Fatal(err)
	}
	_, err := svc.Register(context.Background(), params)
	if !errors.Is(err, domainuser.ErrEmailAlreadyUsed) {
		t.Fatalf("got %v, want duplicate email error", err)
	}
}

func TestLogin(t *testing.T) {
	svc := newTestService()
	if _, err := svc.Register(context.Background(), RegisterParams{
		Email: "a@b.edu", Name: "A", Password: "long enough",
	}); err != nil {
		t.Fatal(err)
	}

	result, err := svc.Login(context.Background(), LoginParams{Email: "a@b.edu", Password: "long enough"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if result.Token == "" {
		t.Error("no token on login")
	}

	if _, err := svc.Login(context.Background(), LoginParams{Email: "a@b.edu", Password: "wrong"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong password: %v", err)
	}
	if _, err := svc.Login(context.Background(), LoginParams{Email: "nobody@b.edu", Password: "long enough"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("unknown email: %v", err)
	}
}

func TestUpdateProfile(t *testing.T) {
	svc := newTestService()
	result, err := svc.Register(context.Background(), RegisterParams{
		Email: "a@b.edu", Name: "A", Password: "long enough", PictureURL: "http://pics/a.png",
	})
	if err != nil {
		t.Fatal(err)
	}

	updated, err := svc.UpdateProfile(context.Background(), result.User.ID, UpdateProfileParams{Name: "  Alice Baker  "})
	if err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}
	if updated.Name != "Alice Baker" {
		t.Errorf("name = %q, want trimmed rename", updated.Name)
	}
	if updated.PictureURL != "http://pics/a.png" {
		t.Errorf("picture changed without a value: %q", updated.PictureURL)
	}

	// Persisted, not just returned: the directory used for conversation
	// previews must see the new name.
	profile, err := svc.Users.(*memory.UserRepository).ProfileByID(context.Background(), result.User.ID)
	if err != nil {
		t.Fatal(err)
	}
	if profile.Name != "Alice Baker" {
		t.Errorf("directory name = %q, want %q", profile.Name, "Alice Baker")
	}

	empty := ""
	updated, err = svc.UpdateProfile(context.Background(), result.User.ID, UpdateProfileParams{Name: "Alice Baker", PictureURL: &empty})
	if err != nil {
		t.Fatal(err)
	}
	if updated.PictureURL != "" {
		t.Errorf("picture not cleared: %q", updated.PictureURL)
	}

	if _, err := svc.UpdateProfile(context.Background(), result.User.ID, UpdateProfileParams{Name: "   "}); !errors.Is(err, domainuser.ErrNameRequired) {
		t.Errorf("blank name: got %v, want name error", err)
	}
}

func TestChangePassword(t *testing.T) {
	svc := newTestService()
	result, err := svc.Register(context.Background(), RegisterParams{
		Email: "a@b.edu", Name: "A", Password: "long enough",
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := svc.ChangePassword(context.Background(), result.User.ID, ChangePasswordParams{Current: "wrong", New: "even longer"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong current password: %v", err)
	}
	if _, err := svc.ChangePassword(context.Background(), result.User.ID, ChangePasswordParams{Current: "long enough", New: "tiny"}); !errors.Is(err, ErrPasswordTooShort) {
		t.Fatalf("short new password: %v", err)
	}

	rotated, err := svc.ChangePassword(context.Background(), result.User.ID, ChangePasswordParams{Current: "long enough", New: "even longer"})
	if err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}
	if rotated.Token == "" || rotated.Token == result.Token {
		t.Errorf("expected a fresh token, got %q", rotated.Token)
	}

	if _, err := svc.ResolveToken(context.Background(), result.Token); !errors.Is(err, domainauth.ErrSessionNotFound) {
		t.Errorf("old session survived password change: %v", err)
	}
	if _, err := svc.ResolveToken(context.Background(), rotated.Token); err != nil {
		t.Errorf("fresh session does not resolve: %v", err)
	}

	if _, err := svc.Login(context.Background(), LoginParams{Email: "a@b.edu", Password: "long enough"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("old password still accepted: %v", err)
	}
	if _, err := svc.Login(context.Background(), LoginParams{Email: "a@b.edu", Password: "even longer"}); err != nil {
		t.Errorf("new password rejected: %v", err)
	}
}

func TestResolveTokenRejectsExpiredSession(t *testing.T) {
	svc := newTestService()
	result, err := svc.Register(context.Background(), RegisterParams{
		Email: "a@b.edu", Name: "A", Password: "long enough",
	})
	if err != nil {
		t.Fatal(err)
	}

	expired := &domainauth.Session{
		Token:     domainauth.Token(result.Token),
		UserID:    result.User.ID,
		CreatedAt: time.Now().Add(-2 * time.Hour),
		ExpiresAt: time.Now().Add(-time.Hour),
	}
	if err := svc.Sessions.Save(context.Background(), expired); err != nil {
		t.Fatal(err)
	}

	if _, err := svc.ResolveToken(context.Background(), result.Token); !errors.Is(err, domainauth.ErrSessionNotFound) {
		t.Fatalf("expired session resolved: %v", err)
	}
}

func TestLogoutInvalidatesToken(t *testing.T) {
	svc := newTestService()
	result, err := svc.Register(context.Background(), RegisterParams{
		Email: "a@b.edu", Name: "A", Password: "long enough",
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := svc.Logout(context.Background(), result.Token); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, err := svc.ResolveToken(context.Background(), result.Token); !errors.Is(err, domainauth.ErrSessionNotFound) {
		t.Fatalf("token still resolves after logout: %v", err)
	}
}
