package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"triage-chatbot/pkg"
)

var _ UserStore = (*memUsers)(nil)

type memUsers struct {
	byID map[int64]*pkg.User
}

func (m *memUsers) GetUserByID(_ context.Context, id int64) (*pkg.User, error) {
	if u, ok := m.byID[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, pkg.ErrNotFound
}

func (m *memUsers) GetUserByEmail(_ context.Context, email string) (*pkg.User, error) {
	for _, u := range m.byID {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, pkg.ErrNotFound
}

func newTestService(t *testing.T) (*Service, *memUsers) {
	t.Helper()
	hash, err := HashPassword("doctor123")
	require.NoError(t, err)
	users := &memUsers{byID: map[int64]*pkg.User{
		1: {ID: 1, Email: "doctor@example.com", PasswordHash: hash, Role: pkg.RoleClinician, Name: "Doctor"},
		2: {ID: 2, Email: "desk@example.com", PasswordHash: hash, Role: pkg.RoleStaff, Name: "Desk"},
	}}
	return NewService(NewIssuer("test-secret", time.Hour), users), users
}

func TestLoginIssuesTokenWithStoredRole(t *testing.T) {
	svc, _ := newTestService(t)

	token, u, err := svc.Login(context.Background(), "doctor@example.com", "doctor123")
	require.NoError(t, err)
	assert.Equal(t, int64(1), u.ID)

	claims, err := svc.Issuer.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, pkg.RoleClinician, claims.Role)
	assert.Equal(t, "doctor@example.com", claims.Email)
	assert.NotNil(t, claims.ExpiresAt)
}

func TestLoginIgnoresEmailCaseAndSpacing(t *testing.T) {
	svc, _ := newTestService(t)

	for _, email := range []string{"Doctor@Example.COM", "  doctor@example.com ", "DOCTOR@EXAMPLE.COM"} {
		_, u, err := svc.Login(context.Background(), email, "doctor123")
		require.NoError(t, err, email)
		assert.Equal(t, int64(1), u.ID)
	}
	assert.Equal(t, "doctor@example.com", NormalizeEmail(" Doctor@Example.com"))
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	svc, _ := newTestService(t)

	_, _, errWrongPw := svc.Login(context.Background(), "doctor@example.com", "nope")
	_, _, errNoUser := svc.Login(context.Background(), "ghost@example.com", "doctor123")

	assert.ErrorIs(t, errWrongPw, ErrInvalidCredentials)
	assert.ErrorIs(t, errNoUser, ErrInvalidCredentials)
	assert.Equal(t, errWrongPw.Error(), errNoUser.Error())
}

func TestAuthenticate(t *testing.T) {
	svc, users := newTestService(t)
	token, _, err := svc.Login(context.Background(), "doctor@example.com", "doctor123")
	require.NoError(t, err)

	u, err := svc.Authenticate(context.Background(), "Bearer "+token)
	require.NoError(t, err)
	assert.Equal(t, "Doctor", u.Name)

	u, err = svc.Authenticate(context.Background(), token)
	require.NoError(t, err, "raw tokens are accepted for websocket query strings")
	assert.Equal(t, int64(1), u.ID)

	_, err = svc.Authenticate(context.Background(), "")
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, err = svc.Authenticate(context.Background(), "Bearer not.a.jwt")
	assert.ErrorIs(t, err, ErrUnauthenticated)

	users.byID[1].Role = pkg.RoleStaff
	_, err = svc.Authenticate(context.Background(), token)
	assert.ErrorIs(t, err, ErrUnauthenticated, "stale role claim")

	delete(users.byID, 1)
	_, err = svc.Authenticate(context.Background(), token)
	assert.ErrorIs(t, err, ErrUnauthenticated, "deleted user")
}

func TestParseRejectsExpiredAndForeignTokens(t *testing.T) {
	issuer := NewIssuer("test-secret", time.Minute)
	u := &pkg.User{ID: 1, Email: "a@b.c", Role: pkg.RoleClinician}
	token, err := issuer.Issue(u)
	require.NoError(t, err)

	issuer.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, err = issuer.Parse(token)
	assert.ErrorIs(t, err, ErrUnauthenticated)

	other := NewIssuer("other-secret", time.Minute)
	_, err = other.Parse(token)
	assert.ErrorIs(t, err, ErrUnauthenticated)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: 1, Role: pkg.RoleClinician}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = NewIssuer("test-secret", time.Minute).Parse(none)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestAuthorize(t *testing.T) {
	doc := &pkg.User{Role: pkg.RoleClinician}
	desk := &pkg.User{Role: pkg.RoleStaff}

	assert.NoError(t, Authorize(doc, ViewDashboard))
	assert.NoError(t, Authorize(doc, JoinClinicianRoom))
	err := Authorize(desk, ViewDashboard)
	assert.ErrorIs(t, err, ErrForbidden)
	assert.False(t, errors.Is(err, ErrUnauthenticated))
	assert.ErrorIs(t, Authorize(nil, ViewDashboard), ErrUnauthenticated)
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "abc", BearerToken("Bearer abc"))
	assert.Equal(t, "abc", BearerToken("bearer  abc "))
	assert.Equal(t, "abc", BearerToken("abc"))
	assert.Equal(t, "", BearerToken("  "))
}
