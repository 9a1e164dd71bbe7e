package service

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"

	"firebase.google.com/go/v4/auth"
	"github.com/golang-jwt/jwt/v5"
	"github.com/mansoorceksport/sitekit/internal/config"
	"github.com/mansoorceksport/sitekit/internal/domain"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memUsers struct {
	mu   sync.Mutex
	rows map[string]*domain.User
}

func newMemUsers(users ...*domain.User) *memUsers {
	m := &memUsers{rows: map[string]*domain.User{}}
	for _, u := range users {
		m.rows[u.ID] = u
	}
	return m
}

func (m *memUsers) Create(ctx context.Context, u *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u.ID = ulid.Make().String()
	m.rows[u.ID] = u
	return nil
}

func (m *memUsers) find(match func(*domain.User) bool) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.rows {
		if match(u) {
			cp := *u
			cp.Roles = slices.Clone(u.Roles)
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memUsers) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return m.find(func(u *domain.User) bool { return u.ID == id })
}

func (m *memUsers) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return m.find(func(u *domain.User) bool { return u.Email == email })
}

func (m *memUsers) GetByFirebaseUID(ctx context.Context, uid string) (*domain.User, error) {
	return m.find(func(u *domain.User) bool { return u.FirebaseUID == uid })
}

func (m *memUsers) UpdateFirebaseUID(ctx context.Context, userID, uid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.rows[userID]
	if !ok {
		return domain.ErrNotFound
	}
	u.FirebaseUID = uid
	return nil
}

func (m *memUsers) AddRole(ctx context.Context, userID, role string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.rows[userID]
	if !ok {
		return domain.ErrNotFound
	}
	if !u.HasRole(role) {
		u.Roles = append(u.Roles, role)
	}
	return nil
}

func (m *memUsers) RemoveRole(ctx context.Context, userID, role string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.rows[userID]
	if !ok {
		return domain.ErrNotFound
	}
	u.Roles = slices.DeleteFunc(u.Roles, func(r string) bool { return r == role })
	return nil
}

func (m *memUsers) GetByRole(ctx context.Context, role string) ([]*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.User
	for _, u := range m.rows {
		if u.HasRole(role) {
			out = append(out, u)
		}
	}
	return out, nil
}

// fakeFirebase accepts "valid-<uid>" tokens
type fakeFirebase struct {
	emails map[string]string
}

func (f *fakeFirebase) VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error) {
	uid, ok := f.uid(idToken)
	if !ok {
		return nil, errBoom
	}
	return &auth.Token{UID: uid, Claims: map[string]interface{}{"email": f.emails[uid], "name": "Sari"}}, nil
}

func (f *fakeFirebase) uid(token string) (string, bool) {
	const prefix = "valid-"
	if len(token) <= len(prefix) || token[:len(prefix)] != prefix {
		return "", false
	}
	return token[len(prefix):], true
}

func newTestTokens() *TokenService {
	return NewTokenService(config.JWTConfig{Secret: "test-secret", AccessTokenExpiry: time.Hour})
}

func TestTokenIssueAndVerify(t *testing.T) {
	tokens := newTestTokens()
	access, err := tokens.Issue(&domain.User{ID: "u1", Email: "sari@example.com", Roles: []string{domain.RoleAdmin}})
	require.NoError(t, err)
	assert.Equal(t, int64(3600), access.ExpiresIn)
	assert.Equal(t, "Bearer", access.TokenType)

	claims, err := tokens.Verify(access.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, []string{domain.RoleAdmin}, claims.Roles)

	_, err = tokens.Verify(access.AccessToken + "x")
	assert.ErrorIs(t, err, ErrInvalidToken)

	other := NewTokenService(config.JWTConfig{Secret: "another-secret"})
	_, err = other.Verify(access.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)

	tokens.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = tokens.Verify(access.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken, "expired")
}

func TestTokenVerifyRejectsOtherAlgorithms(t *testing.T) {
	claims := domain.AccessClaims{
		UserID: "u1",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = newTestTokens().Verify(unsigned)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestLoginOrRegister(t *testing.T) {
	ctx := context.Background()
	users := newMemUsers(
		&domain.User{ID: "staff", Email: "staff@example.com", Name: "Staff", Roles: []string{domain.RoleAssist}},
		&domain.User{ID: "taken", Email: "taken@example.com", FirebaseUID: "someone-else", Roles: []string{domain.RoleUser}},
	)
	fb := &fakeFirebase{emails: map[string]string{
		"new":   "Sari@Example.com",
		"staff": "staff@example.com",
		"clash": "taken@example.com",
		"blank": "",
	}}
	svc := NewAuthService(users, fb, newTestTokens())

	res, err := svc.LoginOrRegister(ctx, "valid-new")
	require.NoError(t, err)
	assert.True(t, res.IsNewUser)
	assert.Equal(t, "sari@example.com", res.User.Email)
	assert.Equal(t, []string{domain.RoleUser}, res.User.Roles)
	assert.NotEmpty(t, res.Token.AccessToken)

	again, err := svc.LoginOrRegister(ctx, "valid-new")
	require.NoError(t, err)
	assert.False(t, again.IsNewUser)
	assert.Equal(t, res.User.ID, again.User.ID)

	staff, err := svc.LoginOrRegister(ctx, "valid-staff")
	require.NoError(t, err)
	assert.False(t, staff.IsNewUser, "pre-provisioned account is linked")
	assert.Equal(t, "staff", staff.User.ID)
	assert.Equal(t, "staff", users.rows["staff"].FirebaseUID)

	_, err = svc.LoginOrRegister(ctx, "valid-clash")
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = svc.LoginOrRegister(ctx, "valid-blank")
	var verr *domain.ValidationError
	assert.ErrorAs(t, err, &verr)

	_, err = svc.LoginOrRegister(ctx, "forged")
	assert.ErrorIs(t, err, ErrInvalidToken)

	disabled := NewAuthService(users, nil, newTestTokens())
	_, err = disabled.LoginOrRegister(ctx, "valid-new")
	assert.ErrorIs(t, err, ErrLoginDisabled)
}

func TestGrantRoleRequiresSuperAdmin(t *testing.T) {
	ctx := context.Background()
	users := newMemUsers(&domain.User{ID: "u1", Email: "a@example.com", Roles: []string{domain.RoleUser}})
	svc := NewAuthService(users, nil, newTestTokens())

	_, err := svc.GrantRole(ctx, []string{domain.RoleAdmin}, "u1", domain.RoleAdmin)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = svc.GrantRole(ctx, []string{domain.RoleSuperAdmin}, "u1", "owner")
	var verr *domain.ValidationError
	assert.ErrorAs(t, err, &verr)

	u, err := svc.GrantRole(ctx, []string{domain.RoleSuperAdmin}, "u1", domain.RoleAssist)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{domain.RoleUser, domain.RoleAssist}, u.Roles)

	staff, err := svc.ListByRole(ctx, domain.RoleAssist)
	require.NoError(t, err)
	assert.Len(t, staff, 1)

	u, err = svc.RevokeRole(ctx, []string{domain.RoleSuperAdmin}, "u1", domain.RoleAssist)
	require.NoError(t, err)
	assert.Equal(t, []string{domain.RoleUser}, u.Roles)

	_, err = svc.GrantRole(ctx, []string{domain.RoleSuperAdmin}, "missing", domain.RoleAdmin)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
