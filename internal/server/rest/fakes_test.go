package rest

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/dealerdesk/internal/common"
	"github.com/dmitrijs2005/dealerdesk/internal/logging"
	"github.com/dmitrijs2005/dealerdesk/internal/server/auth"
	"github.com/dmitrijs2005/dealerdesk/internal/server/models"
	"github.com/dmitrijs2005/dealerdesk/internal/server/services"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-signing-secret"

type fakeUsers struct {
	login          func(email, password string) (*services.LoginResult, error)
	register       func(secret string, in services.UserInput) (*models.User, error)
	me             func(id string) (*models.User, error)
	updateProfile  func(id string, in services.ProfileInput) (*models.User, error)
	changePassword func(id, current, next string) error
	list           func() ([]*models.User, error)
	get            func(id string) (*models.User, error)
	create         func(in services.UserInput) (*models.User, error)
	update         func(id string, in services.UserUpdate) (*models.User, error)
	del            func(actor, target string) error
}

func (f *fakeUsers) Login(_ context.Context, email, password string) (*services.LoginResult, error) {
	return f.login(email, password)
}
func (f *fakeUsers) Register(_ context.Context, secret string, in services.UserInput) (*models.User, error) {
	return f.register(secret, in)
}
func (f *fakeUsers) Me(_ context.Context, id string) (*models.User, error) { return f.me(id) }
func (f *fakeUsers) UpdateProfile(_ context.Context, id string, in services.ProfileInput) (*models.User, error) {
	return f.updateProfile(id, in)
}
func (f *fakeUsers) ChangePassword(_ context.Context, id, current, next string) error {
	return f.changePassword(id, current, next)
}
func (f *fakeUsers) List(context.Context) ([]*models.User, error)           { return f.list() }
func (f *fakeUsers) Get(_ context.Context, id string) (*models.User, error) { return f.get(id) }
func (f *fakeUsers) Create(_ context.Context, in services.UserInput) (*models.User, error) {
	return f.create(in)
}
func (f *fakeUsers) Update(_ context.Context, id string, in services.UserUpdate) (*models.User, error) {
	return f.update(id, in)
}
func (f *fakeUsers) Delete(_ context.Context, actor, target string) error { return f.del(actor, target) }

type fakeResets struct {
	request func(email string) (*services.ResetGrant, error)
	redeem  func(token, password string) error
}

func (f *fakeResets) RequestReset(_ context.Context, email string) (*services.ResetGrant, error) {
	return f.request(email)
}
func (f *fakeResets) RedeemReset(_ context.Context, token, password string) error {
	return f.redeem(token, password)
}

type sentReset struct {
	to, name, token string
}

type fakeMailer struct {
	sent []sentReset
	err  error
	// gate, when set, blocks every send until it is closed.
	gate chan struct{}
}

func (m *fakeMailer) SendPasswordReset(_ context.Context, to, name, token string, _ time.Time) error {
	if m.gate != nil {
		<-m.gate
	}
	m.sent = append(m.sent, sentReset{to, name, token})
	return m.err
}

type env struct {
	users  *fakeUsers
	resets *fakeResets
	mailer *fakeMailer
	issuer *auth.TokenIssuer
	deps   Deps
	srv    *Server
}

func newEnv() *env {
	e := &env{
		users:  &fakeUsers{},
		resets: &fakeResets{},
		mailer: &fakeMailer{},
		issuer: auth.NewTokenIssuer([]byte(testSecret), time.Hour),
	}
	e.deps = Deps{
		Users:  e.users,
		Resets: e.resets,
		Tokens: e.issuer,
		Mailer: e.mailer,
		Logger: logging.Discard(),
	}
	return e
}

func (e *env) handler() http.Handler {
	e.srv = NewServer(":0", e.deps)
	return e.srv.Router()
}

// settle waits for work the handlers left running after responding.
func (e *env) settle() {
	if e.srv != nil {
		e.srv.background.Wait()
	}
}

func (e *env) token(t *testing.T, id string, role models.Role) string {
	t.Helper()
	tok, err := e.issuer.Issue(auth.Claims{UserID: id, Email: id + "@example.com", Role: role})
	require.NoError(t, err)
	return tok
}

func do(h http.Handler, method, path, body, token string, headers ...string) *httptest.ResponseRecorder {
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set(common.AuthorizationHeaderName, "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func sampleUser(id string, role models.Role) *models.User {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	return &models.User{ID: id, Email: id + "@example.com", Name: "User " + id, Role: role, PasswordHash: "secret-hash", CreatedAt: now, UpdatedAt: now}
}
