package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/servicedesk/go/internal/models"
)

var epoch = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func newProvider(clock clockwork.Clock) *TokenProvider {
	return NewTokenProvider([]byte("test-secret"), "servicedesk", time.Hour, clock)
}

func TestIssueAndVerify(t *testing.T) {
	clock := clockwork.NewFakeClockAt(epoch)
	p := newProvider(clock)
	caller := models.Caller{UserID: uuid.New(), AccountID: uuid.New(), Role: models.RoleManager}

	token, exp, err := p.Issue(caller)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if !exp.Equal(epoch.Add(time.Hour)) {
		t.Errorf("expiry = %v, want %v", exp, epoch.Add(time.Hour))
	}

	got, err := p.Verify(token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if got != caller {
		t.Errorf("Verify() = %+v, want %+v", got, caller)
	}
}

func TestVerifyRejectsExpired(t *testing.T) {
	clock := clockwork.NewFakeClockAt(epoch)
	p := newProvider(clock)
	token, _, err := p.Issue(models.Caller{UserID: uuid.New(), AccountID: uuid.New(), Role: models.RoleTechnician})
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	clock.Advance(2 * time.Hour)
	if _, err := p.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Verify() error = %v, want ErrInvalidToken", err)
	}
}

func TestVerifyRejectsOtherSecret(t *testing.T) {
	clock := clockwork.NewFakeClockAt(epoch)
	token, _, err := newProvider(clock).Issue(models.Caller{UserID: uuid.New(), AccountID: uuid.New(), Role: models.RoleAdmin})
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	other := NewTokenProvider([]byte("another-secret"), "servicedesk", time.Hour, clock)
	if _, err := other.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Verify() error = %v, want ErrInvalidToken", err)
	}
	if _, err := other.Verify("not-a-jwt"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Verify(garbage) error = %v, want ErrInvalidToken", err)
	}
}

func TestMiddleware(t *testing.T) {
	clock := clockwork.NewFakeClockAt(epoch)
	p := newProvider(clock)
	caller := models.Caller{UserID: uuid.New(), AccountID: uuid.New(), Role: models.RoleTechnician}
	token, _, err := p.Issue(caller)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	var seen models.Caller
	var seenOK bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, seenOK = CallerFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	h := Middleware(p, map[string]bool{"/health": true}, next)

	tests := []struct {
		name       string
		path       string
		header     string
		wantStatus int
		wantCaller bool
	}{
		{"valid bearer", "/timers", "Bearer " + token, http.StatusOK, true},
		{"lowercase scheme", "/timers", "bearer " + token, http.StatusOK, true},
		{"missing token", "/timers", "", http.StatusUnauthorized, false},
		{"bad token", "/timers", "Bearer nope", http.StatusUnauthorized, false},
		{"public path", "/health", "", http.StatusOK, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen, seenOK = models.Caller{}, false
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if seenOK != tt.wantCaller {
				t.Errorf("caller present = %v, want %v", seenOK, tt.wantCaller)
			}
			if tt.wantCaller && seen != caller {
				t.Errorf("caller = %+v, want %+v", seen, caller)
			}
		})
	}
}

func TestMiddlewareQueryToken(t *testing.T) {
	p := newProvider(clockwork.NewFakeClockAt(epoch))
	caller := models.Caller{UserID: uuid.New(), AccountID: uuid.New(), Role: models.RoleTechnician}
	token, _, _ := p.Issue(caller)

	var ok bool
	h := Middleware(p, nil, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, ok = CallerFromContext(r.Context())
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ws/timers?token="+token, nil))
	if !ok {
		t.Error("caller from ?token= not set")
	}
}

type fakeDirectory struct {
	users map[uuid.UUID]*models.User
	err   error
}

func (f *fakeDirectory) GetUser(_ context.Context, id uuid.UUID) (*models.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	u, ok := f.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return u, nil
}

func TestRoleAuthorizer(t *testing.T) {
	acct, otherAcct := uuid.New(), uuid.New()
	tech := &models.User{ID: uuid.New(), AccountID: acct, Role: models.RoleTechnician}
	tech2 := &models.User{ID: uuid.New(), AccountID: acct, Role: models.RoleTechnician}
	foreignTech := &models.User{ID: uuid.New(), AccountID: otherAcct, Role: models.RoleTechnician}
	manager := &models.User{ID: uuid.New(), AccountID: acct, Role: models.RoleManager}
	manager2 := &models.User{ID: uuid.New(), AccountID: acct, Role: models.RoleManager}
	admin := &models.User{ID: uuid.New(), AccountID: otherAcct, Role: models.RoleAdmin}

	dir := &fakeDirectory{users: map[uuid.UUID]*models.User{}}
	for _, u := range []*models.User{tech, tech2, foreignTech, manager, manager2, admin} {
		dir.users[u.ID] = u
	}
	a := NewRoleAuthorizer(dir)
	ctx := context.Background()
	as := func(u *models.User) models.Caller {
		return models.Caller{UserID: u.ID, AccountID: u.AccountID, Role: u.Role}
	}

	tests := []struct {
		name   string
		caller models.Caller
		owner  uuid.UUID
		want   bool
	}{
		{"self", as(tech), tech.ID, true},
		{"technician for peer", as(tech), tech2.ID, false},
		{"manager for own technician", as(manager), tech.ID, true},
		{"manager for other account", as(manager), foreignTech.ID, false},
		{"manager for manager", as(manager), manager2.ID, false},
		{"admin for anyone", as(admin), tech.ID, true},
		{"unknown caller", models.Caller{UserID: uuid.New()}, tech.ID, false},
		{"anonymous", models.Caller{}, tech.ID, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := a.CanActFor(ctx, tt.caller, tt.owner)
			if err != nil {
				t.Fatalf("CanActFor() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("CanActFor() = %v, want %v", got, tt.want)
			}
		})
	}

	ok, err := a.CanActOn(ctx, as(manager), &models.Timer{OwnerID: tech.ID})
	if err != nil || !ok {
		t.Errorf("CanActOn() = %v, %v, want true, nil", ok, err)
	}

	// The token claims admin, the directory does not.
	spoof := as(manager)
	spoof.Role = models.RoleAdmin
	if ok, _ := a.IsAdmin(ctx, spoof); ok {
		t.Error("IsAdmin() trusted the role claim")
	}
	if ok, _ := a.IsAdmin(ctx, as(admin)); !ok {
		t.Error("IsAdmin(admin) = false, want true")
	}
}

func TestRoleAuthorizerDirectoryError(t *testing.T) {
	dir := &fakeDirectory{err: errors.New("connection refused")}
	a := NewRoleAuthorizer(dir)
	_, err := a.CanActFor(context.Background(), models.Caller{UserID: uuid.New()}, uuid.New())
	if err == nil {
		t.Error("CanActFor() error = nil, want directory error")
	}
}
