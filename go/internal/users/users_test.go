package users

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/mcdev12/servicedesk/go/internal/auth"
	"github.com/mcdev12/servicedesk/go/internal/models"
	"github.com/mcdev12/servicedesk/go/internal/rpcjson"
)

type memRepo struct {
	mu    sync.Mutex
	users map[uuid.UUID]models.User
	err   error
}

func newMemRepo() *memRepo {
	return &memRepo{users: make(map[uuid.UUID]models.User)}
}

func (m *memRepo) CreateUser(ctx context.Context, req CreateUserRequest) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	u := models.User{ID: uuid.New(), AccountID: req.AccountID, Username: req.Username, Email: req.Email, Role: req.Role}
	m.users[u.ID] = u
	return &u, nil
}

func (m *memRepo) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &u, nil
}

func (m *memRepo) find(match func(models.User) bool) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if match(u) {
			u := u
			return &u, nil
		}
	}
	return nil, ErrUserNotFound
}

func (m *memRepo) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return m.find(func(u models.User) bool { return u.Username == username })
}

func (m *memRepo) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return m.find(func(u models.User) bool { return u.Email == email })
}

func (m *memRepo) ListUsersByAccount(ctx context.Context, accountID uuid.UUID) ([]models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.User
	for _, u := range m.users {
		if u.AccountID == accountID {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *memRepo) UpdateUser(ctx context.Context, id uuid.UUID, req UpdateUserRequest) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	u.Username, u.Email, u.Role = req.Username, req.Email, req.Role
	m.users[id] = u
	return &u, nil
}

func (m *memRepo) DeleteUser(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.users, id)
	return nil
}

func TestCreateUser(t *testing.T) {
	app := NewApp(newMemRepo())
	ctx := context.Background()
	account := uuid.New()

	u, err := app.CreateUser(ctx, CreateUserRequest{AccountID: account, Username: "sam", Email: "sam@example.com"})
	if err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	if u.Role != models.RoleTechnician {
		t.Errorf("Role = %q, want technician by default", u.Role)
	}

	tests := []struct {
		name string
		req  CreateUserRequest
		want error
	}{
		{"duplicate username", CreateUserRequest{AccountID: account, Username: "sam", Email: "other@example.com"}, ErrUserExists},
		{"duplicate email", CreateUserRequest{AccountID: account, Username: "sam2", Email: "sam@example.com"}, ErrUserExists},
		{"bad email", CreateUserRequest{AccountID: account, Username: "kim", Email: "kim"}, ErrValidation},
		{"missing username", CreateUserRequest{AccountID: account, Email: "kim@example.com"}, ErrValidation},
		{"bad role", CreateUserRequest{AccountID: account, Username: "kim", Email: "kim@example.com", Role: "owner"}, ErrValidation},
		{"missing account", CreateUserRequest{Username: "kim", Email: "kim@example.com"}, ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := app.CreateUser(ctx, tt.req); !errors.Is(err, tt.want) {
				t.Errorf("CreateUser() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestUpdateUserKeepsRoleWhenOmitted(t *testing.T) {
	app := NewApp(newMemRepo())
	ctx := context.Background()
	u, err := app.CreateUser(ctx, CreateUserRequest{AccountID: uuid.New(), Username: "lee", Email: "lee@example.com", Role: models.RoleManager})
	if err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}

	updated, err := app.UpdateUser(ctx, u.ID, UpdateUserRequest{Username: "lee2", Email: "lee@example.com"})
	if err != nil {
		t.Fatalf("UpdateUser() error = %v", err)
	}
	if updated.Role != models.RoleManager || updated.Username != "lee2" {
		t.Errorf("updated = %+v, want manager lee2", updated)
	}

	if _, err := app.UpdateUser(ctx, uuid.New(), UpdateUserRequest{Username: "x", Email: "x@example.com"}); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("UpdateUser(unknown) error = %v, want ErrUserNotFound", err)
	}
}

func TestAppIsAuthorizerDirectory(t *testing.T) {
	repo := newMemRepo()
	app := NewApp(repo)
	authz := auth.NewRoleAuthorizer(app)
	ctx := context.Background()
	account := uuid.New()

	mgr, _ := app.CreateUser(ctx, CreateUserRequest{AccountID: account, Username: "mgr", Email: "mgr@example.com", Role: models.RoleManager})
	tech, _ := app.CreateUser(ctx, CreateUserRequest{AccountID: account, Username: "tech", Email: "tech@example.com"})

	ok, err := authz.CanActFor(ctx, models.Caller{UserID: mgr.ID, AccountID: account}, tech.ID)
	if err != nil || !ok {
		t.Errorf("manager CanActFor technician = %v, %v; want true", ok, err)
	}
	ok, err = authz.CanActFor(ctx, models.Caller{UserID: mgr.ID, AccountID: account}, uuid.New())
	if err != nil || ok {
		t.Errorf("manager CanActFor unknown user = %v, %v; want false, nil", ok, err)
	}
}

func TestService(t *testing.T) {
	repo := newMemRepo()
	app := NewApp(repo)
	ctx := context.Background()
	account := uuid.New()
	admin, _ := app.CreateUser(ctx, CreateUserRequest{AccountID: account, Username: "root", Email: "root@example.com", Role: models.RoleAdmin})
	tech, _ := app.CreateUser(ctx, CreateUserRequest{AccountID: account, Username: "tech", Email: "tech@example.com"})

	tokens := auth.NewTokenProvider([]byte("secret"), "servicedesk", time.Hour, clockwork.NewRealClock())
	mux := http.NewServeMux()
	mux.Handle(NewUserServiceHandler(NewService(app, auth.NewRoleAuthorizer(app))))
	srv := httptest.NewServer(auth.Middleware(tokens, nil, mux))
	defer srv.Close()

	tokenFor := func(u *models.User) string {
		tok, _, err := tokens.Issue(models.Caller{UserID: u.ID, AccountID: u.AccountID, Role: u.Role})
		if err != nil {
			t.Fatalf("Issue() error = %v", err)
		}
		return tok
	}
	adminTok, techTok := tokenFor(admin), tokenFor(tech)

	createClient := connect.NewClient[CreateUserRequest, UserResponse](srv.Client(), srv.URL+CreateUserProcedure, connect.WithCodec(rpcjson.Codec{}))
	create := func(tok string, req CreateUserRequest) (*UserResponse, error) {
		r := connect.NewRequest(&req)
		r.Header().Set("Authorization", "Bearer "+tok)
		res, err := createClient.CallUnary(ctx, r)
		if err != nil {
			return nil, err
		}
		return res.Msg, nil
	}

	created, err := create(adminTok, CreateUserRequest{AccountID: account, Username: "new", Email: "new@example.com"})
	if err != nil {
		t.Fatalf("admin CreateUser error = %v", err)
	}
	if created.User.Username != "new" {
		t.Errorf("created = %+v", created.User)
	}

	if _, err := create(techTok, CreateUserRequest{AccountID: account, Username: "x", Email: "x@example.com"}); connect.CodeOf(err) != connect.CodePermissionDenied {
		t.Errorf("technician CreateUser code = %v, want permission_denied", connect.CodeOf(err))
	}
	if _, err := create(adminTok, CreateUserRequest{AccountID: account, Username: "new", Email: "dup@example.com"}); connect.CodeOf(err) != connect.CodeAlreadyExists {
		t.Errorf("duplicate CreateUser code = %v, want already_exists", connect.CodeOf(err))
	}

	updateClient := connect.NewClient[UpdateRequest, UserResponse](srv.Client(), srv.URL+UpdateUserProcedure, connect.WithCodec(rpcjson.Codec{}))
	promote := connect.NewRequest(&UpdateRequest{ID: tech.ID, UpdateUserRequest: UpdateUserRequest{Username: "tech", Email: "tech@example.com", Role: models.RoleAdmin}})
	promote.Header().Set("Authorization", "Bearer "+techTok)
	if _, err := updateClient.CallUnary(ctx, promote); connect.CodeOf(err) != connect.CodePermissionDenied {
		t.Errorf("self promotion code = %v, want permission_denied", connect.CodeOf(err))
	}

	rename := connect.NewRequest(&UpdateRequest{ID: tech.ID, UpdateUserRequest: UpdateUserRequest{Username: "tech2", Email: "tech@example.com"}})
	rename.Header().Set("Authorization", "Bearer "+techTok)
	res, err := updateClient.CallUnary(ctx, rename)
	if err != nil {
		t.Fatalf("self rename error = %v", err)
	}
	if res.Msg.User.Username != "tech2" || res.Msg.User.Role != models.RoleTechnician {
		t.Errorf("renamed = %+v", res.Msg.User)
	}

	getClient := connect.NewClient[GetUserRequest, UserResponse](srv.Client(), srv.URL+GetUserProcedure, connect.WithCodec(rpcjson.Codec{}))
	missing := connect.NewRequest(&GetUserRequest{ID: uuid.New()})
	missing.Header().Set("Authorization", "Bearer "+techTok)
	if _, err := getClient.CallUnary(ctx, missing); connect.CodeOf(err) != connect.CodeNotFound {
		t.Errorf("GetUser(unknown) code = %v, want not_found", connect.CodeOf(err))
	}
}
