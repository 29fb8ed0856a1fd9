package users

import (
	"context"
	"errors"
	"net/http"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	"github.com/mcdev12/servicedesk/go/internal/auth"
	"github.com/mcdev12/servicedesk/go/internal/models"
	"github.com/mcdev12/servicedesk/go/internal/rpcjson"
	"github.com/rs/zerolog/log"
)

// UserServiceName is the fully-qualified name of the UserService.
const UserServiceName = "users.v1.UserService"

const (
	CreateUserProcedure        = "/" + UserServiceName + "/CreateUser"
	GetUserProcedure           = "/" + UserServiceName + "/GetUser"
	GetUserByUsernameProcedure = "/" + UserServiceName + "/GetUserByUsername"
	ListAccountUsersProcedure  = "/" + UserServiceName + "/ListAccountUsers"
	UpdateUserProcedure        = "/" + UserServiceName + "/UpdateUser"
	DeleteUserProcedure        = "/" + UserServiceName + "/DeleteUser"
)

// UsersApp defines what the service layer needs from the users application
type UsersApp interface {
	CreateUser(ctx context.Context, req CreateUserRequest) (*models.User, error)
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	ListAccountUsers(ctx context.Context, accountID uuid.UUID) ([]models.User, error)
	UpdateUser(ctx context.Context, id uuid.UUID, req UpdateUserRequest) (*models.User, error)
	DeleteUser(ctx context.Context, id uuid.UUID) error
}

// AdminChecker reports whether a caller holds the admin role.
type AdminChecker interface {
	IsAdmin(ctx context.Context, caller models.Caller) (bool, error)
}

type GetUserRequest struct {
	ID uuid.UUID `json:"id"`
}

type GetUserByUsernameRequest struct {
	Username string `json:"username"`
}

type ListAccountUsersRequest struct {
	AccountID uuid.UUID `json:"account_id"`
}

type UpdateRequest struct {
	ID uuid.UUID `json:"id"`
	UpdateUserRequest
}

type DeleteUserRequest struct {
	ID uuid.UUID `json:"id"`
}

type UserResponse struct {
	User *models.User `json:"user"`
}

type ListUsersResponse struct {
	Users []models.User `json:"users"`
}

type DeleteUserResponse struct {
	Success bool `json:"success"`
}

// Service implements the UserService connect handlers. Creating, deleting
// and re-roling users is admin only; users may edit their own profile.
type Service struct {
	app    UsersApp
	admins AdminChecker
}

func NewService(app UsersApp, admins AdminChecker) *Service {
	return &Service{
		app:    app,
		admins: admins,
	}
}

// NewUserServiceHandler builds an HTTP handler serving every UserService
// procedure. It returns the path to mount it on.
func NewUserServiceHandler(svc *Service, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(rpcjson.Codec{})}, opts...)

	mux := http.NewServeMux()
	mux.Handle(CreateUserProcedure, connect.NewUnaryHandler(CreateUserProcedure, svc.CreateUser, opts...))
	mux.Handle(GetUserProcedure, connect.NewUnaryHandler(GetUserProcedure, svc.GetUser, opts...))
	mux.Handle(GetUserByUsernameProcedure, connect.NewUnaryHandler(GetUserByUsernameProcedure, svc.GetUserByUsername, opts...))
	mux.Handle(ListAccountUsersProcedure, connect.NewUnaryHandler(ListAccountUsersProcedure, svc.ListAccountUsers, opts...))
	mux.Handle(UpdateUserProcedure, connect.NewUnaryHandler(UpdateUserProcedure, svc.UpdateUser, opts...))
	mux.Handle(DeleteUserProcedure, connect.NewUnaryHandler(DeleteUserProcedure, svc.DeleteUser, opts...))
	return "/" + UserServiceName + "/", mux
}

func (s *Service) CreateUser(ctx context.Context, req *connect.Request[CreateUserRequest]) (*connect.Response[UserResponse], error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}
	user, err := s.app.CreateUser(ctx, *req.Msg)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&UserResponse{User: user}), nil
}

func (s *Service) GetUser(ctx context.Context, req *connect.Request[GetUserRequest]) (*connect.Response[UserResponse], error) {
	if _, err := requireCaller(ctx); err != nil {
		return nil, err
	}
	user, err := s.app.GetUser(ctx, req.Msg.ID)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&UserResponse{User: user}), nil
}

func (s *Service) GetUserByUsername(ctx context.Context, req *connect.Request[GetUserByUsernameRequest]) (*connect.Response[UserResponse], error) {
	if _, err := requireCaller(ctx); err != nil {
		return nil, err
	}
	user, err := s.app.GetUserByUsername(ctx, req.Msg.Username)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&UserResponse{User: user}), nil
}

// ListAccountUsers lists the caller's account unless an admin asks for another.
func (s *Service) ListAccountUsers(ctx context.Context, req *connect.Request[ListAccountUsersRequest]) (*connect.Response[ListUsersResponse], error) {
	caller, err := requireCaller(ctx)
	if err != nil {
		return nil, err
	}
	accountID := req.Msg.AccountID
	if accountID == uuid.Nil {
		accountID = caller.AccountID
	}
	if accountID != caller.AccountID {
		if _, err := s.requireAdmin(ctx); err != nil {
			return nil, err
		}
	}
	users, err := s.app.ListAccountUsers(ctx, accountID)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&ListUsersResponse{Users: users}), nil
}

func (s *Service) UpdateUser(ctx context.Context, req *connect.Request[UpdateRequest]) (*connect.Response[UserResponse], error) {
	caller, err := requireCaller(ctx)
	if err != nil {
		return nil, err
	}
	admin, err := s.admins.IsAdmin(ctx, caller)
	if err != nil {
		return nil, toConnectError(err)
	}
	if !admin {
		if caller.UserID != req.Msg.ID {
			return nil, connect.NewError(connect.CodePermissionDenied, errors.New("only admins may update other users"))
		}
		if req.Msg.Role != "" && req.Msg.Role != caller.Role {
			return nil, connect.NewError(connect.CodePermissionDenied, errors.New("only admins may change roles"))
		}
	}
	user, err := s.app.UpdateUser(ctx, req.Msg.ID, req.Msg.UpdateUserRequest)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&UserResponse{User: user}), nil
}

func (s *Service) DeleteUser(ctx context.Context, req *connect.Request[DeleteUserRequest]) (*connect.Response[DeleteUserResponse], error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}
	if err := s.app.DeleteUser(ctx, req.Msg.ID); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&DeleteUserResponse{Success: true}), nil
}

func requireCaller(ctx context.Context) (models.Caller, error) {
	caller, ok := auth.CallerFromContext(ctx)
	if !ok {
		return models.Caller{}, connect.NewError(connect.CodeUnauthenticated, errors.New("authentication required"))
	}
	return caller, nil
}

func (s *Service) requireAdmin(ctx context.Context) (models.Caller, error) {
	caller, err := requireCaller(ctx)
	if err != nil {
		return caller, err
	}
	admin, err := s.admins.IsAdmin(ctx, caller)
	if err != nil {
		return caller, toConnectError(err)
	}
	if !admin {
		return caller, connect.NewError(connect.CodePermissionDenied, errors.New("admin role required"))
	}
	return caller, nil
}

func toConnectError(err error) error {
	switch {
	case errors.Is(err, ErrValidation):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case errors.Is(err, ErrUserNotFound):
		return connect.NewError(connect.CodeNotFound, err)
	case errors.Is(err, ErrUserExists):
		return connect.NewError(connect.CodeAlreadyExists, err)
	default:
		log.Error().Err(err).Msg("user request failed")
		return connect.NewError(connect.CodeInternal, err)
	}
}
