package rates

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

// RateServiceName is the fully-qualified name of the RateService.
const RateServiceName = "rates.v1.RateService"

const (
	ListRatesProcedure      = "/" + RateServiceName + "/ListRates"
	CreateRateProcedure     = "/" + RateServiceName + "/CreateRate"
	SetDefaultRateProcedure = "/" + RateServiceName + "/SetDefaultRate"
	DeactivateRateProcedure = "/" + RateServiceName + "/DeactivateRate"
)

// AdminChecker reports whether a caller holds the admin role.
type AdminChecker interface {
	IsAdmin(ctx context.Context, caller models.Caller) (bool, error)
}

type ListRatesRequest struct {
	IncludeInactive bool `json:"include_inactive"`
}

type RateRequest struct {
	RateID uuid.UUID `json:"rate_id"`
}

type RateResponse struct {
	Rate *models.BillingRate `json:"rate"`
}

type ListRatesResponse struct {
	Rates []models.BillingRate `json:"rates"`
}

// Service implements the RateService connect handlers, always scoped to
// the caller's account. Changes are admin only.
type Service struct {
	app    *App
	admins AdminChecker
}

func NewService(app *App, admins AdminChecker) *Service {
	return &Service{app: app, admins: admins}
}

func NewRateServiceHandler(svc *Service, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(rpcjson.Codec{})}, opts...)

	mux := http.NewServeMux()
	mux.Handle(ListRatesProcedure, connect.NewUnaryHandler(ListRatesProcedure, svc.ListRates, opts...))
	mux.Handle(CreateRateProcedure, connect.NewUnaryHandler(CreateRateProcedure, svc.CreateRate, opts...))
	mux.Handle(SetDefaultRateProcedure, connect.NewUnaryHandler(SetDefaultRateProcedure, svc.SetDefaultRate, opts...))
	mux.Handle(DeactivateRateProcedure, connect.NewUnaryHandler(DeactivateRateProcedure, svc.DeactivateRate, opts...))
	return "/" + RateServiceName + "/", mux
}

func (s *Service) ListRates(ctx context.Context, req *connect.Request[ListRatesRequest]) (*connect.Response[ListRatesResponse], error) {
	caller, ok := auth.CallerFromContext(ctx)
	if !ok {
		return nil, connect.NewError(connect.CodeUnauthenticated, errors.New("authentication required"))
	}
	rates, err := s.app.ListRates(ctx, caller.AccountID, req.Msg.IncludeInactive)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&ListRatesResponse{Rates: rates}), nil
}

func (s *Service) CreateRate(ctx context.Context, req *connect.Request[CreateRateRequest]) (*connect.Response[RateResponse], error) {
	caller, err := s.requireAdmin(ctx)
	if err != nil {
		return nil, err
	}
	msg := *req.Msg
	msg.AccountID = caller.AccountID
	rate, err := s.app.CreateRate(ctx, msg)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&RateResponse{Rate: rate}), nil
}

func (s *Service) SetDefaultRate(ctx context.Context, req *connect.Request[RateRequest]) (*connect.Response[RateResponse], error) {
	caller, err := s.requireAdmin(ctx)
	if err != nil {
		return nil, err
	}
	rate, err := s.app.SetDefaultRate(ctx, caller.AccountID, req.Msg.RateID)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&RateResponse{Rate: rate}), nil
}

func (s *Service) DeactivateRate(ctx context.Context, req *connect.Request[RateRequest]) (*connect.Response[RateResponse], error) {
	caller, err := s.requireAdmin(ctx)
	if err != nil {
		return nil, err
	}
	rate, err := s.app.DeactivateRate(ctx, caller.AccountID, req.Msg.RateID)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&RateResponse{Rate: rate}), nil
}

func (s *Service) requireAdmin(ctx context.Context) (models.Caller, error) {
	caller, ok := auth.CallerFromContext(ctx)
	if !ok {
		return caller, connect.NewError(connect.CodeUnauthenticated, errors.New("authentication required"))
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
	case errors.Is(err, ErrRateNotFound):
		return connect.NewError(connect.CodeNotFound, err)
	case errors.Is(err, ErrRateExists):
		return connect.NewError(connect.CodeAlreadyExists, err)
	default:
		log.Error().Err(err).Msg("rate request failed")
		return connect.NewError(connect.CodeInternal, err)
	}
}
