package timers

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

// TimerServiceName is the fully-qualified name of the TimerService.
const TimerServiceName = "timers.v1.TimerService"

// Procedure paths of the TimerService.
const (
	StartProcedure          = "/" + TimerServiceName + "/Start"
	GetProcedure            = "/" + TimerServiceName + "/Get"
	UpdateProcedure         = "/" + TimerServiceName + "/Update"
	PauseProcedure          = "/" + TimerServiceName + "/Pause"
	ResumeProcedure         = "/" + TimerServiceName + "/Resume"
	StopProcedure           = "/" + TimerServiceName + "/Stop"
	CommitProcedure         = "/" + TimerServiceName + "/Commit"
	CancelProcedure         = "/" + TimerServiceName + "/Cancel"
	AdjustDurationProcedure = "/" + TimerServiceName + "/AdjustDuration"
	MarkCommittedProcedure  = "/" + TimerServiceName + "/MarkCommitted"
	SyncProcedure           = "/" + TimerServiceName + "/Sync"
	CurrentActiveProcedure  = "/" + TimerServiceName + "/CurrentActive"
	ListTimersProcedure     = "/" + TimerServiceName + "/ListTimers"
	AdminPauseProcedure     = "/" + TimerServiceName + "/AdminPause"
	AdminResumeProcedure    = "/" + TimerServiceName + "/AdminResume"
	AdminStopProcedure      = "/" + TimerServiceName + "/AdminStop"
)

// TimersApp defines what the service layer needs from the timers application
type TimersApp interface {
	Start(ctx context.Context, caller models.Caller, req StartTimerRequest) (*models.Timer, error)
	Get(ctx context.Context, caller models.Caller, id uuid.UUID) (*models.Timer, error)
	Update(ctx context.Context, caller models.Caller, id uuid.UUID, req UpdateTimerRequest) (*models.Timer, error)
	Pause(ctx context.Context, caller models.Caller, id uuid.UUID, deviceID string) (*models.Timer, error)
	Resume(ctx context.Context, caller models.Caller, id uuid.UUID, deviceID string) (*models.Timer, error)
	Stop(ctx context.Context, caller models.Caller, id uuid.UUID, req StopTimerRequest) (*StopResult, error)
	Commit(ctx context.Context, caller models.Caller, id uuid.UUID, req CommitTimerRequest) (*StopResult, error)
	Cancel(ctx context.Context, caller models.Caller, id uuid.UUID, deviceID string) (*models.Timer, error)
	AdjustDuration(ctx context.Context, caller models.Caller, id uuid.UUID, req AdjustDurationRequest) (*models.Timer, error)
	MarkCommitted(ctx context.Context, caller models.Caller, id, timeEntryID uuid.UUID, deviceID string) (*models.Timer, error)
	Sync(ctx context.Context, caller models.Caller, ownerID uuid.UUID, deviceID string, known []KnownTimerState) (*SyncResult, error)
	CurrentActive(ctx context.Context, caller models.Caller, ownerID uuid.UUID) (*ActiveSummary, error)
	ListTimers(ctx context.Context, caller models.Caller, f ListTimersFilter) ([]models.Timer, error)
	AdminPause(ctx context.Context, caller models.Caller, id uuid.UUID, deviceID string) (*models.Timer, error)
	AdminResume(ctx context.Context, caller models.Caller, id uuid.UUID, deviceID string) (*models.Timer, error)
	AdminStop(ctx context.Context, caller models.Caller, id uuid.UUID, req StopTimerRequest) (*StopResult, error)
}

// Service implements the TimerService connect handlers
type Service struct {
	app TimersApp
}

// NewService creates a new timers service
func NewService(app TimersApp) *Service {
	return &Service{app: app}
}

// NewTimerServiceHandler builds an HTTP handler serving every TimerService
// procedure. It returns the path to mount it on.
func NewTimerServiceHandler(svc *Service, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(rpcjson.Codec{})}, opts...)

	mux := http.NewServeMux()
	mux.Handle(StartProcedure, connect.NewUnaryHandler(StartProcedure, svc.Start, opts...))
	mux.Handle(GetProcedure, connect.NewUnaryHandler(GetProcedure, svc.Get, opts...))
	mux.Handle(UpdateProcedure, connect.NewUnaryHandler(UpdateProcedure, svc.Update, opts...))
	mux.Handle(PauseProcedure, connect.NewUnaryHandler(PauseProcedure, svc.Pause, opts...))
	mux.Handle(ResumeProcedure, connect.NewUnaryHandler(ResumeProcedure, svc.Resume, opts...))
	mux.Handle(StopProcedure, connect.NewUnaryHandler(StopProcedure, svc.Stop, opts...))
	mux.Handle(CommitProcedure, connect.NewUnaryHandler(CommitProcedure, svc.Commit, opts...))
	mux.Handle(CancelProcedure, connect.NewUnaryHandler(CancelProcedure, svc.Cancel, opts...))
	mux.Handle(AdjustDurationProcedure, connect.NewUnaryHandler(AdjustDurationProcedure, svc.AdjustDuration, opts...))
	mux.Handle(MarkCommittedProcedure, connect.NewUnaryHandler(MarkCommittedProcedure, svc.MarkCommitted, opts...))
	mux.Handle(SyncProcedure, connect.NewUnaryHandler(SyncProcedure, svc.Sync, opts...))
	mux.Handle(CurrentActiveProcedure, connect.NewUnaryHandler(CurrentActiveProcedure, svc.CurrentActive, opts...))
	mux.Handle(ListTimersProcedure, connect.NewUnaryHandler(ListTimersProcedure, svc.ListTimers, opts...))
	mux.Handle(AdminPauseProcedure, connect.NewUnaryHandler(AdminPauseProcedure, svc.AdminPause, opts...))
	mux.Handle(AdminResumeProcedure, connect.NewUnaryHandler(AdminResumeProcedure, svc.AdminResume, opts...))
	mux.Handle(AdminStopProcedure, connect.NewUnaryHandler(AdminStopProcedure, svc.AdminStop, opts...))

	return "/" + TimerServiceName + "/", mux
}

// Start starts a new timer
func (s *Service) Start(ctx context.Context, req *connect.Request[StartTimerRequest]) (*connect.Response[TimerResponse], error) {
	caller, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	t, err := s.app.Start(ctx, caller, *req.Msg)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&TimerResponse{Timer: t}), nil
}

// Get retrieves a timer by ID
func (s *Service) Get(ctx context.Context, req *connect.Request[GetTimerRequest]) (*connect.Response[TimerResponse], error) {
	caller, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	t, err := s.app.Get(ctx, caller, req.Msg.TimerID)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&TimerResponse{Timer: t}), nil
}

// Update changes an active timer's description, ticket or rate
func (s *Service) Update(ctx context.Context, req *connect.Request[UpdateRequest]) (*connect.Response[TimerResponse], error) {
	caller, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	t, err := s.app.Update(ctx, caller, req.Msg.TimerID, req.Msg.UpdateTimerRequest)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&TimerResponse{Timer: t}), nil
}

// Pause pauses a running timer
func (s *Service) Pause(ctx context.Context, req *connect.Request[TimerCommandRequest]) (*connect.Response[TimerResponse], error) {
	caller, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	t, err := s.app.Pause(ctx, caller, req.Msg.TimerID, req.Msg.DeviceID)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&TimerResponse{Timer: t}), nil
}

// Resume resumes a paused timer
func (s *Service) Resume(ctx context.Context, req *connect.Request[TimerCommandRequest]) (*connect.Response[TimerResponse], error) {
	caller, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	t, err := s.app.Resume(ctx, caller, req.Msg.TimerID, req.Msg.DeviceID)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&TimerResponse{Timer: t}), nil
}

// Stop stops a timer and optionally converts it
func (s *Service) Stop(ctx context.Context, req *connect.Request[StopRequest]) (*connect.Response[StopResult], error) {
	caller, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	res, err := s.app.Stop(ctx, caller, req.Msg.TimerID, req.Msg.StopTimerRequest)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(res), nil
}

// Commit converts a timer into a time entry
func (s *Service) Commit(ctx context.Context, req *connect.Request[CommitRequest]) (*connect.Response[StopResult], error) {
	caller, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	res, err := s.app.Commit(ctx, caller, req.Msg.TimerID, req.Msg.CommitTimerRequest)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(res), nil
}

// Cancel discards a timer
func (s *Service) Cancel(ctx context.Context, req *connect.Request[TimerCommandRequest]) (*connect.Response[TimerResponse], error) {
	caller, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	t, err := s.app.Cancel(ctx, caller, req.Msg.TimerID, req.Msg.DeviceID)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&TimerResponse{Timer: t}), nil
}

// AdjustDuration sets or shifts a timer's elapsed time
func (s *Service) AdjustDuration(ctx context.Context, req *connect.Request[AdjustRequest]) (*connect.Response[TimerResponse], error) {
	caller, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	t, err := s.app.AdjustDuration(ctx, caller, req.Msg.TimerID, req.Msg.AdjustDurationRequest)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&TimerResponse{Timer: t}), nil
}

// MarkCommitted links a timer to an externally created time entry
func (s *Service) MarkCommitted(ctx context.Context, req *connect.Request[MarkCommittedRequest]) (*connect.Response[TimerResponse], error) {
	caller, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	t, err := s.app.MarkCommitted(ctx, caller, req.Msg.TimerID, req.Msg.TimeEntryID, req.Msg.DeviceID)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&TimerResponse{Timer: t}), nil
}

// Sync reconciles a device's timer view with the store
func (s *Service) Sync(ctx context.Context, req *connect.Request[SyncRequest]) (*connect.Response[SyncResponse], error) {
	caller, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	res, err := s.app.Sync(ctx, caller, req.Msg.OwnerID, req.Msg.DeviceID, req.Msg.Known)
	if err != nil {
		return nil, toConnectError(err)
	}
	out := &SyncResponse{Result: res}
	if res.Warning != nil {
		out.Warning = res.Warning.Error()
	}
	return connect.NewResponse(out), nil
}

// CurrentActive returns the owner's active timers with totals
func (s *Service) CurrentActive(ctx context.Context, req *connect.Request[OwnerRequest]) (*connect.Response[ActiveSummary], error) {
	caller, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	res, err := s.app.CurrentActive(ctx, caller, req.Msg.OwnerID)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(res), nil
}

// ListTimers pages through an owner's timers
func (s *Service) ListTimers(ctx context.Context, req *connect.Request[ListTimersFilter]) (*connect.Response[ListTimersResponse], error) {
	caller, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	timers, err := s.app.ListTimers(ctx, caller, *req.Msg)
	if err != nil {
		return nil, toConnectError(err)
	}
	if timers == nil {
		timers = []models.Timer{}
	}
	return connect.NewResponse(&ListTimersResponse{Timers: timers}), nil
}

// AdminPause pauses any user's timer
func (s *Service) AdminPause(ctx context.Context, req *connect.Request[TimerCommandRequest]) (*connect.Response[TimerResponse], error) {
	caller, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	t, err := s.app.AdminPause(ctx, caller, req.Msg.TimerID, req.Msg.DeviceID)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&TimerResponse{Timer: t}), nil
}

// AdminResume resumes any user's timer
func (s *Service) AdminResume(ctx context.Context, req *connect.Request[TimerCommandRequest]) (*connect.Response[TimerResponse], error) {
	caller, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	t, err := s.app.AdminResume(ctx, caller, req.Msg.TimerID, req.Msg.DeviceID)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&TimerResponse{Timer: t}), nil
}

// AdminStop stops any user's timer
func (s *Service) AdminStop(ctx context.Context, req *connect.Request[StopRequest]) (*connect.Response[StopResult], error) {
	caller, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	res, err := s.app.AdminStop(ctx, caller, req.Msg.TimerID, req.Msg.StopTimerRequest)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(res), nil
}

func callerFrom(ctx context.Context) (models.Caller, error) {
	caller, ok := auth.CallerFromContext(ctx)
	if !ok {
		return models.Caller{}, connect.NewError(connect.CodeUnauthenticated, errors.New("missing caller identity"))
	}
	return caller, nil
}

// ConflictingTimerHeader carries the id of the active timer that blocked a start or ticket change.
const ConflictingTimerHeader = "Conflicting-Timer-Id"

func toConnectError(err error) error {
	var (
		dup   *DuplicateActiveTimerError
		inv   *InvalidTransitionError
		conv  *ConversionFailureError
		authz *AuthorizationError
	)
	switch {
	case errors.As(err, &dup):
		cerr := connect.NewError(connect.CodeAlreadyExists, err)
		if dup.ConflictingTimerID != uuid.Nil {
			cerr.Meta().Set(ConflictingTimerHeader, dup.ConflictingTimerID.String())
		}
		return cerr
	case errors.As(err, &inv):
		return connect.NewError(connect.CodeFailedPrecondition, err)
	case errors.As(err, &conv):
		return connect.NewError(connect.CodeUnavailable, err)
	case errors.As(err, &authz):
		return connect.NewError(connect.CodePermissionDenied, err)
	case errors.Is(err, ErrTimerNotFound):
		return connect.NewError(connect.CodeNotFound, err)
	case errors.Is(err, ErrValidation):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case errors.Is(err, context.Canceled):
		return connect.NewError(connect.CodeCanceled, err)
	case errors.Is(err, context.DeadlineExceeded):
		return connect.NewError(connect.CodeDeadlineExceeded, err)
	default:
		log.Error().Err(err).Msg("timer request failed")
		return connect.NewError(connect.CodeInternal, err)
	}
}
