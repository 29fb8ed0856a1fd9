package timers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/servicedesk/go/internal/auth"
	"github.com/mcdev12/servicedesk/go/internal/models"
	"github.com/mcdev12/servicedesk/go/internal/rpcjson"
)

type serviceEnv struct {
	*testEnv
	server *httptest.Server
	token  string
}

func newServiceEnv(t *testing.T) *serviceEnv {
	t.Helper()
	env := newTestEnv(t)
	tokens := auth.NewTokenProvider([]byte("secret"), "servicedesk", time.Hour, clockwork.NewRealClock())
	token, _, err := tokens.Issue(env.owner)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	mux := http.NewServeMux()
	mux.Handle(NewTimerServiceHandler(NewService(env.app)))
	srv := httptest.NewServer(auth.Middleware(tokens, nil, mux))
	t.Cleanup(srv.Close)
	return &serviceEnv{testEnv: env, server: srv, token: token}
}

func call[Req, Res any](t *testing.T, env *serviceEnv, procedure string, msg *Req) (*Res, error) {
	t.Helper()
	client := connect.NewClient[Req, Res](env.server.Client(), env.server.URL+procedure, connect.WithCodec(rpcjson.Codec{}))
	req := connect.NewRequest(msg)
	req.Header().Set("Authorization", "Bearer "+env.token)
	res, err := client.CallUnary(context.Background(), req)
	if err != nil {
		return nil, err
	}
	return res.Msg, nil
}

func codeOf(err error) connect.Code {
	var ce *connect.Error
	if errors.As(err, &ce) {
		return ce.Code()
	}
	return connect.CodeUnknown
}

func TestServiceLifecycle(t *testing.T) {
	env := newServiceEnv(t)
	ticket := newTicket()

	started, err := call[StartTimerRequest, TimerResponse](t, env, StartProcedure, &StartTimerRequest{
		OwnerID: env.owner.UserID, TicketID: ticket, AccountID: env.account, Description: "vpn", DeviceID: "web",
	})
	if err != nil {
		t.Fatalf("Start error = %v", err)
	}
	id := started.Timer.ID
	if started.Timer.Status != models.TimerStatusRunning || started.Timer.Description != "vpn" {
		t.Errorf("started = %+v", started.Timer)
	}

	_, err = call[StartTimerRequest, TimerResponse](t, env, StartProcedure, &StartTimerRequest{
		OwnerID: env.owner.UserID, TicketID: ticket, AccountID: env.account,
	})
	if codeOf(err) != connect.CodeAlreadyExists {
		t.Errorf("duplicate Start code = %v, want already_exists", codeOf(err))
	}

	paused, err := call[TimerCommandRequest, TimerResponse](t, env, PauseProcedure, &TimerCommandRequest{TimerID: id, DeviceID: "web"})
	if err != nil {
		t.Fatalf("Pause error = %v", err)
	}
	if paused.Timer.Status != models.TimerStatusPaused {
		t.Errorf("Pause status = %s", paused.Timer.Status)
	}

	_, err = call[TimerCommandRequest, TimerResponse](t, env, PauseProcedure, &TimerCommandRequest{TimerID: id})
	if codeOf(err) != connect.CodeFailedPrecondition {
		t.Errorf("second Pause code = %v, want failed_precondition", codeOf(err))
	}

	stopped, err := call[StopRequest, StopResult](t, env, StopProcedure, &StopRequest{TimerID: id, StopTimerRequest: StopTimerRequest{Convert: true}})
	if err != nil {
		t.Fatalf("Stop error = %v", err)
	}
	if stopped.TimeEntry == nil || stopped.Timer.Status != models.TimerStatusCommitted {
		t.Errorf("Stop = %+v", stopped)
	}

	got, err := call[GetTimerRequest, TimerResponse](t, env, GetProcedure, &GetTimerRequest{TimerID: id})
	if err != nil {
		t.Fatalf("Get error = %v", err)
	}
	if got.Timer.LinkedTimeEntryID == nil || *got.Timer.LinkedTimeEntryID != stopped.TimeEntry.ID {
		t.Errorf("Get link = %v", got.Timer.LinkedTimeEntryID)
	}

	list, err := call[ListTimersFilter, ListTimersResponse](t, env, ListTimersProcedure, &ListTimersFilter{OwnerID: env.owner.UserID})
	if err != nil {
		t.Fatalf("ListTimers error = %v", err)
	}
	if len(list.Timers) != 1 {
		t.Errorf("ListTimers = %d timers, want 1", len(list.Timers))
	}
}

func TestServiceSyncWarning(t *testing.T) {
	env := newServiceEnv(t)
	env.start(t, nil)
	env.cache.getErr = errBoom

	res, err := call[SyncRequest, SyncResponse](t, env, SyncProcedure, &SyncRequest{OwnerID: env.owner.UserID, DeviceID: "web"})
	if err != nil {
		t.Fatalf("Sync error = %v", err)
	}
	if !res.Result.Degraded || res.Warning == "" {
		t.Errorf("Sync = %+v, want degraded with warning", res)
	}
	if len(res.Result.Timers) != 1 {
		t.Errorf("Sync timers = %d, want 1", len(res.Result.Timers))
	}
}

func TestServiceCurrentActive(t *testing.T) {
	env := newServiceEnv(t)
	env.start(t, nil)
	env.clock.Advance(30 * time.Minute)

	res, err := call[OwnerRequest, ActiveSummary](t, env, CurrentActiveProcedure, &OwnerRequest{OwnerID: env.owner.UserID})
	if err != nil {
		t.Fatalf("CurrentActive error = %v", err)
	}
	if res.Totals.Count != 1 || res.Totals.DurationSeconds != 1800 {
		t.Errorf("totals = %+v", res.Totals)
	}
}

func TestServiceErrorCodes(t *testing.T) {
	env := newServiceEnv(t)

	_, err := call[TimerCommandRequest, TimerResponse](t, env, ResumeProcedure, &TimerCommandRequest{TimerID: uuid.New()})
	if codeOf(err) != connect.CodeNotFound {
		t.Errorf("Resume(unknown) code = %v, want not_found", codeOf(err))
	}

	_, err = call[StartTimerRequest, TimerResponse](t, env, StartProcedure, &StartTimerRequest{OwnerID: env.owner.UserID})
	if codeOf(err) != connect.CodeInvalidArgument {
		t.Errorf("Start(no account) code = %v, want invalid_argument", codeOf(err))
	}

	_, err = call[StartTimerRequest, TimerResponse](t, env, StartProcedure, &StartTimerRequest{OwnerID: uuid.New(), AccountID: env.account})
	if codeOf(err) != connect.CodePermissionDenied {
		t.Errorf("Start(other owner) code = %v, want permission_denied", codeOf(err))
	}

	tm := env.start(t, nil)
	env.rates.err = errBoom
	_, err = call[CommitRequest, StopResult](t, env, CommitProcedure, &CommitRequest{TimerID: tm.ID})
	if codeOf(err) != connect.CodeUnavailable {
		t.Errorf("Commit(rate failure) code = %v, want unavailable", codeOf(err))
	}
}

func TestServiceDuplicateCarriesConflictingTimer(t *testing.T) {
	env := newServiceEnv(t)
	ticket := newTicket()
	first := env.start(t, ticket)

	_, err := call[StartTimerRequest, TimerResponse](t, env, StartProcedure, &StartTimerRequest{
		OwnerID:   env.owner.UserID,
		TicketID:  ticket,
		AccountID: env.account,
	})
	var ce *connect.Error
	if !errors.As(err, &ce) || ce.Code() != connect.CodeAlreadyExists {
		t.Fatalf("Start(duplicate) error = %v, want already_exists", err)
	}
	if got := ce.Meta().Get(ConflictingTimerHeader); got != first.ID.String() {
		t.Errorf("%s = %q, want %q", ConflictingTimerHeader, got, first.ID)
	}
}

func TestServiceRequiresCaller(t *testing.T) {
	env := newTestEnv(t)
	mux := http.NewServeMux()
	mux.Handle(NewTimerServiceHandler(NewService(env.app)))
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := connect.NewClient[GetTimerRequest, TimerResponse](srv.Client(), srv.URL+GetProcedure, connect.WithCodec(rpcjson.Codec{}))
	_, err := client.CallUnary(context.Background(), connect.NewRequest(&GetTimerRequest{TimerID: uuid.New()}))
	if codeOf(err) != connect.CodeUnauthenticated {
		t.Errorf("code = %v, want unauthenticated", codeOf(err))
	}
}
