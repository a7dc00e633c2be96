package batch

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kuhlman-labs/jamf-redeploy/internal/models"
)

// fakeAPI is an in-memory DeviceAPI keyed by serial number
type fakeAPI struct {
	mu sync.Mutex

	token   string
	authErr error

	// computers maps serial -> computer ID; missing serials resolve with 404
	computers map[string]string
	// redeployStatus maps computer ID -> status; missing IDs return 202
	redeployStatus map[string]int
	resolveErr     map[string]error

	calls       []string
	invalidated []string

	// onResolve runs before each lookup
	onResolve func(serial string)
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		token:          "token-1",
		computers:      map[string]string{},
		redeployStatus: map[string]int{},
		resolveErr:     map[string]error{},
	}
}

func (f *fakeAPI) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeAPI) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeAPI) Authenticate(_ context.Context, _, _, _ string) (string, error) {
	f.record("auth")
	if f.authErr != nil {
		return "", f.authErr
	}
	return f.token, nil
}

func (f *fakeAPI) ResolveComputer(_ context.Context, _, token, serial string) (string, int, error) {
	f.record("resolve:" + serial)
	if f.onResolve != nil {
		f.onResolve(serial)
	}
	if err := f.resolveErr[serial]; err != nil {
		return "", 0, err
	}
	id, ok := f.computers[serial]
	if !ok || token != f.token {
		return "", http.StatusNotFound, nil
	}
	return id, http.StatusOK, nil
}

func (f *fakeAPI) RedeployFramework(_ context.Context, _, _, computerID string) (int, error) {
	f.record("redeploy:" + computerID)
	if status, ok := f.redeployStatus[computerID]; ok {
		return status, nil
	}
	return http.StatusAccepted, nil
}

func (f *fakeAPI) InvalidateToken(_ context.Context, _, token string) error {
	f.mu.Lock()
	f.invalidated = append(f.invalidated, token)
	f.mu.Unlock()
	return nil
}

// recorder collects events
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Notify(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func (r *recorder) OfType(t EventType) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testCredentials() models.Credentials {
	return models.Credentials{
		BaseURL:      "https://example.jamfcloud.com",
		ClientID:     "client",
		ClientSecret: "secret",
	}
}

func newTestOrchestrator(t *testing.T, api DeviceAPI, obs Observer) *Orchestrator {
	t.Helper()
	o, err := NewOrchestrator(OrchestratorConfig{
		API:      api,
		Observer: obs,
		Logger:   testLogger(),
	})
	require.NoError(t, err)
	return o
}

func records(serials ...string) []*models.DeviceRecord {
	out := make([]*models.DeviceRecord, 0, len(serials))
	for _, s := range serials {
		out = append(out, models.NewDeviceRecord(s, "", ""))
	}
	return out
}
