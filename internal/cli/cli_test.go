package cli_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	infraerrors "github.com/jonesrussell/north-cloud/index-guard/infrastructure/errors"
	"github.com/jonesrussell/north-cloud/index-guard/internal/cli"
	"github.com/jonesrussell/north-cloud/index-guard/internal/domain"
	"github.com/jonesrussell/north-cloud/index-guard/internal/resilience"
)

const testToken = "secret-token"

type fakeService struct {
	started  map[string]string
	rollback []string
}

func newFakeService(t *testing.T) (*httptest.Server, *fakeService) {
	t.Helper()
	text.DisableColors()

	svc := &fakeService{started: map[string]string{}}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/migrations", svc.start)
	mux.HandleFunc("GET /api/v1/migrations", svc.list)
	mux.HandleFunc("GET /api/v1/migrations/{id}", svc.get)
	mux.HandleFunc("POST /api/v1/migrations/{id}/rollback", svc.rollbackRun)
	mux.HandleFunc("GET /api/v1/resilience", svc.resilience)

	server := httptest.NewServer(requireToken(mux))
	t.Cleanup(server.Close)
	return server, svc
}

func requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+testToken {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing or invalid token"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func sampleRun(id string, state domain.MigrationState) domain.MigrationRun {
	return domain.MigrationRun{
		ID:                 id,
		SourceAlias:        "articles",
		StagingAlias:       "articles_staging",
		Source:             domain.IndexDescriptor{Name: "articles_v1", Alias: "articles", Version: 1},
		Target:             domain.IndexDescriptor{Name: "articles_v2", Alias: "articles", Version: 2},
		State:              state,
		StartTime:          time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		TotalDocuments:     200,
		ProcessedDocuments: 100,
		Errors:             []domain.MigrationError{},
	}
}

func (s *fakeService) start(w http.ResponseWriter, r *http.Request) {
	var body map[string]string
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	s.started["alias"] = body["source_alias"]
	s.started["source"] = body["source_index"]
	s.started["target"] = body["target_index"]
	writeJSON(w, http.StatusAccepted, map[string]string{"run_id": "run-1"})
}

func (s *fakeService) list(w http.ResponseWriter, _ *http.Request) {
	runs := []domain.MigrationRun{
		sampleRun("run-1", domain.StateReindexing),
		sampleRun("run-2", domain.StateCompleted),
	}
	writeJSON(w, http.StatusOK, map[string]any{"migrations": runs, "count": len(runs)})
}

func (s *fakeService) get(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id != "run-1" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "migration run not found"})
		return
	}
	writeJSON(w, http.StatusOK, sampleRun(id, domain.StateCompleted))
}

func (s *fakeService) rollbackRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "done" {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "migration run already completed"})
		return
	}
	s.rollback = append(s.rollback, id)
	writeJSON(w, http.StatusAccepted, map[string]string{"run_id": id, "status": "rollback requested"})
}

func (s *fakeService) resilience(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, resilience.Snapshot{})
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := cli.NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestMigrateStart(t *testing.T) {
	server, svc := newFakeService(t)

	out, err := run(t, "--server", server.URL, "--token", testToken,
		"migrate", "start", "--alias", "articles", "--source", "articles_v1", "--target", "articles_v2")

	require.NoError(t, err)
	assert.Contains(t, out, "Migration started: run-1")
	assert.Equal(t, map[string]string{
		"alias":  "articles",
		"source": "articles_v1",
		"target": "articles_v2",
	}, svc.started)
}

func TestMigrateStart_InvalidRequest(t *testing.T) {
	server, _ := newFakeService(t)

	_, err := run(t, "--server", server.URL, "--token", testToken,
		"migrate", "start", "--alias", "articles", "--source", "articles_v1", "--target", "articles_v1")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "must differ")
}

func TestMigrateStatus(t *testing.T) {
	server, _ := newFakeService(t)

	tests := []struct {
		name    string
		args    []string
		want    []string
		wantErr int
	}{
		{
			name: "table",
			args: []string{"migrate", "status", "run-1"},
			want: []string{"run-1", "articles_v2", "COMPLETED", "50.0%"},
		},
		{
			name: "json",
			args: []string{"-o", "json", "migrate", "status", "run-1"},
			want: []string{`"id": "run-1"`, `"state": "COMPLETED"`},
		},
		{
			name:    "not found",
			args:    []string{"migrate", "status", "missing"},
			wantErr: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"--server", server.URL, "--token", testToken}, tt.args...)
			out, err := run(t, args...)

			if tt.wantErr != 0 {
				require.Error(t, err)
				code, ok := infraerrors.GetHTTPStatusCode(err)
				require.True(t, ok)
				assert.Equal(t, tt.wantErr, code)
				return
			}
			require.NoError(t, err)
			for _, w := range tt.want {
				assert.Contains(t, out, w)
			}
		})
	}
}

func TestMigrateStatus_WatchStopsAtTerminalState(t *testing.T) {
	server, _ := newFakeService(t)

	out, err := run(t, "--server", server.URL, "--token", testToken,
		"migrate", "status", "run-1", "--watch", "--interval", "10ms")

	require.NoError(t, err)
	assert.Contains(t, out, "COMPLETED")
}

func TestMigrateList(t *testing.T) {
	server, _ := newFakeService(t)

	out, err := run(t, "--server", server.URL, "--token", testToken, "migrate", "list")

	require.NoError(t, err)
	assert.Contains(t, out, "run-1")
	assert.Contains(t, out, "run-2")
	assert.Contains(t, out, "REINDEXING")
}

func TestMigrateRollback(t *testing.T) {
	server, svc := newFakeService(t)

	out, err := run(t, "--server", server.URL, "--token", testToken, "migrate", "rollback", "run-1")
	require.NoError(t, err)
	assert.Contains(t, out, "Rollback requested: run-1")
	assert.Equal(t, []string{"run-1"}, svc.rollback)

	_, err = run(t, "--server", server.URL, "--token", testToken, "migrate", "rollback", "done")
	require.Error(t, err)
	code, ok := infraerrors.GetHTTPStatusCode(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusConflict, code)
	assert.Contains(t, err.Error(), "already completed")
}

func TestResilience(t *testing.T) {
	server, _ := newFakeService(t)

	out, err := run(t, "--server", server.URL, "--token", testToken, "resilience")

	require.NoError(t, err)
	assert.Contains(t, out, "Circuit breakers")
	assert.Contains(t, out, "Bulkhead")
}

func TestMissingToken(t *testing.T) {
	server, _ := newFakeService(t)

	_, err := run(t, "--server", server.URL, "migrate", "list")

	require.Error(t, err)
	code, ok := infraerrors.GetHTTPStatusCode(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestInvalidOutput(t *testing.T) {
	_, err := run(t, "--output", "yaml", "migrate", "list")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid output")
}
