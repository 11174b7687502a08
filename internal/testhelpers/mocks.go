// Package testhelpers provides shared test utilities for index-guard packages.
package testhelpers

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/jonesrussell/north-cloud/index-guard/infrastructure/clock"
	"github.com/jonesrussell/north-cloud/index-guard/internal/domain"
	"github.com/jonesrussell/north-cloud/index-guard/internal/elasticsearch"
)

// MockIndexState is one in-memory index.
type MockIndexState struct {
	IDs      []string
	Mapping  map[string]any
	Settings map[string]any
	Health   string
	Stats    elasticsearch.IndexingStats
}

// MockBackend is an in-memory implementation of the backend index API.
// Reindex tasks follow TaskScript: each GetTask returns the next entry and
// the last entry repeats. Documents are copied when a completed status is served.
type MockBackend struct {
	mu sync.Mutex

	indices       map[string]*MockIndexState
	aliases       map[string][]string
	clusterStatus string
	failures      map[string]error

	// TaskScript is served by GetTask for every task.
	TaskScript []elasticsearch.TaskStatus
	// CopyLimit caps how many documents a reindex copies; negative copies all.
	CopyLimit int
	// Clock, when set, is advanced by SearchLatency on each search.
	Clock         *clock.Fake
	SearchLatency time.Duration
	// NewIndexHealth and NewIndexStats seed indices created through CreateIndex.
	NewIndexHealth string
	NewIndexStats  elasticsearch.IndexingStats
	// Hook runs at the start of every operation while the backend lock is held.
	// It must not call back into the backend.
	Hook func(op string)

	taskPos       map[string]int
	taskSource    map[string][2]string
	taskCopied    map[string]bool
	nextTask      int
	cancelled     []string
	aliasUpdates  [][]domain.AliasAction
	settingsCalls map[string][]map[string]any
	calls         []string
}

// NewMockBackend returns an empty backend with a green cluster.
func NewMockBackend() *MockBackend {
	return &MockBackend{
		indices:       make(map[string]*MockIndexState),
		aliases:       make(map[string][]string),
		clusterStatus: elasticsearch.HealthGreen,
		failures:      make(map[string]error),
		CopyLimit:     -1,
		taskPos:       make(map[string]int),
		taskSource:    make(map[string][2]string),
		taskCopied:    make(map[string]bool),
		settingsCalls: make(map[string][]map[string]any),
	}
}

// AddIndex registers an index holding docCount documents with ids "<name>-<n>".
func (m *MockBackend) AddIndex(name string, docCount int) *MockIndexState {
	m.mu.Lock()
	defer m.mu.Unlock()
	state := &MockIndexState{Health: elasticsearch.HealthGreen, Mapping: map[string]any{}}
	for i := range docCount {
		state.IDs = append(state.IDs, fmt.Sprintf("doc-%d", i))
	}
	m.indices[name] = state
	return state
}

// Index returns the state of an index, or nil.
func (m *MockBackend) Index(name string) *MockIndexState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.indices[name]
}

// SetAlias points alias at indices, replacing any previous assignment.
func (m *MockBackend) SetAlias(alias string, indices ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.aliases[alias] = slices.Clone(indices)
}

// SetClusterStatus sets the cluster health colour.
func (m *MockBackend) SetClusterStatus(status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clusterStatus = status
}

// Fail makes every call to op return err until Clear is called.
func (m *MockBackend) Fail(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[op] = err
}

// Clear removes an injected failure.
func (m *MockBackend) Clear(op string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.failures, op)
}

// AliasUpdates returns every UpdateAliases request, in order.
func (m *MockBackend) AliasUpdates() [][]domain.AliasAction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.aliasUpdates)
}

// SettingsCalls returns every PutSettings body sent for an index.
func (m *MockBackend) SettingsCalls(name string) []map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.settingsCalls[name])
}

// Cancelled returns the ids of cancelled tasks.
func (m *MockBackend) Cancelled() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.cancelled)
}

// Calls returns the operation names invoked so far.
func (m *MockBackend) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.calls)
}

// AliasIndices returns the indices currently behind alias.
func (m *MockBackend) AliasIndices(alias string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := slices.Clone(m.aliases[alias])
	sort.Strings(out)
	return out
}

// begin records the call and returns any injected failure. Callers hold m.mu.
func (m *MockBackend) begin(op string) error {
	m.calls = append(m.calls, op)
	if m.Hook != nil {
		m.Hook(op)
	}
	return m.failures[op]
}

func (m *MockBackend) index(op, name string) (*MockIndexState, error) {
	state, ok := m.indices[name]
	if !ok {
		return nil, &elasticsearch.ResponseError{Op: op, Status: http.StatusNotFound, Body: "index_not_found_exception"}
	}
	return state, nil
}

func (m *MockBackend) Ping(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.begin("ping")
}

func (m *MockBackend) CreateIndex(_ context.Context, name string, body map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("create_index"); err != nil {
		return err
	}
	if _, ok := m.indices[name]; ok {
		return &elasticsearch.ResponseError{Op: "create index", Status: http.StatusBadRequest, Body: "resource_already_exists_exception"}
	}
	state := &MockIndexState{Health: elasticsearch.HealthGreen, Mapping: map[string]any{}, Stats: m.NewIndexStats}
	if m.NewIndexHealth != "" {
		state.Health = m.NewIndexHealth
	}
	if mappings, ok := body["mappings"].(map[string]any); ok {
		state.Mapping = mappings
	}
	if settings, ok := body["settings"].(map[string]any); ok {
		state.Settings = settings
	}
	m.indices[name] = state
	return nil
}

func (m *MockBackend) DeleteIndex(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("delete_index"); err != nil {
		return err
	}
	delete(m.indices, name)
	for alias, indices := range m.aliases {
		m.aliases[alias] = slices.DeleteFunc(indices, func(s string) bool { return s == name })
	}
	return nil
}

func (m *MockBackend) IndexExists(_ context.Context, name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("index_exists"); err != nil {
		return false, err
	}
	_, ok := m.indices[name]
	return ok, nil
}

func (m *MockBackend) Count(_ context.Context, name string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("count"); err != nil {
		return 0, err
	}
	state, err := m.index("count", name)
	if err != nil {
		return 0, err
	}
	return int64(len(state.IDs)), nil
}

func (m *MockBackend) GetMapping(_ context.Context, name string) (map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("get_mapping"); err != nil {
		return nil, err
	}
	state, err := m.index("get mapping", name)
	if err != nil {
		return nil, err
	}
	return state.Mapping, nil
}

func (m *MockBackend) PutSettings(_ context.Context, name string, settings map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("put_settings"); err != nil {
		return err
	}
	if _, err := m.index("put settings", name); err != nil {
		return err
	}
	m.settingsCalls[name] = append(m.settingsCalls[name], settings)
	return nil
}

func (m *MockBackend) Refresh(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("refresh"); err != nil {
		return err
	}
	_, err := m.index("refresh", name)
	return err
}

func (m *MockBackend) Search(_ context.Context, name string, _ map[string]any) (elasticsearch.SearchResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("search"); err != nil {
		return elasticsearch.SearchResult{}, err
	}
	state, err := m.index("search", name)
	if err != nil {
		return elasticsearch.SearchResult{}, err
	}
	if m.Clock != nil {
		m.Clock.Advance(m.SearchLatency)
	}
	return elasticsearch.SearchResult{
		Total:   int64(len(state.IDs)),
		Latency: m.SearchLatency,
	}, nil
}

func (m *MockBackend) SampleIDs(_ context.Context, name string, size int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("sample_ids"); err != nil {
		return nil, err
	}
	state, err := m.index("sample ids", name)
	if err != nil {
		return nil, err
	}
	return slices.Clone(state.IDs[:min(size, len(state.IDs))]), nil
}

func (m *MockBackend) MultiGet(_ context.Context, name string, ids []string) (map[string]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("mget"); err != nil {
		return nil, err
	}
	state, err := m.index("mget", name)
	if err != nil {
		return nil, err
	}
	found := make(map[string]bool, len(ids))
	for _, id := range ids {
		found[id] = slices.Contains(state.IDs, id)
	}
	return found, nil
}

func (m *MockBackend) Reindex(_ context.Context, source, dest string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("reindex"); err != nil {
		return "", err
	}
	if _, err := m.index("reindex", source); err != nil {
		return "", err
	}
	m.nextTask++
	id := fmt.Sprintf("node:%d", m.nextTask)
	m.taskSource[id] = [2]string{source, dest}
	return id, nil
}

func (m *MockBackend) GetTask(_ context.Context, taskID string) (elasticsearch.TaskStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("get_task"); err != nil {
		return elasticsearch.TaskStatus{}, err
	}
	if len(m.TaskScript) == 0 {
		return elasticsearch.TaskStatus{Completed: true}, m.copyDocs(taskID)
	}
	pos := min(m.taskPos[taskID], len(m.TaskScript)-1)
	m.taskPos[taskID] = pos + 1
	status := m.TaskScript[pos]
	if status.Completed && status.Error == "" {
		if err := m.copyDocs(taskID); err != nil {
			return elasticsearch.TaskStatus{}, err
		}
	}
	return status, nil
}

func (m *MockBackend) copyDocs(taskID string) error {
	if m.taskCopied[taskID] {
		return nil
	}
	pair, ok := m.taskSource[taskID]
	if !ok {
		return &elasticsearch.ResponseError{Op: "get task", Status: http.StatusNotFound, Body: "resource_not_found_exception"}
	}
	src, srcErr := m.index("get task", pair[0])
	dst, dstErr := m.index("get task", pair[1])
	if srcErr != nil || dstErr != nil {
		return nil
	}
	ids := src.IDs
	if m.CopyLimit >= 0 && m.CopyLimit < len(ids) {
		ids = ids[:m.CopyLimit]
	}
	dst.IDs = append(dst.IDs, ids...)
	m.taskCopied[taskID] = true
	return nil
}

func (m *MockBackend) CancelTask(_ context.Context, taskID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("cancel_task"); err != nil {
		return err
	}
	m.cancelled = append(m.cancelled, taskID)
	return nil
}

func (m *MockBackend) UpdateAliases(_ context.Context, actions []domain.AliasAction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.aliasUpdates = append(m.aliasUpdates, slices.Clone(actions))
	if err := m.begin("update_aliases"); err != nil {
		return err
	}
	for _, a := range actions {
		if _, err := m.index("update aliases", a.Index); err != nil {
			return err
		}
	}
	for _, a := range actions {
		current := m.aliases[a.Alias]
		switch a.Type {
		case domain.AliasAdd:
			if !slices.Contains(current, a.Index) {
				m.aliases[a.Alias] = append(current, a.Index)
			}
		case domain.AliasRemove:
			m.aliases[a.Alias] = slices.DeleteFunc(current, func(s string) bool { return s == a.Index })
		}
		if len(m.aliases[a.Alias]) == 0 {
			delete(m.aliases, a.Alias)
		}
	}
	return nil
}

func (m *MockBackend) GetAliasIndices(_ context.Context, alias string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("get_alias"); err != nil {
		return nil, err
	}
	out := slices.Clone(m.aliases[alias])
	sort.Strings(out)
	if out == nil {
		out = []string{}
	}
	return out, nil
}

func (m *MockBackend) IndexAliases(_ context.Context, index string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("index_aliases"); err != nil {
		return nil, err
	}
	out := []string{}
	for alias, indices := range m.aliases {
		if slices.Contains(indices, index) {
			out = append(out, alias)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *MockBackend) ClusterHealth(context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("cluster_health"); err != nil {
		return "", err
	}
	return m.clusterStatus, nil
}

func (m *MockBackend) IndexHealth(_ context.Context, name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("index_health"); err != nil {
		return "", err
	}
	state, err := m.index("index health", name)
	if err != nil {
		return "", err
	}
	return state.Health, nil
}

func (m *MockBackend) IndexStats(_ context.Context, name string) (elasticsearch.IndexingStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("index_stats"); err != nil {
		return elasticsearch.IndexingStats{}, err
	}
	state, err := m.index("index stats", name)
	if err != nil {
		return elasticsearch.IndexingStats{}, err
	}
	stats := state.Stats
	stats.DocCount = int64(len(state.IDs))
	return stats, nil
}
