package lifecycle

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/syntrixbase/coldtier/internal/cluster"
	eventstest "github.com/syntrixbase/coldtier/internal/events/testing"
)

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
	// cancel, when set, is called on the sleep with the given index (1-based).
	cancelOn int
	cancel   context.CancelFunc
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: testNow}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	c.sleeps = append(c.sleeps, d)
	n := len(c.sleeps)
	cancel := c.cancel
	c.mu.Unlock()

	if cancel != nil && n == c.cancelOn {
		cancel()
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
	return nil
}

func (c *fakeClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

type fakeIndex struct {
	created   time.Time
	storeType string
	// source is the snapshot a mount was created from.
	source  string
	aliases map[string]cluster.AliasConfig
}

type fakeSnapshot struct {
	entry    cluster.SnapshotEntry
	info     cluster.SnapshotInfo
	statuses []cluster.SnapshotState
}

// fakeCluster is an in-memory cluster that records every call in order.
// Like the real engine it refuses to delete a snapshot that still backs a mount.
type fakeCluster struct {
	mu        sync.Mutex
	clock     *fakeClock
	indices   map[string]*fakeIndex
	snapshots map[string]*fakeSnapshot
	order     []string
	calls     []string

	// errors returned once each, in order, for "Method target".
	failures map[string][]error
	// errors returned on every call for "Method target".
	always map[string]error
	// calls whose effect is applied even when an error is injected.
	applied map[string]bool

	// behaviour of snapshots created by CreateSnapshot
	createStatuses []cluster.SnapshotState
	createState    cluster.SnapshotState
	createFailures []cluster.SnapshotFailure
	mountStoreType string

	writeAliases   map[string]string
	rollovers      map[string]cluster.RolloverResult
	lastConditions cluster.RolloverConditions
}

func newFakeCluster(clock *fakeClock) *fakeCluster {
	return &fakeCluster{
		clock:          clock,
		indices:        make(map[string]*fakeIndex),
		snapshots:      make(map[string]*fakeSnapshot),
		failures:       make(map[string][]error),
		always:         make(map[string]error),
		applied:        make(map[string]bool),
		createState:    cluster.SnapshotSuccess,
		mountStoreType: cluster.StoreTypeRemoteSnapshot,
		writeAliases:   make(map[string]string),
		rollovers:      make(map[string]cluster.RolloverResult),
	}
}

func ago(clock *fakeClock, days float64) time.Time {
	return clock.Now().Add(-time.Duration(days * float64(24*time.Hour)))
}

func (f *fakeCluster) addIndex(name string, ageDays float64) *fakeIndex {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := &fakeIndex{created: ago(f.clock, ageDays), aliases: map[string]cluster.AliasConfig{}}
	f.indices[name] = idx
	return idx
}

func (f *fakeCluster) addWriteIndex(name, alias string, ageDays float64) {
	idx := f.addIndex(name, ageDays)
	f.mu.Lock()
	defer f.mu.Unlock()
	idx.aliases[alias] = cluster.AliasConfig{IsWriteIndex: true}
	f.writeAliases[alias] = name
}

func (f *fakeCluster) addMount(name, source string, ageDays float64) {
	idx := f.addIndex(name, ageDays)
	f.mu.Lock()
	defer f.mu.Unlock()
	idx.storeType = cluster.StoreTypeRemoteSnapshot
	idx.source = source
}

// addSnapshot adds a SUCCESS snapshot of the index of the same name, ended ageDays ago.
func (f *fakeCluster) addSnapshot(id string, ageDays float64) *fakeSnapshot {
	end := ago(f.clock, ageDays)
	return f.putSnapshot(cluster.SnapshotEntry{
		ID:       id,
		Status:   string(cluster.SnapshotSuccess),
		EndEpoch: strconv.FormatInt(end.Unix(), 10),
	}, cluster.SnapshotInfo{
		Snapshot:        id,
		State:           cluster.SnapshotSuccess,
		Indices:         []string{id},
		StartTimeMillis: end.UnixMilli(),
		EndTimeMillis:   end.UnixMilli(),
	})
}

func (f *fakeCluster) putSnapshot(entry cluster.SnapshotEntry, info cluster.SnapshotInfo) *fakeSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := &fakeSnapshot{entry: entry, info: info}
	if _, ok := f.snapshots[entry.ID]; !ok {
		f.order = append(f.order, entry.ID)
	}
	f.snapshots[entry.ID] = s
	return s
}

func (f *fakeCluster) failOnce(key string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[key] = append(f.failures[key], errs...)
}

func (f *fakeCluster) failAlways(key string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.always[key] = err
}

func (f *fakeCluster) hasIndex(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.indices[name]
	return ok
}

func (f *fakeCluster) hasSnapshot(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.snapshots[name]
	return ok
}

func (f *fakeCluster) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// Mutations returns the recorded calls that change cluster state.
func (f *fakeCluster) Mutations() []string {
	var out []string
	for _, c := range f.Calls() {
		switch strings.SplitN(c, " ", 2)[0] {
		case "CreateSnapshot", "MountSearchable", "DeleteIndex", "DeleteSnapshot", "Rollover",
			"CreateIndexWithWriteAlias", "AddWriteAlias":
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeCluster) resetCalls() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

// call records the call and returns the injected error for it, if any. Callers hold f.mu.
func (f *fakeCluster) call(method, target string) error {
	key := method
	if target != "" {
		key = method + " " + target
	}
	f.calls = append(f.calls, key)
	if err := f.always[key]; err != nil {
		return err
	}
	if errs := f.failures[key]; len(errs) > 0 {
		f.failures[key] = errs[1:]
		return errs[0]
	}
	return nil
}

func (f *fakeCluster) sortedIndices(prefix string) []cluster.IndexInfo {
	names := make([]string, 0, len(f.indices))
	for name := range f.indices {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	out := make([]cluster.IndexInfo, len(names))
	for i, n := range names {
		out[i] = cluster.IndexInfo{Index: n}
	}
	return out
}

func (f *fakeCluster) ListIndices(ctx context.Context) ([]cluster.IndexInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("ListIndices", ""); err != nil {
		return nil, err
	}
	return f.sortedIndices(""), nil
}

func (f *fakeCluster) ListIndicesByPattern(ctx context.Context, pattern string) ([]cluster.IndexInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("ListIndicesByPattern", pattern); err != nil {
		return nil, err
	}
	return f.sortedIndices(strings.TrimSuffix(pattern, "*")), nil
}

func (f *fakeCluster) IndexSettings(ctx context.Context, index string) (cluster.IndexSettings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("IndexSettings", index); err != nil {
		return cluster.IndexSettings{}, err
	}
	idx, ok := f.indices[index]
	if !ok {
		return cluster.IndexSettings{}, cluster.ErrNotFound
	}
	s := cluster.IndexSettings{StoreType: idx.storeType}
	if !idx.created.IsZero() {
		s.CreationDate = strconv.FormatInt(idx.created.UnixMilli(), 10)
	}
	return s, nil
}

func (f *fakeCluster) IndexAliases(ctx context.Context, index string) (map[string]cluster.AliasConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("IndexAliases", index); err != nil {
		return nil, err
	}
	idx, ok := f.indices[index]
	if !ok {
		return nil, cluster.ErrNotFound
	}
	out := make(map[string]cluster.AliasConfig, len(idx.aliases))
	for k, v := range idx.aliases {
		out[k] = v
	}
	return out, nil
}

func (f *fakeCluster) IndexExists(ctx context.Context, index string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("IndexExists", index); err != nil {
		return false, err
	}
	_, ok := f.indices[index]
	return ok, nil
}

func (f *fakeCluster) DeleteIndex(ctx context.Context, index string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("DeleteIndex", index); err != nil {
		if f.applied["DeleteIndex "+index] {
			delete(f.indices, index)
		}
		return err
	}
	if _, ok := f.indices[index]; !ok {
		return cluster.ErrNotFound
	}
	delete(f.indices, index)
	return nil
}

func (f *fakeCluster) CreateIndexWithWriteAlias(ctx context.Context, index, alias string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("CreateIndexWithWriteAlias", index); err != nil {
		return err
	}
	f.indices[index] = &fakeIndex{
		created: f.clock.Now(),
		aliases: map[string]cluster.AliasConfig{alias: {IsWriteIndex: true}},
	}
	f.writeAliases[alias] = index
	return nil
}

func (f *fakeCluster) AddWriteAlias(ctx context.Context, index, alias string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("AddWriteAlias", index); err != nil {
		return err
	}
	idx, ok := f.indices[index]
	if !ok {
		return cluster.ErrNotFound
	}
	idx.aliases[alias] = cluster.AliasConfig{IsWriteIndex: true}
	f.writeAliases[alias] = index
	return nil
}

func (f *fakeCluster) CreateSnapshot(ctx context.Context, name string, indices []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("CreateSnapshot", name); err != nil {
		return err
	}
	if _, ok := f.snapshots[name]; ok {
		return cluster.ErrSnapshotExists
	}
	now := f.clock.Now()
	f.snapshots[name] = &fakeSnapshot{
		entry: cluster.SnapshotEntry{
			ID:       name,
			Status:   string(f.createState),
			EndEpoch: strconv.FormatInt(now.Unix(), 10),
		},
		info: cluster.SnapshotInfo{
			Snapshot:        name,
			State:           f.createState,
			Indices:         append([]string(nil), indices...),
			Failures:        f.createFailures,
			Shards:          cluster.ShardStats{Total: 3, Successful: 3},
			StartTimeMillis: now.UnixMilli(),
			EndTimeMillis:   now.UnixMilli(),
		},
		statuses: append([]cluster.SnapshotState(nil), f.createStatuses...),
	}
	f.order = append(f.order, name)
	return nil
}

func (f *fakeCluster) SnapshotStatus(ctx context.Context, name string) (cluster.SnapshotState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("SnapshotStatus", name); err != nil {
		return "", err
	}
	s, ok := f.snapshots[name]
	if !ok {
		return "", cluster.ErrNotFound
	}
	if len(s.statuses) > 0 {
		state := s.statuses[0]
		if len(s.statuses) > 1 {
			s.statuses = s.statuses[1:]
		}
		return state, nil
	}
	return s.info.State, nil
}

func (f *fakeCluster) SnapshotDetail(ctx context.Context, name string) (cluster.SnapshotInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("SnapshotDetail", name); err != nil {
		return cluster.SnapshotInfo{}, err
	}
	s, ok := f.snapshots[name]
	if !ok {
		return cluster.SnapshotInfo{}, cluster.ErrNotFound
	}
	return s.info, nil
}

func (f *fakeCluster) MountSearchable(ctx context.Context, snapshot string, req cluster.MountRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("MountSearchable", req.RenameTo); err != nil {
		return err
	}
	if _, ok := f.snapshots[snapshot]; !ok {
		return &cluster.StatusError{Method: http.MethodPost, Path: snapshot, Code: http.StatusNotFound}
	}
	if _, ok := f.indices[req.RenameTo]; ok {
		return &cluster.StatusError{Method: http.MethodPost, Path: snapshot, Code: http.StatusInternalServerError, Body: "index exists"}
	}
	f.indices[req.RenameTo] = &fakeIndex{
		created:   f.clock.Now(),
		storeType: f.mountStoreType,
		source:    snapshot,
		aliases:   map[string]cluster.AliasConfig{},
	}
	return nil
}

func (f *fakeCluster) DeleteSnapshot(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("DeleteSnapshot", name); err != nil {
		return err
	}
	if _, ok := f.snapshots[name]; !ok {
		return cluster.ErrNotFound
	}
	for idxName, idx := range f.indices {
		if idx.source == name {
			return &cluster.StatusError{Method: http.MethodDelete, Path: name, Code: http.StatusBadRequest,
				Body: "snapshot is backing index " + idxName}
		}
	}
	delete(f.snapshots, name)
	for i, id := range f.order {
		if id == name {
			f.order = append(f.order[:i], f.order[i+1:]...)
			break
		}
	}
	return nil
}

func (f *fakeCluster) ListSnapshots(ctx context.Context) ([]cluster.SnapshotEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("ListSnapshots", ""); err != nil {
		return nil, err
	}
	out := make([]cluster.SnapshotEntry, 0, len(f.order))
	for _, id := range f.order {
		out = append(out, f.snapshots[id].entry)
	}
	return out, nil
}

func (f *fakeCluster) EnsureRepository(ctx context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("EnsureRepository", ""); err != nil {
		return false, err
	}
	return false, nil
}

func (f *fakeCluster) WriteAliases(ctx context.Context, suffix string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("WriteAliases", ""); err != nil {
		return nil, err
	}
	var out []string
	for alias := range f.writeAliases {
		if strings.HasSuffix(alias, suffix) {
			out = append(out, alias)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (f *fakeCluster) WriteIndex(ctx context.Context, alias string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("WriteIndex", alias); err != nil {
		return "", err
	}
	index, ok := f.writeAliases[alias]
	if !ok {
		return "", cluster.ErrNotFound
	}
	return index, nil
}

func (f *fakeCluster) Rollover(ctx context.Context, alias string, conditions cluster.RolloverConditions) (cluster.RolloverResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("Rollover", alias); err != nil {
		return cluster.RolloverResult{}, err
	}
	f.lastConditions = conditions
	res, ok := f.rollovers[alias]
	if !ok {
		return cluster.RolloverResult{Acknowledged: true}, nil
	}
	return res, nil
}

type testEnv struct {
	o        *Orchestrator
	cluster  *fakeCluster
	clock    *fakeClock
	recorder *eventstest.Recorder
}

func testConfig() Config {
	return DefaultConfig()
}

func newTestEnv(t *testing.T, cfg Config) *testEnv {
	t.Helper()
	clock := newFakeClock()
	fc := newFakeCluster(clock)
	rec := eventstest.NewRecorder()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	o, err := New(cfg, fc, logger, WithClock(clock), WithSink(rec))
	require.NoError(t, err)
	return &testEnv{o: o, cluster: fc, clock: clock, recorder: rec}
}
