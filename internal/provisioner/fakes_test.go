package provisioner

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/nerrad567/gray-logic-mesh/internal/cdb"
	"github.com/nerrad567/gray-logic-mesh/internal/mesh"
)

// memStore is an in-memory cdb.Store.
type memStore struct {
	mu      sync.Mutex
	network *cdb.Network
	appKeys map[mesh.KeyIndex]cdb.AppKey
	nodes   map[mesh.Address]*cdb.Node
	saveErr error
	// appKeyErr fails the next SaveAppKey only.
	appKeyErr error
}

func newMemStore() *memStore {
	return &memStore{
		appKeys: make(map[mesh.KeyIndex]cdb.AppKey),
		nodes:   make(map[mesh.Address]*cdb.Node),
	}
}

func (s *memStore) LoadNetwork(context.Context) (*cdb.Network, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.network == nil {
		return nil, cdb.ErrNoNetwork
	}
	n := *s.network
	return &n, nil
}

func (s *memStore) SaveNetwork(_ context.Context, n *cdb.Network) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *n
	s.network = &cp
	return nil
}

func (s *memStore) ListAppKeys(context.Context) ([]cdb.AppKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []cdb.AppKey
	for _, k := range s.appKeys {
		out = append(out, k)
	}
	return out, nil
}

func (s *memStore) SaveAppKey(_ context.Context, k cdb.AppKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.appKeyErr; err != nil {
		s.appKeyErr = nil
		return err
	}
	s.appKeys[k.AppIdx] = k
	return nil
}

func (s *memStore) ListNodes(context.Context) ([]*cdb.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*cdb.Node
	for _, n := range s.nodes {
		out = append(out, n.DeepCopy())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out, nil
}

func (s *memStore) SaveNode(_ context.Context, n *cdb.Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	if old, ok := s.nodes[n.Address]; ok && old.Configured && !n.Configured {
		return errors.New("configured flag cannot be cleared")
	}
	s.nodes[n.Address] = n.DeepCopy()
	return nil
}

type bindCall struct {
	Target  mesh.Address
	Element mesh.Address
	AppIdx  mesh.KeyIndex
	Model   mesh.ModelID
}

// fakeRadio records every call and answers from configurable tables.
type fakeRadio struct {
	mu sync.Mutex

	sink  mesh.EventSink
	local []mesh.LocalProvisioning
	admit []mesh.AdmitRequest
	binds []bindCall

	appKeyAdds   []mesh.Address
	appKeyNetIdx []mesh.KeyIndex
	compReqs     []mesh.Address

	localErr     error
	admitErr     error
	onAdmit      func(req mesh.AdmitRequest)
	appKeyStatus map[mesh.Address]mesh.Status
	appKeyErr    map[mesh.Address]error
	comps        map[mesh.Address][]byte
	compErr      map[mesh.Address]error
	bindStatus   func(bindCall) mesh.Status
}

func newFakeRadio() *fakeRadio {
	return &fakeRadio{
		appKeyStatus: make(map[mesh.Address]mesh.Status),
		appKeyErr:    make(map[mesh.Address]error),
		comps:        make(map[mesh.Address][]byte),
		compErr:      make(map[mesh.Address]error),
	}
}

func (r *fakeRadio) ProvisionLocal(_ context.Context, req mesh.LocalProvisioning) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.local = append(r.local, req)
	if r.localErr != nil {
		return r.localErr
	}
	// A second join reports the device is already a member.
	if len(r.local) > 1 {
		return mesh.ErrAlreadyProvisioned
	}
	return nil
}

func (r *fakeRadio) ProvisionAdv(_ context.Context, req mesh.AdmitRequest) error {
	r.mu.Lock()
	r.admit = append(r.admit, req)
	err, hook := r.admitErr, r.onAdmit
	r.mu.Unlock()

	if err != nil {
		return err
	}
	if hook != nil {
		hook(req)
	}
	return nil
}

func (r *fakeRadio) AddAppKey(_ context.Context, netIdx mesh.KeyIndex, target mesh.Address, _ mesh.KeyIndex, _ mesh.Key) (mesh.Status, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.appKeyAdds = append(r.appKeyAdds, target)
	r.appKeyNetIdx = append(r.appKeyNetIdx, netIdx)
	if err := r.appKeyErr[target]; err != nil {
		return 0, err
	}
	return r.appKeyStatus[target], nil
}

func (r *fakeRadio) CompositionData(_ context.Context, target mesh.Address, _ uint8) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.compReqs = append(r.compReqs, target)
	if err := r.compErr[target]; err != nil {
		return nil, err
	}
	raw, ok := r.comps[target]
	if !ok {
		return nil, errors.New("no composition")
	}
	return raw, nil
}

func (r *fakeRadio) BindModel(_ context.Context, target, element mesh.Address, appIdx mesh.KeyIndex, model mesh.ModelID) (mesh.Status, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	call := bindCall{Target: target, Element: element, AppIdx: appIdx, Model: model}
	r.binds = append(r.binds, call)
	if r.bindStatus != nil {
		return r.bindStatus(call), nil
	}
	return mesh.StatusSuccess, nil
}

func (r *fakeRadio) SetEventSink(sink mesh.EventSink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sink = sink
}

// remoteCalls counts calls that would reach another node.
func (r *fakeRadio) remoteCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.appKeyAdds) + len(r.compReqs) + len(r.binds)
}

func (r *fakeRadio) admissions() []mesh.AdmitRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]mesh.AdmitRequest(nil), r.admit...)
}

func (r *fakeRadio) bindCalls() []bindCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bindCall(nil), r.binds...)
}

func (r *fakeRadio) appKeyTargets() []mesh.Address {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]mesh.Address(nil), r.appKeyAdds...)
}

func (r *fakeRadio) appKeyNetIndexes() []mesh.KeyIndex {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]mesh.KeyIndex(nil), r.appKeyNetIdx...)
}

func (r *fakeRadio) compTargets() []mesh.Address {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]mesh.Address(nil), r.compReqs...)
}

type logEntry struct {
	level string
	msg   string
}

// recordingLogger keeps every entry for assertions.
type recordingLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *recordingLogger) add(level, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{level, msg})
}

func (l *recordingLogger) Debug(msg string, _ ...any) { l.add("debug", msg) }
func (l *recordingLogger) Info(msg string, _ ...any)  { l.add("info", msg) }
func (l *recordingLogger) Warn(msg string, _ ...any)  { l.add("warn", msg) }
func (l *recordingLogger) Error(msg string, _ ...any) { l.add("error", msg) }

func (l *recordingLogger) count(level string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.entries {
		if e.level == level {
			n++
		}
	}
	return n
}

// recordingObserver keeps every event.
type recordingObserver struct {
	mu         sync.Mutex
	ticks      []TickReport
	admitted   []NodeEvent
	configured []NodeEvent
}

func (o *recordingObserver) TickCompleted(r TickReport) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ticks = append(o.ticks, r)
}

func (o *recordingObserver) NodeAdmitted(e NodeEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.admitted = append(o.admitted, e)
}

func (o *recordingObserver) NodeConfigured(e NodeEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.configured = append(o.configured, e)
}
