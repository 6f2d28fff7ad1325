// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package device

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

// DefaultCapacity is the default fixed number of kind slots a Manager
// reserves, mirroring the original's MAX_DEVICE_TYPES closed enum.
const DefaultCapacity = 16

// Option configures a Manager at construction time.
type Option func(*Manager)

// WithCapacity overrides the fixed number of kind-id slots.
func WithCapacity(n int) Option {
	return func(m *Manager) {
		m.slots = make([]*kindSlot, n)
	}
}

// WithNotifier installs the Notifier (typically a *rule.Engine) the
// manager calls, unlocked, after every successful word write. See
// SetNotifier for the case where the engine is built after the
// manager.
func WithNotifier(n Notifier) Option {
	return func(m *Manager) { m.notifier = n }
}

// kindSlot holds one registered kind, its instance list and the
// kind-list mutex that guards that list (spec §4.D/E lock discipline:
// the kind-list mutex is distinct from, and acquired after, the
// top-level registry mutex).
type kindSlot struct {
	mu        sync.Mutex
	kind      *Kind
	instances map[InstanceID]*Instance
}

// Manager is the device registry: a fixed-capacity array of kind
// slots, each with its own instance list, plus the top-level registry
// mutex that guards slot registration.
//
// The engine back-reference spec §3 assigns to Memory lives here
// instead (see memory.go's doc comment) so it can be invoked after
// the per-write instance lock has already been released.
type Manager struct {
	mu       sync.Mutex // registry mutex: guards slot registration only
	slots    []*kindSlot
	notifier Notifier

	statsMu sync.Mutex
	stats   map[StatKey]RegStat
}

// StatKey identifies one register's watchpoint counter, the
// generalized (kind_id, instance_id, addr) triple
// original_source/include/global_monitor.h keys its counters on.
type StatKey struct {
	Kind KindID
	ID   InstanceID
	Addr uint32
}

// RegStat is the read/write tally for one StatKey.
type RegStat struct {
	Reads  uint64
	Writes uint64
}

func (m *Manager) recordRead(h Handle, addr uint32) {
	m.statsMu.Lock()
	defer m.statsMu.Unlock()
	if m.stats == nil {
		m.stats = make(map[StatKey]RegStat)
	}
	k := StatKey{Kind: h.Kind, ID: h.ID, Addr: addr}
	s := m.stats[k]
	s.Reads++
	m.stats[k] = s
}

func (m *Manager) recordWrite(h Handle, addr uint32) {
	m.statsMu.Lock()
	defer m.statsMu.Unlock()
	if m.stats == nil {
		m.stats = make(map[StatKey]RegStat)
	}
	k := StatKey{Kind: h.Kind, ID: h.ID, Addr: addr}
	s := m.stats[k]
	s.Writes++
	m.stats[k] = s
}

// Stats returns a snapshot of the per-register read/write counters
// accumulated so far, the watchpoint-style introspection accessor
// from global_monitor.h (spec §9: counting only, no trigger
// mechanism — that half overlaps the rule engine and is not
// duplicated here).
func (m *Manager) Stats() map[StatKey]RegStat {
	m.statsMu.Lock()
	defer m.statsMu.Unlock()
	out := make(map[StatKey]RegStat, len(m.stats))
	for k, v := range m.stats {
		out[k] = v
	}
	return out
}

// NewManager creates an empty Manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{slots: make([]*kindSlot, DefaultCapacity)}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetNotifier installs the Notifier used after every write. Intended
// to be called once, before any write traffic starts, from the code
// that wires a rule.Engine to this manager — there is deliberately no
// global registry to look one up from (spec §9: no hidden globals).
func (m *Manager) SetNotifier(n Notifier) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifier = n
}

// RegisterKind installs kind into its id's slot. Idempotent per slot:
// registering the same id twice fails with ErrDuplicate.
func (m *Manager) RegisterKind(kind Kind) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if int(kind.ID) >= len(m.slots) {
		return tagErr(fmt.Errorf("device: kind id %d exceeds manager capacity %d: %w", kind.ID, len(m.slots), ErrInvalidArgument))
	}
	if m.slots[kind.ID] != nil {
		return tagErr(fmt.Errorf("device: kind id %d already registered: %w", kind.ID, ErrDuplicate))
	}
	if kind.Ops.Write == nil {
		return tagErr(fmt.Errorf("device: kind %q missing Write op: %w", kind.Name, ErrInvalidArgument))
	}

	k := kind
	m.slots[kind.ID] = &kindSlot{
		kind:      &k,
		instances: make(map[InstanceID]*Instance),
	}
	return nil
}

func (m *Manager) slotFor(kindID KindID) (*kindSlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if int(kindID) >= len(m.slots) || m.slots[kindID] == nil {
		return nil, fmt.Errorf("device: unknown kind id %d: %w", kindID, ErrUnknownKind)
	}
	return m.slots[kindID], nil
}

// CreateInstance allocates a new instance of kindID with the given
// instanceID, calls the kind's Init hook and links it into the kind's
// instance list. Fails if instanceID already exists for this kind.
func (m *Manager) CreateInstance(kindID KindID, instanceID InstanceID) (*Instance, error) {
	slot, err := m.slotFor(kindID)
	if err != nil {
		return nil, tagErr(err)
	}

	slot.mu.Lock()
	defer slot.mu.Unlock()

	if _, ok := slot.instances[instanceID]; ok {
		return nil, tagErr(fmt.Errorf("device: instance (kind=%d, id=%d) already exists: %w", kindID, instanceID, ErrDuplicate))
	}

	h := Handle{Kind: kindID, ID: instanceID}
	inst := &Instance{
		kind: slot.kind,
		id:   instanceID,
		mem:  newMemory(h),
	}

	if slot.kind.Ops.Init != nil {
		if err := slot.kind.Ops.Init(inst); err != nil {
			return nil, fmt.Errorf("device: could not init instance %v: %w", h, err)
		}
	}

	slot.instances[instanceID] = inst
	return inst, nil
}

// DestroyInstance unlinks and destroys the given instance.
func (m *Manager) DestroyInstance(kindID KindID, instanceID InstanceID) error {
	slot, err := m.slotFor(kindID)
	if err != nil {
		return tagErr(err)
	}

	slot.mu.Lock()
	defer slot.mu.Unlock()

	inst, ok := slot.instances[instanceID]
	if !ok {
		return tagErr(fmt.Errorf("device: instance (kind=%d, id=%d) not found: %w", kindID, instanceID, ErrNotFound))
	}

	if slot.kind.Ops.Destroy != nil {
		if err := slot.kind.Ops.Destroy(inst); err != nil {
			return fmt.Errorf("device: could not destroy instance %v: %w", inst.Handle(), err)
		}
	}

	delete(slot.instances, instanceID)
	return nil
}

// Get looks up an instance by handle.
func (m *Manager) Get(h Handle) (*Instance, bool) {
	slot, err := m.slotFor(h.Kind)
	if err != nil {
		return nil, false
	}

	slot.mu.Lock()
	defer slot.mu.Unlock()

	inst, ok := slot.instances[h.ID]
	return inst, ok
}

// ReadWord reads a word from the instance at h.
func (m *Manager) ReadWord(h Handle, addr uint32) (uint32, error) {
	inst, ok := m.Get(h)
	if !ok {
		return 0, tagErr(fmt.Errorf("device: %v: %w", h, ErrNotFound))
	}
	v, err := inst.ReadWord(addr)
	if err != nil {
		return 0, tagErr(err)
	}
	m.recordRead(h, addr)
	return v, nil
}

// WriteWord writes a word to the instance at h, then — once the
// instance lock taken for the store has been released — notifies the
// configured Notifier. This is the top-level, depth-0 entry point.
func (m *Manager) WriteWord(h Handle, addr, value uint32) error {
	return m.WriteWordContext(context.Background(), h, addr, value)
}

// WriteWordContext is WriteWord with an explicit context, used by the
// rule engine to thread its recursion-depth value through re-entrant
// writes triggered by a rule's Write target.
func (m *Manager) WriteWordContext(ctx context.Context, h Handle, addr, value uint32) error {
	inst, ok := m.Get(h)
	if !ok {
		return tagErr(fmt.Errorf("device: %v: %w", h, ErrNotFound))
	}

	if err := inst.WriteWord(addr, value); err != nil {
		return tagErr(err)
	}
	m.recordWrite(h, addr)

	if m.notifier != nil {
		m.notifier.OnWrite(ctx, h, addr, value)
	}
	return nil
}

// WriteWordMaskedContext applies a masked write (see
// Instance.WriteWordMasked) and then notifies, the same way
// WriteWordContext does for a plain write. It is the primitive the
// rule engine's action executor uses for Write targets, since those
// always carry a mask (spec §3).
func (m *Manager) WriteWordMaskedContext(ctx context.Context, h Handle, addr, value, mask uint32) error {
	inst, ok := m.Get(h)
	if !ok {
		return tagErr(fmt.Errorf("device: %v: %w", h, ErrNotFound))
	}

	if err := inst.WriteWordMasked(addr, value, mask); err != nil {
		return tagErr(err)
	}
	m.recordWrite(h, addr)

	if m.notifier != nil {
		final, err := inst.ReadWord(addr)
		if err == nil {
			m.notifier.OnWrite(ctx, h, addr, final)
		}
	}
	return nil
}

// CreateSpec describes one instance to bring up via CreateMany.
type CreateSpec struct {
	Kind KindID
	ID   InstanceID
}

// CreateMany brings up a batch of instances concurrently, collecting
// the first error (fail-fast), grounded on eda/device.go's use of
// golang.org/x/sync/errgroup for concurrent RFM bring-up.
func (m *Manager) CreateMany(specs []CreateSpec) ([]*Instance, error) {
	out := make([]*Instance, len(specs))

	var grp errgroup.Group
	for i, spec := range specs {
		i, spec := i, spec
		grp.Go(func() error {
			inst, err := m.CreateInstance(spec.Kind, spec.ID)
			if err != nil {
				return err
			}
			out[i] = inst
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return nil, fmt.Errorf("device: could not bring up instances: %w", err)
	}
	return out, nil
}

// recursionDepthKey is the context key a rule engine uses to thread
// its per-chain recursion depth through re-entrant writes. Exposed via
// DepthFromContext/WithDepth so rule.Engine can use it without this
// package importing rule (avoiding the import cycle).
type recursionDepthKey struct{}

// DepthFromContext returns the recursion depth recorded on ctx by a
// rule engine, or 0 if none is present (a top-level write).
func DepthFromContext(ctx context.Context) int {
	if v, ok := ctx.Value(recursionDepthKey{}).(int); ok {
		return v
	}
	return 0
}

// WithDepth returns a context carrying recursion depth d, for use by
// a rule engine re-entering WriteWordContext from inside dispatch.
func WithDepth(ctx context.Context, d int) context.Context {
	return context.WithValue(ctx, recursionDepthKey{}, d)
}
