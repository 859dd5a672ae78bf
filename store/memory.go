package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-process Store used by tests and local tooling. All
// operations are synchronous: a mutation delivers the refreshed result
// set to every matching subscription before returning.
type Memory struct {
	mu          sync.Mutex
	collections map[string]map[string]Document
	subs        map[string]*memorySub
	now         func() time.Time
}

type memorySub struct {
	id    string
	query Query
	fn    SnapshotFunc
	ctx   context.Context
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		collections: map[string]map[string]Document{},
		subs:        map[string]*memorySub{},
		now:         time.Now,
	}
}

// SetClock overrides the timestamp source, for deterministic tests.
func (m *Memory) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// SubscriberCount reports active subscriptions, optionally restricted
// to one collection path. Used to assert that teardown released every
// listener.
func (m *Memory) SubscriberCount(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, sub := range m.subs {
		if path == "" || sub.query.Path == path {
			n++
		}
	}
	return n
}

func (m *Memory) GetAll(_ context.Context, q Query) ([]Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.evaluate(q), nil
}

func (m *Memory) Get(_ context.Context, collection, docID string) (Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.collections[collection][docID]
	if !ok {
		return Document{}, ErrNotFound
	}
	return copyDocument(doc), nil
}

func (m *Memory) Add(ctx context.Context, collection string, data map[string]any) (string, error) {
	m.mu.Lock()
	now := m.now()
	doc := Document{
		ID:         uuid.NewString(),
		CreateTime: now,
		Data:       resolveTimestamps(copyData(data), now),
	}
	if m.collections[collection] == nil {
		m.collections[collection] = map[string]Document{}
	}
	m.collections[collection][doc.ID] = doc
	pending := m.affectedSubs(collection)
	m.mu.Unlock()

	m.deliver(pending)
	return doc.ID, nil
}

func (m *Memory) Update(ctx context.Context, collection, docID string, updates []Update) error {
	m.mu.Lock()
	if err := m.applyUpdatesLocked(collection, docID, updates); err != nil {
		m.mu.Unlock()
		return err
	}
	pending := m.affectedSubs(collection)
	m.mu.Unlock()
	m.deliver(pending)
	return nil
}

// ApplyAll validates and applies every write under one lock hold, so no
// concurrent mutation can interleave and leave a partial commit.
func (m *Memory) ApplyAll(ctx context.Context, writes []Write) error {
	m.mu.Lock()
	for _, w := range writes {
		if _, ok := m.collections[w.Collection][w.DocID]; !ok {
			m.mu.Unlock()
			return ErrNotFound
		}
	}

	touched := map[string]bool{}
	for _, w := range writes {
		if err := m.applyUpdatesLocked(w.Collection, w.DocID, w.Updates); err != nil {
			m.mu.Unlock()
			return err
		}
		touched[w.Collection] = true
	}

	var pending []subDelivery
	for path := range touched {
		pending = append(pending, m.affectedSubs(path)...)
	}
	m.mu.Unlock()
	m.deliver(pending)
	return nil
}

func (m *Memory) Delete(ctx context.Context, collection, docID string) error {
	m.mu.Lock()
	delete(m.collections[collection], docID)
	pending := m.affectedSubs(collection)
	m.mu.Unlock()
	m.deliver(pending)
	return nil
}

func (m *Memory) Subscribe(ctx context.Context, q Query, fn SnapshotFunc) (CancelFunc, error) {
	sub := &memorySub{
		id:    uuid.NewString(),
		query: q,
		fn:    fn,
		ctx:   ctx,
	}
	m.mu.Lock()
	m.subs[sub.id] = sub
	initial := m.evaluate(q)
	m.mu.Unlock()

	// Initial snapshot is delivered before Subscribe returns, like a
	// Firestore snapshot listener's first emission.
	fn(ctx, initial)

	cancel := func() {
		m.mu.Lock()
		delete(m.subs, sub.id)
		m.mu.Unlock()
	}
	return cancel, nil
}

// applyUpdatesLocked must run with the mutex held.
func (m *Memory) applyUpdatesLocked(collection, docID string, updates []Update) error {
	doc, ok := m.collections[collection][docID]
	if !ok {
		return ErrNotFound
	}
	now := m.now()
	for _, u := range updates {
		switch u.Kind {
		case UpdateArrayUnion:
			arr, _ := lookupField(doc.Data, u.Path).([]any)
			for _, el := range elements(u.Value) {
				if !containsValue(arr, el) {
					arr = append(arr, el)
				}
			}
			setField(doc.Data, u.Path, arr)
		case UpdateArrayRemove:
			arr, _ := lookupField(doc.Data, u.Path).([]any)
			kept := make([]any, 0, len(arr))
			for _, el := range arr {
				if !containsValue(elements(u.Value), el) {
					kept = append(kept, el)
				}
			}
			setField(doc.Data, u.Path, kept)
		default:
			v := u.Value
			if _, ok := v.(serverTimestamp); ok {
				v = now
			}
			setField(doc.Data, u.Path, v)
		}
	}
	m.collections[collection][docID] = doc
	return nil
}

type subDelivery struct {
	sub  *memorySub
	docs []Document
}

// affectedSubs must run with the mutex held; deliveries happen after it
// is released so callbacks can re-enter the store.
func (m *Memory) affectedSubs(path string) []subDelivery {
	var pending []subDelivery
	for _, sub := range m.subs {
		if sub.query.Path != path {
			continue
		}
		if sub.ctx.Err() != nil {
			continue
		}
		pending = append(pending, subDelivery{sub: sub, docs: m.evaluate(sub.query)})
	}
	return pending
}

func (m *Memory) deliver(pending []subDelivery) {
	for _, p := range pending {
		p.sub.fn(p.sub.ctx, p.docs)
	}
}

func (m *Memory) evaluate(q Query) []Document {
	var out []Document
	for _, doc := range m.collections[q.Path] {
		if matches(doc, q.Filters) {
			out = append(out, copyDocument(doc))
		}
	}
	if q.OrderBy != "" {
		sort.SliceStable(out, func(i, j int) bool {
			a := lookupField(out[i].Data, q.OrderBy)
			b := lookupField(out[j].Data, q.OrderBy)
			if q.Desc {
				return lessValue(b, a)
			}
			return lessValue(a, b)
		})
	} else {
		// No explicit order: stable by creation time, matching the
		// arrival order a real listener would replay.
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].CreateTime.Before(out[j].CreateTime)
		})
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}

func matches(doc Document, filters []Filter) bool {
	for _, f := range filters {
		v := lookupField(doc.Data, f.Path)
		switch f.Op {
		case OpEqual:
			if v != f.Value {
				return false
			}
		case OpArrayContains:
			arr, _ := v.([]any)
			if !containsValue(arr, f.Value) {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func containsValue(arr []any, v any) bool {
	for _, el := range arr {
		if el == v {
			return true
		}
	}
	return false
}

func lookupField(data map[string]any, path string) any {
	parts := strings.Split(path, ".")
	var cur any = data
	for _, p := range parts {
		mp, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = mp[p]
	}
	return cur
}

func setField(data map[string]any, path string, v any) {
	parts := strings.Split(path, ".")
	cur := data
	for _, p := range parts[:len(parts)-1] {
		next, ok := cur[p].(map[string]any)
		if !ok {
			next = map[string]any{}
			cur[p] = next
		}
		cur = next
	}
	cur[parts[len(parts)-1]] = v
}

func lessValue(a, b any) bool {
	switch av := a.(type) {
	case nil:
		return b != nil
	case time.Time:
		bv, ok := b.(time.Time)
		return ok && av.Before(bv)
	case string:
		bv, ok := b.(string)
		return ok && av < bv
	case int:
		bv, ok := b.(int)
		return ok && av < bv
	case int64:
		bv, ok := b.(int64)
		return ok && av < bv
	case float64:
		bv, ok := b.(float64)
		return ok && av < bv
	}
	return false
}

func resolveTimestamps(data map[string]any, now time.Time) map[string]any {
	for k, v := range data {
		switch vv := v.(type) {
		case serverTimestamp:
			data[k] = now
		case map[string]any:
			data[k] = resolveTimestamps(vv, now)
		}
	}
	return data
}

func copyDocument(doc Document) Document {
	doc.Data = copyData(doc.Data)
	return doc
}

func copyData(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		switch vv := v.(type) {
		case map[string]any:
			out[k] = copyData(vv)
		case []any:
			arr := make([]any, len(vv))
			copy(arr, vv)
			out[k] = arr
		default:
			out[k] = v
		}
	}
	return out
}
