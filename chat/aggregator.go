package chat

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/abarbosa/fintalk/store"
)

var (
	ErrNoUser         = errors.New("no signed-in user")
	ErrAlreadyStarted = errors.New("aggregator already started")
)

// lastState distinguishes "subscription has not answered yet" from
// "conversation genuinely has no messages".
type lastState struct {
	resolved bool
	msg      *LastMessage
}

type convEntry struct {
	name           string
	participants   []string
	counterpart    string
	cancelMessages store.CancelFunc
	cancelName     store.CancelFunc
}

// Aggregator merges the bot broadcast channel, the user's group
// conversations and the user's private chats into one unified list,
// kept current by live subscriptions. Each visible conversation holds a
// nested subscription on its latest message, opened when the
// conversation enters the result set and released when it leaves or
// when the aggregator closes.
type Aggregator struct {
	store     store.Store
	userEmail string

	mu        sync.Mutex
	started   bool
	closed    bool
	broadcast *Message
	groups    map[string]*convEntry
	privates  map[string]*convEntry
	last      map[string]lastState
	names     map[string]string
	cancels   []store.CancelFunc

	updates chan struct{}
}

// NewAggregator builds an aggregator for the signed-in user's view.
func NewAggregator(s store.Store, userEmail string) *Aggregator {
	return &Aggregator{
		store:     s,
		userEmail: userEmail,
		groups:    map[string]*convEntry{},
		privates:  map[string]*convEntry{},
		last:      map[string]lastState{},
		names:     map[string]string{},
		updates:   make(chan struct{}, 1),
	}
}

// Start opens the three top-level subscriptions. It must be paired with
// Close, otherwise listeners keep consuming server push bandwidth after
// the owning screen is gone.
func (a *Aggregator) Start(ctx context.Context) error {
	if a.userEmail == "" {
		return ErrNoUser
	}
	a.mu.Lock()
	if a.started {
		a.mu.Unlock()
		return ErrAlreadyStarted
	}
	a.started = true
	a.mu.Unlock()

	botQuery := store.Query{
		Path:    BroadcastCollection,
		Filters: []store.Filter{{Path: "user._id", Op: store.OpEqual, Value: BotUserID}},
		OrderBy: "createdAt",
		Desc:    true,
		Limit:   1,
	}
	cancelBot, err := a.store.Subscribe(ctx, botQuery, a.onBroadcast)
	if err != nil {
		return err
	}

	groupsQuery := store.Query{
		Path:    GroupCollection,
		Filters: []store.Filter{{Path: "participants", Op: store.OpArrayContains, Value: a.userEmail}},
	}
	cancelGroups, err := a.store.Subscribe(ctx, groupsQuery, func(cctx context.Context, docs []store.Document) {
		a.onConversations(cctx, KindGroup, docs)
	})
	if err != nil {
		cancelBot()
		return err
	}

	privateQuery := store.Query{
		Path:    PrivateCollection,
		Filters: []store.Filter{{Path: "participants", Op: store.OpArrayContains, Value: a.userEmail}},
	}
	cancelPrivate, err := a.store.Subscribe(ctx, privateQuery, func(cctx context.Context, docs []store.Document) {
		a.onConversations(cctx, KindPrivate, docs)
	})
	if err != nil {
		cancelBot()
		cancelGroups()
		return err
	}

	a.mu.Lock()
	a.cancels = append(a.cancels, cancelBot, cancelGroups, cancelPrivate)
	a.mu.Unlock()
	return nil
}

// Close releases every subscription the aggregator holds. Later
// emissions that were already in flight are dropped.
func (a *Aggregator) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	cancels := a.cancels
	a.cancels = nil
	for _, e := range a.groups {
		cancels = append(cancels, e.cancelMessages)
	}
	for _, e := range a.privates {
		cancels = append(cancels, e.cancelMessages, e.cancelName)
	}
	a.groups = map[string]*convEntry{}
	a.privates = map[string]*convEntry{}
	a.mu.Unlock()

	for _, cancel := range cancels {
		if cancel != nil {
			cancel()
		}
	}
}

// Updates signals whenever the merged list changed, coalescing bursts.
func (a *Aggregator) Updates() <-chan struct{} {
	return a.updates
}

func (a *Aggregator) notify() {
	select {
	case a.updates <- struct{}{}:
	default:
	}
}

func (a *Aggregator) onBroadcast(_ context.Context, docs []store.Document) {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	if len(docs) == 0 {
		a.broadcast = nil
	} else {
		msg := decodeMessage(docs[0])
		a.broadcast = &msg
	}
	a.mu.Unlock()
	a.notify()
}

// onConversations reconciles a top-level emission against the tracked
// set: new entries gain a nested latest-message subscription (and, for
// private chats, a counterpart directory lookup), removed entries have
// theirs cancelled.
func (a *Aggregator) onConversations(ctx context.Context, kind Kind, docs []store.Document) {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	entries := a.groups
	collection := GroupCollection
	if kind == KindPrivate {
		entries = a.privates
		collection = PrivateCollection
	}

	seen := map[string]bool{}
	var added []string
	for _, doc := range docs {
		seen[doc.ID] = true
		name, _ := doc.Data["groupName"].(string)
		participants := stringSlice(doc.Data["participants"])
		if e, ok := entries[doc.ID]; ok {
			e.name = name
			e.participants = participants
			continue
		}
		e := &convEntry{name: name, participants: participants}
		if kind == KindPrivate {
			e.counterpart = counterpartOf(participants, a.userEmail)
		}
		entries[doc.ID] = e
		added = append(added, doc.ID)
	}

	var stale []store.CancelFunc
	for id, e := range entries {
		if seen[id] {
			continue
		}
		stale = append(stale, e.cancelMessages, e.cancelName)
		delete(entries, id)
		delete(a.last, id)
	}
	a.mu.Unlock()

	for _, cancel := range stale {
		if cancel != nil {
			cancel()
		}
	}
	for _, id := range added {
		a.watchLatestMessage(ctx, collection, id)
		if kind == KindPrivate {
			a.watchCounterpartName(ctx, id)
		}
	}
	a.notify()
}

func (a *Aggregator) watchLatestMessage(ctx context.Context, collection, convID string) {
	q := store.Query{
		Path:    collection + "/" + convID + "/" + messagesSubcollection,
		OrderBy: "createdAt",
		Desc:    true,
		Limit:   1,
	}
	cancel, err := a.store.Subscribe(ctx, q, func(_ context.Context, docs []store.Document) {
		a.mu.Lock()
		if a.closed {
			a.mu.Unlock()
			return
		}
		st := lastState{resolved: true}
		if len(docs) > 0 {
			msg := decodeMessage(docs[0])
			st.msg = &LastMessage{
				SenderName: msg.Sender.Name,
				Text:       msg.Text,
				SentAt:     msg.CreatedAt,
			}
		}
		a.last[convID] = st
		a.mu.Unlock()
		a.notify()
	})
	if err != nil {
		return
	}

	a.mu.Lock()
	e := a.entry(convID)
	if e == nil || a.closed {
		a.mu.Unlock()
		cancel()
		return
	}
	e.cancelMessages = cancel
	a.mu.Unlock()
}

func (a *Aggregator) watchCounterpartName(ctx context.Context, convID string) {
	a.mu.Lock()
	e := a.privates[convID]
	if e == nil || e.counterpart == "" {
		a.mu.Unlock()
		return
	}
	counterpart := e.counterpart
	a.mu.Unlock()

	q := store.Query{
		Path:    UserCollection,
		Filters: []store.Filter{{Path: "email", Op: store.OpEqual, Value: counterpart}},
	}
	cancel, err := a.store.Subscribe(ctx, q, func(_ context.Context, docs []store.Document) {
		if len(docs) == 0 {
			return
		}
		name, _ := docs[0].Data["name"].(string)
		if name == "" {
			name = UnnamedUserPlaceholder
		}
		a.mu.Lock()
		if a.closed {
			a.mu.Unlock()
			return
		}
		a.names[counterpart] = name
		a.mu.Unlock()
		a.notify()
	})
	if err != nil {
		return
	}

	a.mu.Lock()
	e = a.privates[convID]
	if e == nil || a.closed {
		a.mu.Unlock()
		cancel()
		return
	}
	e.cancelName = cancel
	a.mu.Unlock()
}

func (a *Aggregator) entry(convID string) *convEntry {
	if e, ok := a.groups[convID]; ok {
		return e
	}
	return a.privates[convID]
}

// Snapshot returns the merged, display-ready list: the broadcast
// pseudo-conversation first, then every private and group conversation
// ordered by last-message time, newest first. Conversations whose
// latest message is still unresolved or absent sort last, ties broken
// by ID so the order is stable.
func (a *Aggregator) Snapshot() []Conversation {
	a.mu.Lock()
	defer a.mu.Unlock()

	var out []Conversation
	if a.broadcast != nil {
		preview := a.broadcast.Title
		if preview == "" {
			preview = a.broadcast.Text
		}
		out = append(out, Conversation{
			ID:   a.broadcast.ID,
			Kind: KindBroadcast,
			Name: botConversationName,
			LastMessage: &LastMessage{
				SenderName: a.broadcast.Sender.Name,
				Text:       a.broadcast.Text,
				SentAt:     a.broadcast.CreatedAt,
			},
			Preview: preview,
		})
	}

	var rest []Conversation
	for id, e := range a.privates {
		name := NameLoadingPlaceholder
		if n, ok := a.names[e.counterpart]; ok {
			name = n
		}
		rest = append(rest, a.row(id, KindPrivate, name, e))
	}
	for id, e := range a.groups {
		rest = append(rest, a.row(id, KindGroup, e.name, e))
	}

	sort.Slice(rest, func(i, j int) bool {
		ti, tj := rowTime(rest[i]), rowTime(rest[j])
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return rest[i].ID < rest[j].ID
	})
	return append(out, rest...)
}

func (a *Aggregator) row(id string, kind Kind, name string, e *convEntry) Conversation {
	conv := Conversation{
		ID:           id,
		Kind:         kind,
		Name:         name,
		Participants: e.participants,
		Preview:      NameLoadingPlaceholder,
	}
	st, ok := a.last[id]
	if !ok || !st.resolved {
		return conv
	}
	if st.msg == nil {
		conv.Preview = NoMessagesPlaceholder
		return conv
	}
	conv.LastMessage = st.msg
	conv.Preview = st.msg.Text
	return conv
}

func rowTime(c Conversation) time.Time {
	if c.LastMessage == nil {
		return time.Time{}
	}
	return c.LastMessage.SentAt
}

func counterpartOf(participants []string, self string) string {
	for _, p := range participants {
		if p != self {
			return p
		}
	}
	return ""
}

func stringSlice(v any) []string {
	arr, _ := v.([]any)
	out := make([]string, 0, len(arr))
	for _, el := range arr {
		if s, ok := el.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func decodeMessage(doc store.Document) Message {
	msg := Message{ID: doc.ID}
	msg.Text, _ = doc.Data["text"].(string)
	msg.Image, _ = doc.Data["image"].(string)
	msg.Title, _ = doc.Data["title"].(string)
	msg.Description, _ = doc.Data["description"].(string)
	msg.Tier, _ = doc.Data["tier"].(string)
	switch score := doc.Data["score"].(type) {
	case float64:
		msg.Score = score
	case int:
		msg.Score = float64(score)
	case int64:
		msg.Score = float64(score)
	}
	if createdAt, ok := doc.Data["createdAt"].(time.Time); ok {
		msg.CreatedAt = createdAt
	}
	if user, ok := doc.Data["user"].(map[string]any); ok {
		msg.Sender.ID = user["_id"]
		msg.Sender.Name, _ = user["name"].(string)
		msg.Sender.Avatar, _ = user["avatar"].(string)
	}
	return msg
}
