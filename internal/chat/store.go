package chat

import (
	"slices"
	"strings"
	"sync"
)

// Store is the ordered, de-duplicated message list of one channel. It is
// created empty for a session and discarded with it.
type Store struct {
	channel ChannelID

	mu       sync.RWMutex
	messages []Message
	// accepted records the revision at which a message entered the store
	// through a local write or a reconcile.
	accepted   map[int64]uint64
	revision   uint64
	version    uint64
	nextTempID int64

	changes chan struct{}
}

// NewStore creates an empty store bound to a channel. Messages tagged with a
// different channel are never accepted.
func NewStore(channel ChannelID) *Store {
	return &Store{
		channel:    channel,
		accepted:   make(map[int64]uint64),
		nextTempID: -1,
		changes:    make(chan struct{}, 1),
	}
}

// Channel returns the channel the store belongs to.
func (s *Store) Channel() ChannelID {
	return s.channel
}

// Messages returns a copy of the current contents in display order.
func (s *Store) Messages() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.messages)
}

// Len returns the number of stored messages.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// Get returns the message with the given id.
func (s *Store) Get(id int64) (Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.indexOf(id); i >= 0 {
		return s.messages[i], true
	}
	return Message{}, false
}

// Version increments only when the visible contents change.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Revision is the write counter to pass to Reconcile for a fetch issued now.
func (s *Store) Revision() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.revision
}

// Changes signals after every visible change. Signals coalesce: a slow
// reader sees one pending signal, not one per change.
func (s *Store) Changes() <-chan struct{} {
	return s.changes
}

// Reconcile merges a full server snapshot fetched when the store was at
// revision issuedAt. It reports whether the visible contents changed.
//
// Pending local messages missing from the snapshot are kept unless the
// snapshot already carries their server copy, matched by ClientRef. Confirmed
// local messages missing from the snapshot are dropped unless they were
// accepted after the fetch was issued or sort before the snapshot's first
// message.
func (s *Store) Reconcile(snapshot []Message, issuedAt uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	server := make([]Message, 0, len(snapshot))
	serverIDs := make(map[int64]struct{}, len(snapshot))
	serverRefs := make(map[string]struct{})
	for _, m := range snapshot {
		if !s.accepts(m) {
			continue
		}
		if _, dup := serverIDs[m.ID]; dup {
			continue
		}
		m.State = DeliveryConfirmed
		m.Channel = s.channel
		serverIDs[m.ID] = struct{}{}
		if m.ClientRef != "" {
			serverRefs[m.ClientRef] = struct{}{}
		}
		server = append(server, m)
	}

	if s.sameIDSet(serverIDs) {
		return false
	}

	slices.SortFunc(server, compareMessages)

	s.revision++
	merged := server
	for _, local := range s.messages {
		if _, ok := serverIDs[local.ID]; ok {
			continue
		}
		if local.Pending() {
			if _, sent := serverRefs[local.ClientRef]; sent && local.ClientRef != "" {
				delete(s.accepted, local.ID)
				continue
			}
			merged = append(merged, local)
			continue
		}
		if s.retain(local, server, issuedAt) {
			merged = append(merged, local)
		}
	}
	slices.SortFunc(merged, compareMessages)

	accepted := make(map[int64]uint64, len(merged))
	for _, m := range merged {
		if rev, ok := s.accepted[m.ID]; ok {
			accepted[m.ID] = rev
		} else {
			accepted[m.ID] = s.revision
		}
	}
	s.accepted = accepted

	return s.replace(merged)
}

// AppendProvisional inserts a locally created message under a fresh
// temporary id and returns the stored copy.
func (s *Store) AppendProvisional(m Message) Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	m.ID = s.nextTempID
	s.nextTempID--
	m.State = DeliveryPending
	m.Channel = s.channel

	s.revision++
	s.accepted[m.ID] = s.revision
	merged := append(slices.Clone(s.messages), m)
	slices.SortFunc(merged, compareMessages)
	s.replace(merged)
	return m
}

// Confirm replaces the provisional message tempID with the server's copy.
// If the server's message is already present it is updated instead of
// duplicated. An unusable server copy drops the provisional message.
func (s *Store) Confirm(tempID int64, confirmed Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.accepts(confirmed) {
		if i := s.indexOf(tempID); i >= 0 && s.messages[i].Provisional() {
			s.revision++
			delete(s.accepted, tempID)
			s.replace(slices.Delete(slices.Clone(s.messages), i, i+1))
		}
		return false
	}

	merged := make([]Message, 0, len(s.messages)+1)
	for _, m := range s.messages {
		if m.ID == tempID {
			if confirmed.ClientRef == "" {
				confirmed.ClientRef = m.ClientRef
			}
			continue
		}
		merged = append(merged, m)
	}
	delete(s.accepted, tempID)
	return s.upsertLocked(merged, confirmed)
}

// Upsert inserts or updates a confirmed message by id.
func (s *Store) Upsert(m Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.accepts(m) {
		return false
	}
	return s.upsertLocked(slices.Clone(s.messages), m)
}

// Discard removes a provisional message. Confirmed messages are never
// removed this way.
func (s *Store) Discard(tempID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(tempID)
	if i < 0 || !s.messages[i].Provisional() {
		return false
	}
	s.revision++
	delete(s.accepted, tempID)
	return s.replace(slices.Delete(slices.Clone(s.messages), i, i+1))
}

func (s *Store) upsertLocked(base []Message, m Message) bool {
	m.State = DeliveryConfirmed
	m.Channel = s.channel

	s.revision++
	s.accepted[m.ID] = s.revision

	replaced := false
	for i := range base {
		if base[i].ID == m.ID {
			base[i] = m
			replaced = true
			break
		}
	}
	if !replaced {
		base = append(base, m)
	}
	slices.SortFunc(base, compareMessages)
	return s.replace(base)
}

// replace swaps the contents when they differ and signals observers.
func (s *Store) replace(next []Message) bool {
	if slices.EqualFunc(s.messages, next, sameMessage) {
		return false
	}
	s.messages = next
	s.version++
	select {
	case s.changes <- struct{}{}:
	default:
	}
	return true
}

func (s *Store) sameIDSet(serverIDs map[int64]struct{}) bool {
	if len(serverIDs) != len(s.messages) {
		return false
	}
	for _, m := range s.messages {
		if m.Pending() {
			return false
		}
		if _, ok := serverIDs[m.ID]; !ok {
			return false
		}
	}
	return true
}

// retain decides whether a confirmed local message absent from a snapshot
// survives the merge.
func (s *Store) retain(local Message, server []Message, issuedAt uint64) bool {
	if local.Provisional() {
		return false
	}
	if s.accepted[local.ID] > issuedAt {
		return true
	}
	return len(server) > 0 && less(local, server[0])
}

func (s *Store) accepts(m Message) bool {
	if m.ID <= 0 || strings.TrimSpace(m.Content) == "" {
		return false
	}
	if m.Channel != (ChannelID{}) && m.Channel != s.channel {
		return false
	}
	return true
}

func (s *Store) indexOf(id int64) int {
	for i := range s.messages {
		if s.messages[i].ID == id {
			return i
		}
	}
	return -1
}

func compareMessages(a, b Message) int {
	switch {
	case less(a, b):
		return -1
	case less(b, a):
		return 1
	default:
		return 0
	}
}
