package hushwire

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hushwire/hushwire/auth"
)

// memMessageStore is an in-memory MessageStore with the idempotent Insert
// contract the dispatcher relies on.
type memMessageStore struct {
	mu        sync.Mutex
	messages  map[string]*Message
	inserts   int
	updates   []statusUpdate
	updateErr error // injected UpdateStatus failure
}

type statusUpdate struct {
	id     string
	status MessageStatus
}

func newMemMessageStore() *memMessageStore {
	return &memMessageStore{messages: make(map[string]*Message)}
}

func (s *memMessageStore) Insert(msg *Message) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.messages[msg.ID]; exists {
		return false, nil
	}
	copied := *msg
	s.messages[msg.ID] = &copied
	s.inserts++
	return true, nil
}

func (s *memMessageStore) GetByID(id string) (*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.messages[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *msg
	return &copied, nil
}

func (s *memMessageStore) UpdateStatus(id string, status MessageStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return s.updateErr
	}
	s.updates = append(s.updates, statusUpdate{id: id, status: status})
	if msg, ok := s.messages[id]; ok {
		msg.Status = status
	}
	return nil
}

func mustInsert(t *testing.T, s *memMessageStore, msg *Message) {
	t.Helper()
	_, err := s.Insert(msg)
	require.NoError(t, err)
}

func (s *memMessageStore) insertCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inserts
}

func (s *memMessageStore) lastUpdate() (statusUpdate, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.updates) == 0 {
		return statusUpdate{}, false
	}
	return s.updates[len(s.updates)-1], true
}

type memGroupStore struct {
	mu     sync.Mutex
	unread map[string]int
}

func newMemGroupStore() *memGroupStore {
	return &memGroupStore{unread: make(map[string]int)}
}

func (s *memGroupStore) GetByID(groupID string) (*Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.unread[groupID]
	if !ok {
		return nil, ErrNotFound
	}
	return &Group{ID: groupID, UnreadCount: n}, nil
}

func (s *memGroupStore) IncrementUnread(groupID string, n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unread[groupID] += n
	return nil
}

func (s *memGroupStore) unreadFor(groupID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unread[groupID]
}

type memEventStore struct {
	mu            sync.Mutex
	contacts      []*ContactRequest
	notifications []*SystemNotification
	updates       []*ForceUpdate
}

func (s *memEventStore) SaveContactRequest(req *ContactRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contacts = append(s.contacts, req)
	return nil
}

func (s *memEventStore) SaveSystemNotification(n *SystemNotification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications = append(s.notifications, n)
	return nil
}

func (s *memEventStore) SavePendingUpdate(u *ForceUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, u)
	return nil
}

// recordingNotifier captures notification calls.
type recordingNotifier struct {
	mu            sync.Mutex
	system        []*SystemNotification
	groupMessages []string
	forceUpdates  []string
}

func (n *recordingNotifier) ShowSystemNotification(s *SystemNotification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.system = append(n.system, s)
}

func (n *recordingNotifier) ShowGroupMessageNotification(groupID, sender, content string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.groupMessages = append(n.groupMessages, groupID)
}

func (n *recordingNotifier) ShowForceUpdateDialog(version, message, url string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.forceUpdates = append(n.forceUpdates, version)
}

func (n *recordingNotifier) groupNotificationCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.groupMessages)
}

// mapResolver resolves usernames from a fixed table.
type mapResolver map[string]int64

func (r mapResolver) Resolve(username string) (int64, bool) {
	id, ok := r[username]
	return id, ok
}

// testHarness bundles a client with its fake collaborators.
type testHarness struct {
	client   *Client
	messages *memMessageStore
	groups   *memGroupStore
	events   *memEventStore
	notifier *recordingNotifier
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()

	h := &testHarness{
		messages: newMemMessageStore(),
		groups:   newMemGroupStore(),
		events:   &memEventStore{},
		notifier: &recordingNotifier{},
	}

	opts := NewOptions()
	opts.Endpoint = "wss://chat.example.com/ws"
	opts.Username = "alice"
	opts.UserID = 7
	opts.Tokens = auth.NewStaticTokenSource("test-token", nil)
	opts.Resolver = mapResolver{"bob": 42}
	opts.Messages = h.messages
	opts.Groups = h.groups
	opts.Events = h.events
	opts.Notifier = h.notifier

	client, err := NewClient(opts)
	require.NoError(t, err)
	h.client = client
	return h
}
