package store

import (
	"sync"

	"github.com/hushwire/hushwire"
)

// Memory is an in-memory store for ephemeral sessions. It implements the
// same interfaces as SQLite but keeps nothing across restarts.
type Memory struct {
	mu            sync.Mutex
	messages      map[string]*hushwire.Message
	groups        map[string]*hushwire.Group
	contacts      map[string]*hushwire.ContactRequest
	notifications map[string]*hushwire.SystemNotification
	pending       *hushwire.ForceUpdate
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		messages:      make(map[string]*hushwire.Message),
		groups:        make(map[string]*hushwire.Group),
		contacts:      make(map[string]*hushwire.ContactRequest),
		notifications: make(map[string]*hushwire.SystemNotification),
	}
}

func (m *Memory) Insert(msg *hushwire.Message) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.messages[msg.ID]; exists {
		return false, nil
	}
	copied := *msg
	m.messages[msg.ID] = &copied
	return true, nil
}

func (m *Memory) GetByID(id string) (*hushwire.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[id]
	if !ok {
		return nil, hushwire.ErrNotFound
	}
	copied := *msg
	return &copied, nil
}

func (m *Memory) UpdateStatus(id string, status hushwire.MessageStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if msg, ok := m.messages[id]; ok {
		msg.Status = status
	}
	return nil
}

// Groups adapts the store to hushwire.GroupStore.
func (m *Memory) Groups() hushwire.GroupStore {
	return memGroupView{m}
}

type memGroupView struct{ m *Memory }

func (v memGroupView) GetByID(groupID string) (*hushwire.Group, error) {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	g, ok := v.m.groups[groupID]
	if !ok {
		return nil, hushwire.ErrNotFound
	}
	copied := *g
	return &copied, nil
}

func (v memGroupView) IncrementUnread(groupID string, n int) error {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	g, ok := v.m.groups[groupID]
	if !ok {
		g = &hushwire.Group{ID: groupID}
		v.m.groups[groupID] = g
	}
	g.UnreadCount += n
	return nil
}

func (m *Memory) SaveContactRequest(req *hushwire.ContactRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *req
	m.contacts[req.Username] = &copied
	return nil
}

func (m *Memory) SaveSystemNotification(n *hushwire.SystemNotification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.notifications[n.ID]; exists {
		return nil
	}
	copied := *n
	m.notifications[n.ID] = &copied
	return nil
}

func (m *Memory) SavePendingUpdate(u *hushwire.ForceUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *u
	m.pending = &copied
	return nil
}

// PendingUpdate returns the stored forced update, or hushwire.ErrNotFound.
func (m *Memory) PendingUpdate() (*hushwire.ForceUpdate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending == nil {
		return nil, hushwire.ErrNotFound
	}
	copied := *m.pending
	return &copied, nil
}
