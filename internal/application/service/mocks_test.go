package service

import (
	"context"
	"sort"
	"sync"

	"github.com/garyjia/barangay-docflow/internal/application/dispatcher"
	"github.com/garyjia/barangay-docflow/internal/application/port"
	"github.com/garyjia/barangay-docflow/internal/domain/entity"
	"github.com/garyjia/barangay-docflow/internal/domain/event"
	domainwf "github.com/garyjia/barangay-docflow/internal/domain/workflow"
)

// mockDefinitionStore keeps definitions in memory; func fields override behaviour
type mockDefinitionStore struct {
	mu      sync.Mutex
	defs    map[string]*entity.WorkflowDefinition
	puts    int
	mirrors int

	getFunc  func(ctx context.Context, documentTypeID string) (*entity.WorkflowDefinition, error)
	putFunc  func(ctx context.Context, def *entity.WorkflowDefinition, expectedVersion int64) error
	listFunc func(ctx context.Context) ([]string, error)
}

func newMockDefinitionStore() *mockDefinitionStore {
	return &mockDefinitionStore{defs: make(map[string]*entity.WorkflowDefinition)}
}

func (m *mockDefinitionStore) Get(ctx context.Context, documentTypeID string) (*entity.WorkflowDefinition, error) {
	if m.getFunc != nil {
		return m.getFunc(ctx, documentTypeID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if def, ok := m.defs[documentTypeID]; ok {
		return def.Clone(), nil
	}
	return entity.NewDefaultDefinition(documentTypeID), nil
}

func (m *mockDefinitionStore) Put(ctx context.Context, def *entity.WorkflowDefinition, expectedVersion int64) error {
	if m.putFunc != nil {
		return m.putFunc(ctx, def, expectedVersion)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var current int64
	if stored, ok := m.defs[def.DocumentTypeID]; ok {
		current = stored.Version
	}
	if current != expectedVersion {
		return domainwf.ErrConflict
	}
	def.Version = expectedVersion + 1
	m.defs[def.DocumentTypeID] = def.Clone()
	m.puts++
	return nil
}

func (m *mockDefinitionStore) List(ctx context.Context) ([]string, error) {
	if m.listFunc != nil {
		return m.listFunc(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.defs))
	for id := range m.defs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *mockDefinitionStore) Mirror(ctx context.Context, def *entity.WorkflowDefinition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defs[def.DocumentTypeID] = def.Clone()
	m.mirrors++
	return nil
}

func (m *mockDefinitionStore) stored(documentTypeID string) *entity.WorkflowDefinition {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.defs[documentTypeID]
}

type mockDirectory struct {
	users       map[string]*entity.User
	getUserFunc func(ctx context.Context, id string) (*entity.User, error)
}

func newMockDirectory(ids ...string) *mockDirectory {
	users := make(map[string]*entity.User, len(ids))
	for _, id := range ids {
		users[id] = &entity.User{ID: id, DisplayName: "User " + id, Role: entity.RoleStaff}
	}
	return &mockDirectory{users: users}
}

func (m *mockDirectory) GetUser(ctx context.Context, id string) (*entity.User, error) {
	if m.getUserFunc != nil {
		return m.getUserFunc(ctx, id)
	}
	return m.users[id], nil
}

type mockAssignmentRepo struct {
	mu      sync.Mutex
	rows    map[string]*entity.ApproverAssignment
	inserts int
	deletes int

	insertFunc func(ctx context.Context, a *entity.ApproverAssignment) error
	listFunc   func(ctx context.Context, documentTypeID string) ([]*entity.ApproverAssignment, error)
}

func newMockAssignmentRepo() *mockAssignmentRepo {
	return &mockAssignmentRepo{rows: make(map[string]*entity.ApproverAssignment)}
}

func (m *mockAssignmentRepo) ListByDocumentType(ctx context.Context, documentTypeID string) ([]*entity.ApproverAssignment, error) {
	if m.listFunc != nil {
		return m.listFunc(ctx, documentTypeID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.ApproverAssignment
	for _, a := range m.rows {
		if a.DocumentTypeID == documentTypeID {
			c := *a
			out = append(out, &c)
		}
	}
	return out, nil
}

func (m *mockAssignmentRepo) ListByApprover(ctx context.Context, approverID string) ([]*entity.ApproverAssignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.ApproverAssignment
	for _, a := range m.rows {
		if a.ApproverID == approverID {
			c := *a
			out = append(out, &c)
		}
	}
	return out, nil
}

func (m *mockAssignmentRepo) Insert(ctx context.Context, a *entity.ApproverAssignment) error {
	if m.insertFunc != nil {
		if err := m.insertFunc(ctx, a); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *a
	m.rows[a.Key()] = &c
	m.inserts++
	return nil
}

func (m *mockAssignmentRepo) Delete(ctx context.Context, documentTypeID, stepID, approverID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, entity.ApproverAssignment{DocumentTypeID: documentTypeID, StepID: stepID, ApproverID: approverID}.Key())
	m.deletes++
	return nil
}

func (m *mockAssignmentRepo) Count(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows), nil
}

type mockRequestRepo struct {
	mu       sync.Mutex
	requests map[string]*entity.DocumentRequest

	updateFunc func(ctx context.Context, req *entity.DocumentRequest, expectedVersion int64, appended []entity.HistoryEntry) error
}

func newMockRequestRepo() *mockRequestRepo {
	return &mockRequestRepo{requests: make(map[string]*entity.DocumentRequest)}
}

func (m *mockRequestRepo) Create(ctx context.Context, req *entity.DocumentRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests[req.ID] = req.Clone()
	return nil
}

func (m *mockRequestRepo) GetByID(ctx context.Context, id string) (*entity.DocumentRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if req, ok := m.requests[id]; ok {
		return req.Clone(), nil
	}
	return nil, nil
}

func (m *mockRequestRepo) List(ctx context.Context, filter port.RequestFilter) ([]*entity.DocumentRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.DocumentRequest
	for _, req := range m.requests {
		if filter.DocumentTypeID == "" || req.DocumentTypeID == filter.DocumentTypeID {
			out = append(out, req.Clone())
		}
	}
	return out, nil
}

func (m *mockRequestRepo) Update(ctx context.Context, req *entity.DocumentRequest, expectedVersion int64, appended []entity.HistoryEntry) error {
	if m.updateFunc != nil {
		return m.updateFunc(ctx, req, expectedVersion, appended)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.requests[req.ID]
	if !ok || stored.Version != expectedVersion {
		return domainwf.ErrConflict
	}
	next := req.Clone()
	next.Version = expectedVersion + 1
	req.Version = next.Version
	m.requests[req.ID] = next
	return nil
}

type mockNotificationLog struct {
	mu           sync.Mutex
	seen         map[string]bool
	markSentFunc func(ctx context.Context, key string) (bool, error)
}

func (m *mockNotificationLog) MarkSent(ctx context.Context, key string) (bool, error) {
	if m.markSentFunc != nil {
		return m.markSentFunc(ctx, key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seen == nil {
		m.seen = make(map[string]bool)
	}
	if m.seen[key] {
		return false, nil
	}
	m.seen[key] = true
	return true, nil
}

type notifyCall struct {
	recipients  []string
	templateKey string
	data        map[string]string
}

type mockNotifier struct {
	mu         sync.Mutex
	calls      []notifyCall
	notifyFunc func(ctx context.Context, recipientIDs []string, templateKey string, data map[string]string) error
}

func (m *mockNotifier) Notify(ctx context.Context, recipientIDs []string, templateKey string, data map[string]string) error {
	m.mu.Lock()
	m.calls = append(m.calls, notifyCall{recipients: recipientIDs, templateKey: templateKey, data: data})
	m.mu.Unlock()
	if m.notifyFunc != nil {
		return m.notifyFunc(ctx, recipientIDs, templateKey, data)
	}
	return nil
}

type mockTxManager struct {
	withTransactionFunc func(ctx context.Context, fn func(ctx context.Context) error) error
}

func (m *mockTxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if m.withTransactionFunc != nil {
		return m.withTransactionFunc(ctx, fn)
	}
	return fn(ctx)
}

// recordingDispatcher captures async events instead of running handlers
type recordingDispatcher struct {
	dispatcher.Dispatcher

	mu     sync.Mutex
	events []*event.Event
}

func (d *recordingDispatcher) DispatchAsync(ctx context.Context, evt *event.Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, evt)
}

func (d *recordingDispatcher) ofType(t event.Type) []*event.Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []*event.Event
	for _, e := range d.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type mockLogger struct{}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{})  {}
func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {}
