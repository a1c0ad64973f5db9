package store

import (
	"context"
	"sync"

	provisioner "github.com/getpup/tenant-provisioner"
)

// MockWorkItemStore is a configurable mock implementation of WorkItemStore
// for use in tests. It allows setting up expected return values, tracking
// method calls, and injecting errors for testing error paths.
type MockWorkItemStore struct {
	mu sync.RWMutex

	// ListWorkItemsFunc is called by ListWorkItems if set.
	ListWorkItemsFunc func(ctx context.Context, filter provisioner.WorkItemFilter) ([]provisioner.WorkItem, error)

	// UpdateWorkItemFunc is called by UpdateWorkItem if set.
	UpdateWorkItemFunc func(ctx context.Context, item provisioner.WorkItem) error

	// UpdateProjectStatusFunc is called by UpdateProjectStatus if set.
	UpdateProjectStatusFunc func(ctx context.Context, projectID int64, status provisioner.Status, errorMessage *string) error

	// SaveChangesFunc is called by SaveChanges if set.
	SaveChangesFunc func(ctx context.Context) error

	// DiscardChangesFunc is called by DiscardChanges if set.
	DiscardChangesFunc func(ctx context.Context) error

	// Call tracking
	ListWorkItemsCalls       []provisioner.WorkItemFilter
	UpdateWorkItemCalls      []provisioner.WorkItem
	UpdateProjectStatusCalls []UpdateProjectStatusCall
	SaveChangesCalls         int
	DiscardChangesCalls      int
}

// UpdateProjectStatusCall records the parameters of a single call.
type UpdateProjectStatusCall struct {
	ProjectID    int64
	Status       provisioner.Status
	ErrorMessage *string
}

// NewMockWorkItemStore creates a new mock store with an empty call history.
func NewMockWorkItemStore() *MockWorkItemStore {
	return &MockWorkItemStore{
		ListWorkItemsCalls:       make([]provisioner.WorkItemFilter, 0),
		UpdateWorkItemCalls:      make([]provisioner.WorkItem, 0),
		UpdateProjectStatusCalls: make([]UpdateProjectStatusCall, 0),
	}
}

// ListWorkItems implements WorkItemStore.
func (m *MockWorkItemStore) ListWorkItems(ctx context.Context, filter provisioner.WorkItemFilter) ([]provisioner.WorkItem, error) {
	m.mu.Lock()
	m.ListWorkItemsCalls = append(m.ListWorkItemsCalls, filter)
	m.mu.Unlock()

	if m.ListWorkItemsFunc != nil {
		return m.ListWorkItemsFunc(ctx, filter)
	}
	return []provisioner.WorkItem{}, nil
}

// UpdateWorkItem implements WorkItemStore.
func (m *MockWorkItemStore) UpdateWorkItem(ctx context.Context, item provisioner.WorkItem) error {
	m.mu.Lock()
	m.UpdateWorkItemCalls = append(m.UpdateWorkItemCalls, item)
	m.mu.Unlock()

	if m.UpdateWorkItemFunc != nil {
		return m.UpdateWorkItemFunc(ctx, item)
	}
	return nil
}

// UpdateProjectStatus implements WorkItemStore.
func (m *MockWorkItemStore) UpdateProjectStatus(ctx context.Context, projectID int64, status provisioner.Status, errorMessage *string) error {
	m.mu.Lock()
	m.UpdateProjectStatusCalls = append(m.UpdateProjectStatusCalls, UpdateProjectStatusCall{
		ProjectID:    projectID,
		Status:       status,
		ErrorMessage: errorMessage,
	})
	m.mu.Unlock()

	if m.UpdateProjectStatusFunc != nil {
		return m.UpdateProjectStatusFunc(ctx, projectID, status, errorMessage)
	}
	return nil
}

// SaveChanges implements WorkItemStore.
func (m *MockWorkItemStore) SaveChanges(ctx context.Context) error {
	m.mu.Lock()
	m.SaveChangesCalls++
	m.mu.Unlock()

	if m.SaveChangesFunc != nil {
		return m.SaveChangesFunc(ctx)
	}
	return nil
}

// DiscardChanges implements WorkItemStore.
func (m *MockWorkItemStore) DiscardChanges(ctx context.Context) error {
	m.mu.Lock()
	m.DiscardChangesCalls++
	m.mu.Unlock()

	if m.DiscardChangesFunc != nil {
		return m.DiscardChangesFunc(ctx)
	}
	return nil
}

// Reset clears all call tracking.
func (m *MockWorkItemStore) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ListWorkItemsCalls = make([]provisioner.WorkItemFilter, 0)
	m.UpdateWorkItemCalls = make([]provisioner.WorkItem, 0)
	m.UpdateProjectStatusCalls = make([]UpdateProjectStatusCall, 0)
	m.SaveChangesCalls = 0
	m.DiscardChangesCalls = 0
}

var _ WorkItemStore = (*MockWorkItemStore)(nil)
