package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	provisioner "github.com/getpup/tenant-provisioner"
	"github.com/getpup/tenant-provisioner/store"
)

// Store is an in-memory implementation of WorkItemStore for testing and
// dry runs. Writes are staged until SaveChanges.
type Store struct {
	mu        sync.RWMutex
	workItems map[int64]provisioner.WorkItem
	projects  map[int64]provisioner.Project
	pending   []func()
	saves     int
}

// New creates a new in-memory store with initialized maps.
func New() *Store {
	return &Store{
		workItems: make(map[int64]provisioner.WorkItem),
		projects:  make(map[int64]provisioner.Project),
	}
}

// PutWorkItem inserts or replaces a committed work item.
func (s *Store) PutWorkItem(item provisioner.WorkItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workItems[item.ID] = cloneItem(item)
}

// PutProject inserts or replaces a committed project.
func (s *Store) PutProject(project provisioner.Project) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.projects[project.ID] = project
}

// WorkItem returns the committed state of a work item.
func (s *Store) WorkItem(id int64) (provisioner.WorkItem, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.workItems[id]
	return cloneItem(item), ok
}

// Project returns the committed state of a project.
func (s *Store) Project(id int64) (provisioner.Project, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[id]
	return p, ok
}

// Saves returns how many times SaveChanges committed.
func (s *Store) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}

// ListWorkItems returns committed items matching filter ordered by ID.
func (s *Store) ListWorkItems(ctx context.Context, filter provisioner.WorkItemFilter) ([]provisioner.WorkItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]provisioner.WorkItem, 0)
	for _, item := range s.workItems {
		if filter.Matches(item) {
			items = append(items, cloneItem(item))
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })

	return items, nil
}

// UpdateWorkItem stages a status write.
// Returns store.ErrWorkItemNotFound if the item does not exist.
func (s *Store) UpdateWorkItem(ctx context.Context, item provisioner.WorkItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.workItems[item.ID]; !ok {
		return store.ErrWorkItemNotFound
	}

	updatedAt := item.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}
	status, message := item.Status, cloneString(item.ErrorMessage)
	s.pending = append(s.pending, func() {
		current := s.workItems[item.ID]
		current.Status = status
		current.ErrorMessage = message
		current.UpdatedAt = updatedAt
		s.workItems[item.ID] = current
	})

	return nil
}

// UpdateProjectStatus stages a project status write.
// Returns store.ErrProjectNotFound if the project does not exist.
func (s *Store) UpdateProjectStatus(ctx context.Context, projectID int64, status provisioner.Status, errorMessage *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.projects[projectID]; !ok {
		return store.ErrProjectNotFound
	}

	message := cloneString(errorMessage)
	modifiedAt := time.Now()
	s.pending = append(s.pending, func() {
		current := s.projects[projectID]
		current.Status = status
		current.ErrorMessage = message
		current.ModifiedAt = modifiedAt
		s.projects[projectID] = current
	})

	return nil
}

// SaveChanges applies every staged write in order.
func (s *Store) SaveChanges(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, apply := range s.pending {
		apply()
	}
	s.pending = nil
	s.saves++

	return nil
}

// DiscardChanges drops every staged write.
func (s *Store) DiscardChanges(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending = nil
	return nil
}

func cloneItem(item provisioner.WorkItem) provisioner.WorkItem {
	item.ErrorMessage = cloneString(item.ErrorMessage)
	if item.ProjectID != nil {
		id := *item.ProjectID
		item.ProjectID = &id
	}
	return item
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

var _ store.WorkItemStore = (*Store)(nil)
