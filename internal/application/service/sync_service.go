package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/garyjia/barangay-docflow/internal/application/dispatcher"
	"github.com/garyjia/barangay-docflow/internal/application/port"
	"github.com/garyjia/barangay-docflow/internal/domain/assignment"
	"github.com/garyjia/barangay-docflow/internal/domain/entity"
	"github.com/garyjia/barangay-docflow/internal/domain/event"
	domainwf "github.com/garyjia/barangay-docflow/internal/domain/workflow"
	"github.com/garyjia/barangay-docflow/internal/metrics"
)

// Sync triggers recorded in metrics
const (
	SyncTriggerManual   = "manual"
	SyncTriggerChange   = "change"
	SyncTriggerSchedule = "schedule"
)

// SyncReport summarizes one reconciliation run
type SyncReport struct {
	UpdatedStepCount int                `json:"updatedStepCount"`
	AssignmentCount  int                `json:"assignmentCount"`
	Warnings         []string           `json:"warnings"`
	DocumentTypes    []DocumentTypeSync `json:"documentTypes"`
	StartedAt        time.Time          `json:"startedAt"`
	FinishedAt       time.Time          `json:"finishedAt"`
}

// DocumentTypeSync is the per document type part of a SyncReport
type DocumentTypeSync struct {
	DocumentTypeID  string   `json:"documentTypeId"`
	Created         int      `json:"created"`
	Removed         int      `json:"removed"`
	AssignmentCount int      `json:"assignmentCount"`
	UpdatedSteps    int      `json:"updatedSteps"`
	CacheRefreshed  bool     `json:"cacheRefreshed"`
	Warnings        []string `json:"warnings"`
	Error           string   `json:"error,omitempty"`
}

// SyncService reconciles materialized approver assignments and the fallback
// cache with the authoritative definitions
type SyncService interface {
	// SyncAssignments reconciles every known document type. One type's failure never aborts the others.
	SyncAssignments(ctx context.Context, trigger string) (*SyncReport, error)

	// SyncDocumentType reconciles a single document type
	SyncDocumentType(ctx context.Context, documentTypeID string) (*DocumentTypeSync, error)

	// DocumentTypes lists stored document types merged with the configured ones
	DocumentTypes(ctx context.Context) ([]string, error)

	// ApproverAssignments lists the durable assignment rows of one approver
	ApproverAssignments(ctx context.Context, approverID string) ([]*entity.ApproverAssignment, error)

	// HandleWorkflowChanged is the dispatcher handler for workflow.changed events
	HandleWorkflowChanged(ctx context.Context, evt *event.Event) error
}

type syncServiceImpl struct {
	durable     port.DefinitionStore
	cache       port.FallbackCache
	assignments port.AssignmentRepository
	table       *assignment.Table
	directory   port.UserDirectory
	txManager   port.TransactionManager
	dispatcher  dispatcher.Dispatcher
	knownTypes  []string
	logger      Logger
	now         func() time.Time

	// mu serializes sync runs
	mu sync.Mutex
}

// NewSyncService creates a new SyncService. cache and dispatcher may be nil.
func NewSyncService(
	durable port.DefinitionStore,
	cache port.FallbackCache,
	assignments port.AssignmentRepository,
	table *assignment.Table,
	directory port.UserDirectory,
	txManager port.TransactionManager,
	d dispatcher.Dispatcher,
	knownTypes []string,
	logger Logger,
) SyncService {
	return &syncServiceImpl{
		durable:     durable,
		cache:       cache,
		assignments: assignments,
		table:       table,
		directory:   directory,
		txManager:   txManager,
		dispatcher:  d,
		knownTypes:  append([]string{}, knownTypes...),
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// DocumentTypes lists stored document types merged with the configured ones
func (s *syncServiceImpl) DocumentTypes(ctx context.Context) ([]string, error) {
	seen := make(map[string]bool)
	for _, id := range s.knownTypes {
		seen[id] = true
	}

	stored, err := s.durable.List(ctx)
	for _, id := range stored {
		seen[id] = true
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	if err != nil {
		return ids, fmt.Errorf("list stored document types: %w", err)
	}
	return ids, nil
}

// SyncAssignments reconciles every known document type
func (s *syncServiceImpl) SyncAssignments(ctx context.Context, trigger string) (*SyncReport, error) {
	report := &SyncReport{
		Warnings:      []string{},
		DocumentTypes: []DocumentTypeSync{},
		StartedAt:     s.now(),
	}

	ids, err := s.DocumentTypes(ctx)
	if err != nil {
		s.logger.Error("Sync could not list stored document types", "error", err)
		report.Warnings = append(report.Warnings, err.Error())
	}

	changed := false
	s.mu.Lock()
	for _, id := range ids {
		result := s.syncOne(ctx, id)
		if result.Created > 0 || result.Removed > 0 || result.CacheRefreshed {
			changed = true
		}
		report.DocumentTypes = append(report.DocumentTypes, *result)
		report.UpdatedStepCount += result.UpdatedSteps
		report.AssignmentCount += result.AssignmentCount
		for _, w := range result.Warnings {
			report.Warnings = append(report.Warnings, id+": "+w)
		}
		if result.Error != "" {
			report.Warnings = append(report.Warnings, id+": "+result.Error)
		}
	}
	s.mu.Unlock()

	report.FinishedAt = s.now()
	metrics.RecordSync(trigger, report.AssignmentCount, nil)

	s.logger.Info("Assignment sync completed",
		"trigger", trigger,
		"document_types", len(report.DocumentTypes),
		"updated_steps", report.UpdatedStepCount,
		"assignment_count", report.AssignmentCount,
		"warnings", len(report.Warnings),
	)

	// a run that changed nothing publishes nothing
	if s.dispatcher != nil && changed {
		s.dispatcher.DispatchAsync(ctx, event.NewEvent(event.TypeSyncCompleted, "", "", map[string]interface{}{
			"trigger":          trigger,
			"updated_steps":    report.UpdatedStepCount,
			"assignment_count": report.AssignmentCount,
			"warnings":         len(report.Warnings),
		}))
	}

	return report, nil
}

// SyncDocumentType reconciles a single document type
func (s *syncServiceImpl) SyncDocumentType(ctx context.Context, documentTypeID string) (*DocumentTypeSync, error) {
	s.mu.Lock()
	result := s.syncOne(ctx, documentTypeID)
	s.mu.Unlock()

	if result.Error != "" {
		metrics.RecordSync(SyncTriggerChange, 0, fmt.Errorf("%s", result.Error))
		return result, fmt.Errorf("sync %s: %s", documentTypeID, result.Error)
	}
	metrics.RecordSync(SyncTriggerChange, s.table.Count(), nil)
	return result, nil
}

// ApproverAssignments lists the durable assignment rows of one approver, ordered by document type and step
func (s *syncServiceImpl) ApproverAssignments(ctx context.Context, approverID string) ([]*entity.ApproverAssignment, error) {
	if approverID == "" {
		return nil, domainwf.NewValidationError("approverId", domainwf.RuleRequired, "approver id is required")
	}
	rows, err := s.assignments.ListByApprover(ctx, approverID)
	if err != nil {
		return nil, fmt.Errorf("list assignments of %s: %w", approverID, err)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].DocumentTypeID != rows[j].DocumentTypeID {
			return rows[i].DocumentTypeID < rows[j].DocumentTypeID
		}
		return rows[i].StepID < rows[j].StepID
	})
	return rows, nil
}

// HandleWorkflowChanged is the dispatcher handler for workflow.changed events
func (s *syncServiceImpl) HandleWorkflowChanged(ctx context.Context, evt *event.Event) error {
	if evt.DocumentTypeID == "" {
		return fmt.Errorf("workflow.changed event %s has no document type", evt.ID)
	}
	_, err := s.SyncDocumentType(ctx, evt.DocumentTypeID)
	return err
}

// syncOne must be called with s.mu held
func (s *syncServiceImpl) syncOne(ctx context.Context, documentTypeID string) *DocumentTypeSync {
	result := &DocumentTypeSync{DocumentTypeID: documentTypeID, Warnings: []string{}}

	def, err := s.durable.Get(ctx, documentTypeID)
	if err != nil {
		result.Error = fmt.Sprintf("read definition: %v", err)
		s.logger.Error("Sync failed to read definition", "document_type_id", documentTypeID, "error", err)
		return result
	}

	desired := s.desiredRows(ctx, def, result)

	existing, err := s.assignments.ListByDocumentType(ctx, documentTypeID)
	if err != nil {
		result.Error = fmt.Sprintf("list assignments: %v", err)
		s.logger.Error("Sync failed to list assignments", "document_type_id", documentTypeID, "error", err)
		return result
	}

	toCreate, toRemove := diffAssignments(existing, desired)
	touched := make(map[string]bool)
	for _, a := range toCreate {
		touched[a.StepID] = true
	}
	for _, a := range toRemove {
		touched[a.StepID] = true
	}

	if len(toCreate) > 0 || len(toRemove) > 0 {
		syncedAt := s.now()
		err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
			for _, a := range toRemove {
				if err := s.assignments.Delete(txCtx, a.DocumentTypeID, a.StepID, a.ApproverID); err != nil {
					return err
				}
			}
			for i := range toCreate {
				toCreate[i].SyncedAt = syncedAt
				if err := s.assignments.Insert(txCtx, &toCreate[i]); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			result.Error = fmt.Sprintf("apply assignment changes: %v", err)
			s.logger.Error("Sync failed to apply assignment changes", "document_type_id", documentTypeID, "error", err)
			return result
		}
	}

	result.Created = len(toCreate)
	result.Removed = len(toRemove)
	result.UpdatedSteps = len(touched)
	result.AssignmentCount = len(desired)
	s.table.Replace(documentTypeID, desired)

	if refreshed, err := s.refreshCache(ctx, def); err != nil {
		result.Warnings = append(result.Warnings, fmt.Sprintf("fallback cache refresh failed: %v", err))
		s.logger.Error("Sync failed to refresh fallback cache", "document_type_id", documentTypeID, "error", err)
	} else {
		result.CacheRefreshed = refreshed
	}

	if result.Created > 0 || result.Removed > 0 {
		s.logger.Info("Assignments reconciled",
			"document_type_id", documentTypeID,
			"created", result.Created,
			"removed", result.Removed,
			"assignment_count", result.AssignmentCount,
		)
	}
	return result
}

// desiredRows derives assignment rows, dropping approvers unknown to the directory
func (s *syncServiceImpl) desiredRows(ctx context.Context, def *entity.WorkflowDefinition, result *DocumentTypeSync) []entity.ApproverAssignment {
	for _, step := range def.Steps {
		if !step.RequiresApproval && len(step.AssignedApprovers) > 0 {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("step %q does not require approval; its approvers are ignored", step.StatusKey))
		}
	}

	derived := assignment.Derive(def)
	desired := make([]entity.ApproverAssignment, 0, len(derived))
	for _, row := range derived {
		user, err := s.directory.GetUser(ctx, row.ApproverID)
		if err != nil {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("approver %q on step %q could not be verified: %v", row.ApproverID, row.StatusKey, err))
			continue
		}
		if user == nil {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("unknown approver %q on step %q skipped", row.ApproverID, row.StatusKey))
			continue
		}
		desired = append(desired, row)
	}
	return desired
}

// refreshCache re-mirrors a stored definition when the cached copy is missing or older.
// A cached copy at a newer version was mirrored by a write that committed after def was read.
func (s *syncServiceImpl) refreshCache(ctx context.Context, def *entity.WorkflowDefinition) (bool, error) {
	if s.cache == nil || def.IsDefault {
		return false, nil
	}
	cached, err := s.cache.Get(ctx, def.DocumentTypeID)
	if err == nil && !cached.IsDefault && cached.Version >= def.Version {
		return false, nil
	}
	if err := s.cache.Mirror(ctx, def); err != nil {
		return false, err
	}
	return true, nil
}

// diffAssignments compares stored rows with desired rows by (step, approver, status key)
func diffAssignments(existing []*entity.ApproverAssignment, desired []entity.ApproverAssignment) (toCreate, toRemove []entity.ApproverAssignment) {
	identity := func(a entity.ApproverAssignment) string { return a.Key() + "|" + a.StatusKey }

	want := make(map[string]bool, len(desired))
	for _, a := range desired {
		want[identity(a)] = true
	}
	have := make(map[string]bool, len(existing))
	for _, a := range existing {
		have[identity(*a)] = true
		if !want[identity(*a)] {
			toRemove = append(toRemove, *a)
		}
	}
	for _, a := range desired {
		if !have[identity(a)] {
			toCreate = append(toCreate, a)
		}
	}
	return toCreate, toRemove
}
