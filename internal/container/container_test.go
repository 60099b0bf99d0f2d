package container

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/barangay-docflow/internal/application/service"
	"github.com/garyjia/barangay-docflow/internal/config"
	"github.com/garyjia/barangay-docflow/internal/domain/entity"
	domainwf "github.com/garyjia/barangay-docflow/internal/domain/workflow"
)

const clearance = "barangay_clearance"

func testConfig(t *testing.T) *config.Config {
	dir := t.TempDir()
	return &config.Config{
		Server: config.ServerConfig{Port: 8080, Mode: "test"},
		Database: config.DatabaseConfig{
			Driver:       config.DatabaseSQLite,
			Path:         filepath.Join(dir, "docflow.db"),
			MaxOpenConns: 4,
			AutoMigrate:  true,
		},
		Cache:        config.CacheConfig{Driver: config.CacheFile, Dir: filepath.Join(dir, "cache")},
		Sync:         config.SyncConfig{OnChange: true},
		Notification: config.NotificationConfig{Channel: config.ChannelLog},
		Directory: config.DirectoryConfig{Users: []entity.User{
			{ID: "captain", DisplayName: "Kapitan Reyes", Role: entity.RoleAdmin},
			{ID: "staff-1", DisplayName: "Secretary Cruz", Role: entity.RoleStaff},
			{ID: "staff-2", DisplayName: "Treasurer Santos", Role: entity.RoleStaff},
			{ID: "resident-1", DisplayName: "Juan Dela Cruz", Role: entity.RoleResident},
		}},
		DocumentTypes: []string{clearance},
	}
}

func as(id, role string) context.Context {
	return entity.ContextWithActor(context.Background(), entity.Actor{ID: id, Role: role})
}

func TestNewContainer_Validation(t *testing.T) {
	_, err := NewContainer(nil, zap.NewNop())
	assert.Error(t, err)

	_, err = NewContainer(testConfig(t), nil)
	assert.Error(t, err)

	cfg := testConfig(t)
	cfg.Database.Driver = "oracle"
	_, err = NewContainer(cfg, zap.NewNop())
	assert.Error(t, err)
}

func TestContainer_EndToEnd(t *testing.T) {
	c, err := NewContainer(testConfig(t), zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))
	require.NoError(t, c.RunWorkers(context.Background()))
	assert.True(t, c.Ready())

	svc := c.Services()
	reviewID := entity.DefaultStepID(clearance, "under_review")

	_, err = svc.Workflows.AssignApprovers(as("captain", entity.RoleAdmin), clearance, reviewID, []string{"staff-1"})
	require.NoError(t, err)
	c.Dispatcher().Wait()

	approvers, known := c.AssignmentTable().Approvers(clearance, reviewID)
	require.True(t, known)
	assert.Equal(t, []string{"staff-1"}, approvers)

	rows, err := svc.Sync.ApproverAssignments(context.Background(), "staff-1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "under_review", rows[0].StatusKey)

	view, err := svc.Requests.CreateRequest(as("resident-1", entity.RoleResident), service.CreateRequestInput{
		DocumentTypeID: clearance,
		RequesterID:    "resident-1",
		Reference:      "employment",
	})
	require.NoError(t, err)

	view, err = svc.Requests.AdvanceRequest(as("resident-1", entity.RoleResident), view.ID)
	require.NoError(t, err)
	c.Dispatcher().Wait()
	assert.Equal(t, "under_review", view.CurrentStatusKey)

	_, err = svc.Requests.ApproveRequest(as("staff-2", entity.RoleStaff), view.ID)
	assert.ErrorIs(t, err, domainwf.ErrNotAuthorized)

	view, err = svc.Requests.ApproveRequest(as("staff-1", entity.RoleStaff), view.ID)
	require.NoError(t, err)
	assert.Equal(t, "for_signature", view.CurrentStatusKey)
	c.Dispatcher().Wait()

	view, err = svc.Requests.RejectRequest(as("captain", entity.RoleAdmin), view.ID, "unpaid fees")
	require.NoError(t, err)
	assert.Equal(t, entity.CurrentStepRejected, view.CurrentStepID)
	c.Dispatcher().Wait()

	stored, err := c.Repositories().Requests.GetByID(context.Background(), view.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, entity.ActionRejected, stored.History[len(stored.History)-1].Action)

	health := c.Health(context.Background())
	assert.NoError(t, health["database"])

	w := httptest.NewRecorder()
	c.HTTPServer().Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	require.NoError(t, c.Close())
	assert.False(t, c.Ready())
	assert.Error(t, c.Close())
	assert.Error(t, c.Start(context.Background()))
}
