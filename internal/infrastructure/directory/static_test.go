package directory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/barangay-docflow/internal/domain/entity"
)

func TestStatic(t *testing.T) {
	d, err := NewStatic([]entity.User{
		{ID: "captain", DisplayName: "Punong Barangay", Role: entity.RoleStaff},
		{ID: " secretary ", DisplayName: "Barangay Secretary", Role: entity.RoleAdmin},
	})
	require.NoError(t, err)

	u, err := d.GetUser(context.Background(), "secretary")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "Barangay Secretary", u.DisplayName)

	u.DisplayName = "changed"
	again, _ := d.GetUser(context.Background(), "secretary")
	assert.Equal(t, "Barangay Secretary", again.DisplayName)

	missing, err := d.GetUser(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Nil(t, missing)

	assert.Equal(t, []string{"captain", "secretary"}, d.IDs())
}

func TestStatic_InvalidEntries(t *testing.T) {
	_, err := NewStatic([]entity.User{{ID: ""}})
	assert.Error(t, err)

	_, err = NewStatic([]entity.User{{ID: "a"}, {ID: "a"}})
	assert.Error(t, err)
}
