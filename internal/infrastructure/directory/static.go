package directory

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/garyjia/barangay-docflow/internal/application/port"
	"github.com/garyjia/barangay-docflow/internal/domain/entity"
)

// Static is a read-only user directory loaded from configuration
type Static struct {
	users map[string]*entity.User
}

// NewStatic indexes the configured users by id
func NewStatic(users []entity.User) (*Static, error) {
	index := make(map[string]*entity.User, len(users))
	for i := range users {
		u := users[i]
		u.ID = strings.TrimSpace(u.ID)
		if u.ID == "" {
			return nil, fmt.Errorf("directory entry %d has no id", i)
		}
		if _, dup := index[u.ID]; dup {
			return nil, fmt.Errorf("directory entry %q is listed twice", u.ID)
		}
		index[u.ID] = &u
	}
	return &Static{users: index}, nil
}

// GetUser returns a copy of the user, or nil when the id is unknown
func (d *Static) GetUser(ctx context.Context, id string) (*entity.User, error) {
	u, ok := d.users[id]
	if !ok {
		return nil, nil
	}
	c := *u
	return &c, nil
}

// IDs returns every known user id in order
func (d *Static) IDs() []string {
	ids := make([]string, 0, len(d.users))
	for id := range d.users {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

var _ port.UserDirectory = (*Static)(nil)
