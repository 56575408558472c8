package todo

import (
	"fmt"

	"sharedtodo/internal/models"
)

// CanAccess reports whether userID may read and modify c and its tasks.
// Personal categories are owner-only; shared ones are open to members.
func CanAccess(c models.Category, userID string) bool {
	if userID == "" {
		return false
	}
	if c.IsShared {
		return c.HasMember(userID)
	}
	return c.OwnerID == userID
}

// AssertCanAccess returns ErrForbidden unless CanAccess holds. It does not
// depend on which query found the category.
func AssertCanAccess(c models.Category, userID string) error {
	if !CanAccess(c, userID) {
		return fmt.Errorf("category %s: %w", c.ID, ErrForbidden)
	}
	return nil
}

func assertOwner(c models.Category, userID string) error {
	if userID == "" || c.OwnerID != userID {
		return fmt.Errorf("category %s is owned by another user: %w", c.ID, ErrForbidden)
	}
	return nil
}
