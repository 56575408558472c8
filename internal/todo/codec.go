package todo

import (
	"errors"
	"fmt"
	"strings"

	"sharedtodo/internal/gateway"
	"sharedtodo/internal/models"
	"sharedtodo/internal/ordering"
)

// Document field names.
const (
	fieldOwnerID    = "ownerId"
	fieldName       = "name"
	fieldOrder      = ordering.OrderField
	fieldCreatedAt  = "createdAt"
	fieldIsShared   = "isShared"
	fieldShareCode  = "shareCode"
	fieldMembers    = "members"
	fieldCategoryID = "categoryId"
	fieldTitle      = "title"
	fieldCompleted  = "completed"
	fieldUID        = "uid"
	fieldEmail      = "email"
	fieldPhotoURL   = "photoURL"
	fieldLastLogin  = "lastLogin"
)

func categoryFields(c models.Category) gateway.Fields {
	f := gateway.Fields{
		fieldOwnerID:   c.OwnerID,
		fieldName:      c.Name,
		fieldOrder:     c.Order,
		fieldCreatedAt: gateway.Timestamp(c.CreatedAt),
		fieldIsShared:  c.IsShared,
	}
	if c.IsShared {
		f[fieldShareCode] = c.ShareCode
		f[fieldMembers] = c.Members
	}
	return f
}

func decodeCategory(doc gateway.Document) models.Category {
	f := doc.Fields
	c := models.Category{
		ID:        doc.ID,
		OwnerID:   str(f[fieldOwnerID]),
		Name:      str(f[fieldName]),
		Order:     gateway.Int(f[fieldOrder]),
		CreatedAt: gateway.ParseTimestamp(f[fieldCreatedAt]),
		ShareCode: str(f[fieldShareCode]),
		Members:   gateway.Strings(f[fieldMembers]),
	}
	c.IsShared, _ = f[fieldIsShared].(bool)
	return c
}

func decodeCategories(docs []gateway.Document, keep func(models.Category) bool) []models.Category {
	out := make([]models.Category, 0, len(docs))
	for _, doc := range docs {
		c := decodeCategory(doc)
		if keep == nil || keep(c) {
			out = append(out, c)
		}
	}
	return out
}

func taskFields(t models.Task) gateway.Fields {
	return gateway.Fields{
		fieldOwnerID:    t.OwnerID,
		fieldCategoryID: t.CategoryID,
		fieldTitle:      t.Title,
		fieldCompleted:  t.Completed,
		fieldOrder:      t.Order,
		fieldCreatedAt:  gateway.Timestamp(t.CreatedAt),
	}
}

func decodeTask(doc gateway.Document) models.Task {
	f := doc.Fields
	t := models.Task{
		ID:         doc.ID,
		OwnerID:    str(f[fieldOwnerID]),
		CategoryID: str(f[fieldCategoryID]),
		Title:      str(f[fieldTitle]),
		Order:      gateway.Int(f[fieldOrder]),
		CreatedAt:  gateway.ParseTimestamp(f[fieldCreatedAt]),
	}
	t.Completed, _ = f[fieldCompleted].(bool)
	return t
}

func decodeTasks(docs []gateway.Document) []models.Task {
	out := make([]models.Task, 0, len(docs))
	for _, doc := range docs {
		out = append(out, decodeTask(doc))
	}
	return out
}

func decodeProfile(doc gateway.Document) models.UserProfile {
	f := doc.Fields
	uid := str(f[fieldUID])
	if uid == "" {
		uid = doc.ID
	}
	return models.UserProfile{
		UID:       uid,
		Name:      str(f[fieldName]),
		Email:     str(f[fieldEmail]),
		PhotoURL:  str(f[fieldPhotoURL]),
		LastLogin: gateway.ParseTimestamp(f[fieldLastLogin]),
	}
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func trim(s string) string {
	return strings.TrimSpace(s)
}

// notFound converts a gateway miss into the store's ErrNotFound.
func notFound(kind, id string, err error) error {
	if errors.Is(err, gateway.ErrNotFound) {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return fmt.Errorf("get %s %s: %w", kind, id, err)
}
