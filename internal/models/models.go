package models

import (
	"slices"
	"time"
)

// Category groups tasks. Personal categories belong to their owner alone;
// shared categories are visible to every member and joined by share code.
type Category struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Name      string    `json:"name"`
	Order     int       `json:"order"`
	CreatedAt time.Time `json:"created_at"`
	IsShared  bool      `json:"is_shared"`
	ShareCode string    `json:"share_code,omitempty"`
	Members   []string  `json:"members,omitempty"`
}

// HasMember reports whether userID is listed in the member set.
func (c Category) HasMember(userID string) bool {
	return slices.Contains(c.Members, userID)
}

// Task represents a single item of a category.
type Task struct {
	ID         string    `json:"id"`
	OwnerID    string    `json:"owner_id"`
	CategoryID string    `json:"category_id"`
	Title      string    `json:"title"`
	Completed  bool      `json:"completed"`
	Order      int       `json:"order"`
	CreatedAt  time.Time `json:"created_at"`
}

// UserProfile mirrors the identity provider's user record.
type UserProfile struct {
	UID       string    `json:"uid"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	PhotoURL  string    `json:"photo_url,omitempty"`
	LastLogin time.Time `json:"last_login"`
}

// ActiveTasks returns the tasks that are not completed, preserving order.
func ActiveTasks(tasks []Task) []Task {
	out := make([]Task, 0, len(tasks))
	for _, t := range tasks {
		if !t.Completed {
			out = append(out, t)
		}
	}
	return out
}

// CompletedTasks returns the completed tasks, preserving order.
func CompletedTasks(tasks []Task) []Task {
	out := make([]Task, 0, len(tasks))
	for _, t := range tasks {
		if t.Completed {
			out = append(out, t)
		}
	}
	return out
}
