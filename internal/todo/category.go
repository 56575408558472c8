// Package todo implements the category, task, membership and profile stores
// on top of a gateway.Gateway.
package todo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"sharedtodo/internal/gateway"
	"sharedtodo/internal/models"
	"sharedtodo/internal/ordering"
)

// DefaultCategoryName labels the category created for new users.
const DefaultCategoryName = "My Tasks"

// Options configures the stores.
type Options struct {
	Logger *slog.Logger
	// Now overrides the clock, mainly for tests.
	Now func() time.Time
	// DefaultCategoryName labels the category EnsureDefaultCategory creates.
	DefaultCategoryName string
	// ShareCodeAttempts bounds how often a colliding share code is regenerated.
	ShareCodeAttempts int
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.DefaultCategoryName == "" {
		o.DefaultCategoryName = DefaultCategoryName
	}
	if o.ShareCodeAttempts <= 0 {
		o.ShareCodeAttempts = 5
	}
	return o
}

// CategoryStore manages categories and their membership.
type CategoryStore struct {
	gw         gateway.Gateway
	profiles   *ProfileStore
	reconciler *ordering.Reconciler
	logger     *slog.Logger
	now        func() time.Time
	opts       Options
	newCode    func() (string, error)
}

// NewCategoryStore builds a category store. profiles resolves member
// identities and may be nil when Members is not used.
func NewCategoryStore(gw gateway.Gateway, profiles *ProfileStore, opts Options) *CategoryStore {
	opts = opts.withDefaults()
	return &CategoryStore{
		gw:         gw,
		profiles:   profiles,
		reconciler: ordering.NewReconciler(gw, gateway.Categories, opts.Logger),
		logger:     opts.Logger,
		now:        opts.Now,
		opts:       opts,
		newCode:    GenerateShareCode,
	}
}

// CreateCategory stores a new category at the given order. Shared categories
// receive a share code and start with the owner as their only member.
func (s *CategoryStore) CreateCategory(ctx context.Context, ownerID, name string, order int, shared bool) (models.Category, error) {
	name, err := requireText("name", name)
	if err != nil {
		return models.Category{}, err
	}

	c := models.Category{
		OwnerID:   ownerID,
		Name:      name,
		Order:     order,
		CreatedAt: s.now().UTC(),
		IsShared:  shared,
	}
	if !shared {
		return s.insert(ctx, "", c)
	}

	c.Members = []string{ownerID}
	for attempt := 0; attempt < s.opts.ShareCodeAttempts; attempt++ {
		code, err := s.uniqueShareCode(ctx)
		if err != nil {
			return models.Category{}, err
		}
		c.ShareCode = code
		created, err := s.insert(ctx, "", c)
		if errors.Is(err, gateway.ErrAlreadyExists) {
			s.logger.Warn("share code collision, regenerating", slog.String("owner", ownerID))
			continue
		}
		return created, err
	}
	return models.Category{}, fmt.Errorf("create shared category: share code collided %d times", s.opts.ShareCodeAttempts)
}

// AppendCategory creates a category at the end of the owner's personal or
// shared list.
func (s *CategoryStore) AppendCategory(ctx context.Context, ownerID, name string, shared bool) (models.Category, error) {
	var (
		existing []models.Category
		err      error
	)
	if shared {
		existing, err = s.ListShared(ctx, ownerID)
	} else {
		existing, err = s.ListPersonal(ctx, ownerID)
	}
	if err != nil {
		return models.Category{}, err
	}
	return s.CreateCategory(ctx, ownerID, name, len(existing), shared)
}

func (s *CategoryStore) insert(ctx context.Context, id string, c models.Category) (models.Category, error) {
	doc, err := s.gw.Create(ctx, gateway.Categories, id, categoryFields(c))
	if err != nil {
		return models.Category{}, fmt.Errorf("create category: %w", err)
	}
	return decodeCategory(doc), nil
}

// Get returns a category by id without any access check.
func (s *CategoryStore) Get(ctx context.Context, id string) (models.Category, error) {
	doc, err := s.gw.Get(ctx, gateway.Categories, id)
	if err != nil {
		return models.Category{}, notFound("category", id, err)
	}
	return decodeCategory(doc), nil
}

// GetForUser returns a category the user is allowed to access.
func (s *CategoryStore) GetForUser(ctx context.Context, userID, id string) (models.Category, error) {
	c, err := s.Get(ctx, id)
	if err != nil {
		return models.Category{}, err
	}
	if err := AssertCanAccess(c, userID); err != nil {
		return models.Category{}, err
	}
	return c, nil
}

// RenameCategory changes only the name. A blank or unchanged name is a no-op.
func (s *CategoryStore) RenameCategory(ctx context.Context, actor, id, newName string) error {
	c, err := s.GetForUser(ctx, actor, id)
	if err != nil {
		return err
	}
	newName = trim(newName)
	if newName == "" || newName == c.Name {
		return nil
	}
	if err := s.gw.Update(ctx, gateway.Categories, id, gateway.Fields{fieldName: newName}); err != nil {
		return fmt.Errorf("rename category: %w", err)
	}
	return nil
}

// DeleteCategory removes a category and every task that belongs to it. Only
// the owner may delete; the tasks and the category go in one batch.
func (s *CategoryStore) DeleteCategory(ctx context.Context, actor, id string) error {
	c, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := assertOwner(c, actor); err != nil {
		return err
	}

	tasks, err := s.gw.Find(ctx, gateway.From(gateway.Tasks).Where(fieldCategoryID, gateway.OpEqual, id))
	if err != nil {
		return fmt.Errorf("list category tasks: %w", err)
	}

	b := gateway.NewBatch()
	for _, t := range tasks {
		b.Delete(gateway.Tasks, t.ID)
	}
	b.Delete(gateway.Categories, id)
	if err := s.gw.Commit(ctx, b); err != nil {
		return fmt.Errorf("delete category: %w", err)
	}

	s.logger.Info("category deleted", slog.String("category", id), slog.Int("tasks", len(tasks)))
	return nil
}

// ReorderCategories assigns order = index to every category of ordered.
// Access is checked against the stored categories; only the ids of ordered
// are trusted.
func (s *CategoryStore) ReorderCategories(ctx context.Context, actor string, ordered []models.Category) error {
	ids := make([]string, len(ordered))
	for i, c := range ordered {
		stored, err := s.Get(ctx, c.ID)
		if err != nil {
			return err
		}
		if err := AssertCanAccess(stored, actor); err != nil {
			return err
		}
		ids[i] = c.ID
	}
	return s.reconciler.Assign(ctx, ids)
}

// MoveCategory applies a drag-and-drop move to the actor's personal list and
// returns the list in its new order.
func (s *CategoryStore) MoveCategory(ctx context.Context, actor string, from, to int) ([]models.Category, error) {
	current, err := s.ListPersonal(ctx, actor)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]models.Category, len(current))
	ids := make([]string, len(current))
	for i, c := range current {
		byID[c.ID] = c
		ids[i] = c.ID
	}

	ids, err = s.reconciler.Reorder(ctx, ids, from, to)
	if err != nil {
		return nil, moveError(err)
	}
	moved := make([]models.Category, len(ids))
	for i, id := range ids {
		moved[i] = byID[id]
		if from != to {
			moved[i].Order = i
		}
	}
	return moved, nil
}

// moveError reports out-of-range indexes as invalid input.
func moveError(err error) error {
	if errors.Is(err, ordering.ErrIndexOutOfRange) {
		return &ValidationError{Field: "index", Message: "is out of range"}
	}
	return err
}

func personalQuery(userID string) gateway.Query {
	return gateway.From(gateway.Categories).
		Where(fieldOwnerID, gateway.OpEqual, userID).
		OrderBy(fieldOrder)
}

func sharedQuery(userID string) gateway.Query {
	return gateway.From(gateway.Categories).
		Where(fieldMembers, gateway.OpArrayContains, userID).
		OrderBy(fieldCreatedAt)
}

func isPersonal(c models.Category) bool { return !c.IsShared }

func isShared(c models.Category) bool { return c.IsShared }

// ListPersonal returns the user's own non-shared categories by ascending order.
func (s *CategoryStore) ListPersonal(ctx context.Context, userID string) ([]models.Category, error) {
	docs, err := s.gw.Find(ctx, personalQuery(userID))
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return decodeCategories(docs, isPersonal), nil
}

// ListShared returns the shared categories the user is a member of.
func (s *CategoryStore) ListShared(ctx context.Context, userID string) ([]models.Category, error) {
	docs, err := s.gw.Find(ctx, sharedQuery(userID))
	if err != nil {
		return nil, fmt.Errorf("list shared categories: %w", err)
	}
	return decodeCategories(docs, isShared), nil
}

// SubscribePersonal streams the user's personal category list.
func (s *CategoryStore) SubscribePersonal(ctx context.Context, userID string) (*Stream[[]models.Category], error) {
	sub, err := s.gw.Subscribe(ctx, personalQuery(userID))
	if err != nil {
		return nil, fmt.Errorf("subscribe categories: %w", err)
	}
	return newStream(sub, func(docs []gateway.Document) []models.Category {
		return decodeCategories(docs, isPersonal)
	}), nil
}

// SubscribeShared streams the shared categories the user is a member of.
func (s *CategoryStore) SubscribeShared(ctx context.Context, userID string) (*Stream[[]models.Category], error) {
	sub, err := s.gw.Subscribe(ctx, sharedQuery(userID))
	if err != nil {
		return nil, fmt.Errorf("subscribe shared categories: %w", err)
	}
	return newStream(sub, func(docs []gateway.Document) []models.Category {
		return decodeCategories(docs, isShared)
	}), nil
}

// defaultCategoryID is deterministic per user so that racing
// EnsureDefaultCategory calls collide on create instead of both succeeding.
func defaultCategoryID(userID string) string {
	return "default-" + userID
}

// EnsureDefaultCategory creates the default category when the user owns
// none. It reports whether a category was created.
func (s *CategoryStore) EnsureDefaultCategory(ctx context.Context, userID string) (bool, error) {
	owned, err := s.gw.Find(ctx, gateway.From(gateway.Categories).Where(fieldOwnerID, gateway.OpEqual, userID))
	if err != nil {
		return false, fmt.Errorf("list owned categories: %w", err)
	}
	if len(owned) > 0 {
		return false, nil
	}

	_, err = s.insert(ctx, defaultCategoryID(userID), models.Category{
		OwnerID:   userID,
		Name:      s.opts.DefaultCategoryName,
		Order:     0,
		CreatedAt: s.now().UTC(),
	})
	if errors.Is(err, gateway.ErrAlreadyExists) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	s.logger.Info("default category created", slog.String("user", userID))
	return true, nil
}
