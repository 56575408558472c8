package todo

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"sharedtodo/internal/gateway"
	"sharedtodo/internal/models"
	"sharedtodo/internal/ordering"
)

// TaskUpdate lists the fields UpdateTask changes. Nil fields are left alone.
type TaskUpdate struct {
	Title     *string
	Completed *bool
	Order     *int
}

// TaskStore manages tasks within categories.
type TaskStore struct {
	gw         gateway.Gateway
	categories *CategoryStore
	reconciler *ordering.Reconciler
	logger     *slog.Logger
	now        func() time.Time
}

// NewTaskStore returns a task store on gw. categories resolves access to the
// category a task belongs to.
func NewTaskStore(gw gateway.Gateway, categories *CategoryStore, opts Options) *TaskStore {
	opts = opts.withDefaults()
	return &TaskStore{
		gw:         gw,
		categories: categories,
		reconciler: ordering.NewReconciler(gw, gateway.Tasks, opts.Logger),
		logger:     opts.Logger,
		now:        opts.Now,
	}
}

// CreateTask adds an uncompleted task to a category the actor can access.
func (s *TaskStore) CreateTask(ctx context.Context, actor, title, categoryID string, order int) (models.Task, error) {
	title, err := requireText("title", title)
	if err != nil {
		return models.Task{}, err
	}
	if _, err := s.categories.GetForUser(ctx, actor, categoryID); err != nil {
		return models.Task{}, err
	}

	doc, err := s.gw.Create(ctx, gateway.Tasks, "", taskFields(models.Task{
		OwnerID:    actor,
		CategoryID: categoryID,
		Title:      title,
		Order:      order,
		CreatedAt:  s.now().UTC(),
	}))
	if err != nil {
		return models.Task{}, fmt.Errorf("create task: %w", err)
	}
	return decodeTask(doc), nil
}

// AppendTask creates a task at the end of the category's active list.
func (s *TaskStore) AppendTask(ctx context.Context, actor, categoryID, title string) (models.Task, error) {
	tasks, err := s.ListTasks(ctx, actor, categoryID)
	if err != nil {
		return models.Task{}, err
	}
	return s.CreateTask(ctx, actor, title, categoryID, nextOrder(tasks, ""))
}

// nextOrder returns one past the highest order among the active tasks,
// ignoring the task with id exclude.
func nextOrder(tasks []models.Task, exclude string) int {
	next := 0
	for _, t := range tasks {
		if t.Completed || t.ID == exclude {
			continue
		}
		if t.Order >= next {
			next = t.Order + 1
		}
	}
	return next
}

var bulletPrefix = regexp.MustCompile(`^[-*•\s\d.]+\s`)

// ParseImport turns pasted text into task titles: one per non-blank line,
// list bullets and numbering stripped. A first line repeating the category
// name is treated as a heading and skipped.
func ParseImport(text, categoryName string) []string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) > 0 && lines[0] == strings.TrimSpace(categoryName) {
		lines = lines[1:]
	}

	titles := make([]string, 0, len(lines))
	for _, line := range lines {
		if title := strings.TrimSpace(bulletPrefix.ReplaceAllString(line, "")); title != "" {
			titles = append(titles, title)
		}
	}
	return titles
}

// ImportTasks appends every title parsed from text in one batch.
func (s *TaskStore) ImportTasks(ctx context.Context, actor, categoryID, text string) ([]models.Task, error) {
	c, err := s.categories.GetForUser(ctx, actor, categoryID)
	if err != nil {
		return nil, err
	}
	titles := ParseImport(text, c.Name)
	if len(titles) == 0 {
		return nil, &ValidationError{Field: "text", Message: "contains no tasks"}
	}

	existing, err := s.list(ctx, c, actor)
	if err != nil {
		return nil, err
	}
	next := nextOrder(existing, "")
	now := s.now().UTC()

	b := gateway.NewBatch()
	created := make([]models.Task, 0, len(titles))
	for i, title := range titles {
		t := models.Task{
			OwnerID:    actor,
			CategoryID: categoryID,
			Title:      title,
			Order:      next + i,
			CreatedAt:  now,
		}
		t.ID = b.Create(gateway.Tasks, "", taskFields(t))
		created = append(created, t)
	}
	if err := s.gw.Commit(ctx, b); err != nil {
		return nil, fmt.Errorf("import tasks: %w", err)
	}

	s.logger.Info("tasks imported", slog.String("category", categoryID), slog.Int("count", len(created)))
	return created, nil
}

// Get returns a task by id without any access check.
func (s *TaskStore) Get(ctx context.Context, id string) (models.Task, error) {
	doc, err := s.gw.Get(ctx, gateway.Tasks, id)
	if err != nil {
		return models.Task{}, notFound("task", id, err)
	}
	return decodeTask(doc), nil
}

func (s *TaskStore) getForUser(ctx context.Context, actor, id string) (models.Task, models.Category, error) {
	t, err := s.Get(ctx, id)
	if err != nil {
		return models.Task{}, models.Category{}, err
	}
	c, err := s.categories.GetForUser(ctx, actor, t.CategoryID)
	if err != nil {
		return models.Task{}, models.Category{}, err
	}
	return t, c, nil
}

// UpdateTask applies a partial update: completion toggle, rename or order.
// A task that is re-opened without an explicit order moves to the end of the
// active list.
func (s *TaskStore) UpdateTask(ctx context.Context, actor, id string, upd TaskUpdate) (models.Task, error) {
	t, c, err := s.getForUser(ctx, actor, id)
	if err != nil {
		return models.Task{}, err
	}

	fields := gateway.Fields{}
	if upd.Title != nil {
		title, err := requireText("title", *upd.Title)
		if err != nil {
			return models.Task{}, err
		}
		if title != t.Title {
			fields[fieldTitle] = title
		}
	}
	if upd.Completed != nil && *upd.Completed != t.Completed {
		fields[fieldCompleted] = *upd.Completed
		if !*upd.Completed && upd.Order == nil {
			tasks, err := s.list(ctx, c, actor)
			if err != nil {
				return models.Task{}, err
			}
			fields[fieldOrder] = nextOrder(tasks, t.ID)
		}
	}
	if upd.Order != nil {
		fields[fieldOrder] = *upd.Order
	}
	if len(fields) == 0 {
		return t, nil
	}

	if err := s.gw.Update(ctx, gateway.Tasks, id, fields); err != nil {
		return models.Task{}, fmt.Errorf("update task: %w", notFound("task", id, err))
	}
	return s.Get(ctx, id)
}

// ToggleTask flips the completion flag.
func (s *TaskStore) ToggleTask(ctx context.Context, actor, id string) (models.Task, error) {
	t, err := s.Get(ctx, id)
	if err != nil {
		return models.Task{}, err
	}
	completed := !t.Completed
	return s.UpdateTask(ctx, actor, id, TaskUpdate{Completed: &completed})
}

// DeleteTask removes a single task.
func (s *TaskStore) DeleteTask(ctx context.Context, actor, id string) error {
	if _, _, err := s.getForUser(ctx, actor, id); err != nil {
		return err
	}
	if err := s.gw.Delete(ctx, gateway.Tasks, id); err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return nil
}

// tasksQuery selects a category's tasks. An empty ownerID selects every
// member's tasks.
func tasksQuery(categoryID, ownerID string) gateway.Query {
	q := gateway.From(gateway.Tasks).Where(fieldCategoryID, gateway.OpEqual, categoryID)
	if ownerID != "" {
		q = q.Where(fieldOwnerID, gateway.OpEqual, ownerID)
	}
	return q.OrderBy(fieldOrder)
}

// ownerFilter picks the access mode: personal categories only show the
// actor's tasks, shared ones show everybody's.
func ownerFilter(c models.Category, actor string) string {
	if c.IsShared {
		return ""
	}
	return actor
}

func (s *TaskStore) list(ctx context.Context, c models.Category, actor string) ([]models.Task, error) {
	docs, err := s.gw.Find(ctx, tasksQuery(c.ID, ownerFilter(c, actor)))
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return decodeTasks(docs), nil
}

// ListTasks returns every task of a category by ascending order.
func (s *TaskStore) ListTasks(ctx context.Context, actor, categoryID string) ([]models.Task, error) {
	c, err := s.categories.GetForUser(ctx, actor, categoryID)
	if err != nil {
		return nil, err
	}
	return s.list(ctx, c, actor)
}

// ExportTasks renders a category as shareable text: the category name, then
// the active titles, then the completed ones, one per line. ParseImport reads
// the result back.
func (s *TaskStore) ExportTasks(ctx context.Context, actor, categoryID string) (string, error) {
	c, err := s.categories.GetForUser(ctx, actor, categoryID)
	if err != nil {
		return "", err
	}
	tasks, err := s.list(ctx, c, actor)
	if err != nil {
		return "", err
	}

	lines := []string{c.Name}
	for _, t := range models.ActiveTasks(tasks) {
		lines = append(lines, t.Title)
	}
	for _, t := range models.CompletedTasks(tasks) {
		lines = append(lines, t.Title)
	}
	if len(lines) == 1 {
		return c.Name + "\n", nil
	}
	return strings.Join(lines, "\n"), nil
}

// SubscribeToTasks streams the tasks of a category. A non-empty ownerID
// restricts the view to that user's tasks.
func (s *TaskStore) SubscribeToTasks(ctx context.Context, categoryID, ownerID string) (*Stream[[]models.Task], error) {
	sub, err := s.gw.Subscribe(ctx, tasksQuery(categoryID, ownerID))
	if err != nil {
		return nil, fmt.Errorf("subscribe tasks: %w", err)
	}
	return newStream(sub, decodeTasks), nil
}

// WatchTasks checks access and streams the category's tasks in the mode its
// kind calls for.
func (s *TaskStore) WatchTasks(ctx context.Context, actor, categoryID string) (*Stream[[]models.Task], error) {
	c, err := s.categories.GetForUser(ctx, actor, categoryID)
	if err != nil {
		return nil, err
	}
	return s.SubscribeToTasks(ctx, categoryID, ownerFilter(c, actor))
}

// MoveTask applies a drag-and-drop move to the category's active tasks and
// returns them in their new order. Completed tasks are never reordered.
func (s *TaskStore) MoveTask(ctx context.Context, actor, categoryID string, from, to int) ([]models.Task, error) {
	tasks, err := s.ListTasks(ctx, actor, categoryID)
	if err != nil {
		return nil, err
	}
	active := models.ActiveTasks(tasks)
	byID := make(map[string]models.Task, len(active))
	ids := make([]string, len(active))
	for i, t := range active {
		byID[t.ID] = t
		ids[i] = t.ID
	}

	ids, err = s.reconciler.Reorder(ctx, ids, from, to)
	if err != nil {
		return nil, moveError(err)
	}
	moved := make([]models.Task, len(ids))
	for i, id := range ids {
		moved[i] = byID[id]
		if from != to {
			moved[i].Order = i
		}
	}
	return moved, nil
}
