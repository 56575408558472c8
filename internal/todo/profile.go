package todo

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"sharedtodo/internal/gateway"
	"sharedtodo/internal/models"
)

// fallbackProfileName is used when the identity has neither name nor email.
const fallbackProfileName = "User"

// ProfileStore keeps the users collection, a projection of the identity
// provider's records.
type ProfileStore struct {
	gw  gateway.Gateway
	now func() time.Time
}

// NewProfileStore returns a profile store on gw.
func NewProfileStore(gw gateway.Gateway, opts Options) *ProfileStore {
	opts = opts.withDefaults()
	return &ProfileStore{gw: gw, now: opts.Now}
}

// SaveProfile upserts the profile of a user who just logged in.
func (s *ProfileStore) SaveProfile(ctx context.Context, p models.UserProfile) (models.UserProfile, error) {
	if trim(p.UID) == "" {
		return models.UserProfile{}, &ValidationError{Field: "uid", Message: "must not be empty"}
	}
	p.Name = displayName(p)
	p.LastLogin = s.now().UTC()

	fields := gateway.Fields{
		fieldUID:       p.UID,
		fieldName:      p.Name,
		fieldEmail:     p.Email,
		fieldLastLogin: gateway.Timestamp(p.LastLogin),
	}
	if p.PhotoURL != "" {
		fields[fieldPhotoURL] = p.PhotoURL
	}
	if err := s.gw.Upsert(ctx, gateway.Users, p.UID, fields); err != nil {
		return models.UserProfile{}, fmt.Errorf("save profile: %w", err)
	}
	return p, nil
}

func displayName(p models.UserProfile) string {
	if name := trim(p.Name); name != "" {
		return name
	}
	if local, _, _ := strings.Cut(p.Email, "@"); trim(local) != "" {
		return trim(local)
	}
	return fallbackProfileName
}

// GetProfile returns one profile.
func (s *ProfileStore) GetProfile(ctx context.Context, uid string) (models.UserProfile, error) {
	doc, err := s.gw.Get(ctx, gateway.Users, uid)
	if err != nil {
		return models.UserProfile{}, notFound("profile", uid, err)
	}
	return decodeProfile(doc), nil
}

// GetProfiles returns the profiles of uids in input order, skipping unknown
// ones. Lookups are split into "in" queries of at most gateway.MaxInValues
// ids and run concurrently.
func (s *ProfileStore) GetProfiles(ctx context.Context, uids []string) ([]models.UserProfile, error) {
	seen := make(map[string]bool, len(uids))
	unique := make([]string, 0, len(uids))
	for _, uid := range uids {
		if uid != "" && !seen[uid] {
			seen[uid] = true
			unique = append(unique, uid)
		}
	}
	if len(unique) == 0 {
		return nil, nil
	}

	var (
		mu    sync.Mutex
		found = make(map[string]models.UserProfile, len(unique))
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, ids := range chunk(unique, gateway.MaxInValues) {
		values := make([]any, len(ids))
		for i, uid := range ids {
			values[i] = uid
		}
		g.Go(func() error {
			docs, err := s.gw.Find(gctx, gateway.From(gateway.Users).Where(fieldUID, gateway.OpIn, values))
			if err != nil {
				return fmt.Errorf("get profiles: %w", err)
			}
			mu.Lock()
			defer mu.Unlock()
			for _, doc := range docs {
				p := decodeProfile(doc)
				found[p.UID] = p
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]models.UserProfile, 0, len(found))
	for _, uid := range unique {
		if p, ok := found[uid]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func chunk[T any](items []T, size int) [][]T {
	var out [][]T
	for size < len(items) {
		items, out = items[size:], append(out, items[:size:size])
	}
	return append(out, items)
}
