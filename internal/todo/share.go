package todo

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"strings"

	"sharedtodo/internal/gateway"
	"sharedtodo/internal/models"
)

const (
	// ShareCodeLength is the number of characters of a share code.
	ShareCodeLength = 8

	shareCodeAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

// GenerateShareCode returns a random uppercase base-36 code.
func GenerateShareCode() (string, error) {
	const limit = 256 - 256%len(shareCodeAlphabet)

	code := make([]byte, 0, ShareCodeLength)
	buf := make([]byte, ShareCodeLength*2)
	for len(code) < ShareCodeLength {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("generate share code: %w", err)
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			code = append(code, shareCodeAlphabet[int(b)%len(shareCodeAlphabet)])
			if len(code) == ShareCodeLength {
				break
			}
		}
	}
	return string(code), nil
}

// NormalizeShareCode canonicalizes user input for lookup.
func NormalizeShareCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// uniqueShareCode regenerates until a code is unused. The SQLite gateway also
// enforces uniqueness with an index, which CreateCategory handles.
func (s *CategoryStore) uniqueShareCode(ctx context.Context) (string, error) {
	for attempt := 0; attempt < s.opts.ShareCodeAttempts; attempt++ {
		code, err := s.newCode()
		if err != nil {
			return "", err
		}
		docs, err := s.gw.Find(ctx, shareCodeQuery(code))
		if err != nil {
			return "", fmt.Errorf("check share code: %w", err)
		}
		if len(docs) == 0 {
			return code, nil
		}
	}
	return "", fmt.Errorf("no free share code after %d attempts", s.opts.ShareCodeAttempts)
}

func shareCodeQuery(code string) gateway.Query {
	return gateway.From(gateway.Categories).Where(fieldShareCode, gateway.OpEqual, code)
}

// JoinByCode adds userID to the members of the shared category identified by
// code and returns the updated category.
func (s *CategoryStore) JoinByCode(ctx context.Context, userID, code string) (models.Category, error) {
	code = NormalizeShareCode(code)
	if code == "" {
		return models.Category{}, fmt.Errorf("empty share code: %w", ErrNotFound)
	}

	docs, err := s.gw.Find(ctx, shareCodeQuery(code))
	if err != nil {
		return models.Category{}, fmt.Errorf("find share code: %w", err)
	}
	matches := decodeCategories(docs, isShared)
	if len(matches) == 0 {
		return models.Category{}, fmt.Errorf("share code %s: %w", code, ErrNotFound)
	}

	c := matches[0]
	if c.HasMember(userID) {
		return models.Category{}, fmt.Errorf("category %s: %w", c.ID, ErrAlreadyMember)
	}

	if err := s.gw.Update(ctx, gateway.Categories, c.ID, gateway.Fields{fieldMembers: gateway.ArrayUnion(userID)}); err != nil {
		return models.Category{}, fmt.Errorf("join category: %w", notFound("category", c.ID, err))
	}

	s.logger.Info("user joined category", slog.String("category", c.ID), slog.String("user", userID))
	return s.Get(ctx, c.ID)
}

// LeaveShared removes userID from a shared category's members. The category
// and its tasks stay. The owner cannot leave their own category.
func (s *CategoryStore) LeaveShared(ctx context.Context, categoryID, userID string) error {
	c, err := s.Get(ctx, categoryID)
	if err != nil {
		return err
	}
	if !c.IsShared {
		return fmt.Errorf("category %s is not shared: %w", categoryID, ErrForbidden)
	}
	if c.OwnerID == userID {
		return fmt.Errorf("owner cannot leave category %s: %w", categoryID, ErrForbidden)
	}
	if !c.HasMember(userID) {
		return nil
	}

	if err := s.gw.Update(ctx, gateway.Categories, categoryID, gateway.Fields{fieldMembers: gateway.ArrayRemove(userID)}); err != nil {
		return fmt.Errorf("leave category: %w", err)
	}
	s.logger.Info("user left category", slog.String("category", categoryID), slog.String("user", userID))
	return nil
}

// Members resolves the member identities of a category the actor can access.
// Personal categories report their owner.
func (s *CategoryStore) Members(ctx context.Context, actor, categoryID string) ([]models.UserProfile, error) {
	c, err := s.GetForUser(ctx, actor, categoryID)
	if err != nil {
		return nil, err
	}
	if s.profiles == nil {
		return nil, fmt.Errorf("members: no profile store configured")
	}
	ids := c.Members
	if !c.IsShared {
		ids = []string{c.OwnerID}
	}
	return s.profiles.GetProfiles(ctx, ids)
}
