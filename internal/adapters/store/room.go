// Package store holds the room directory and chat history collaborators.
package store

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dkeye/Huddle/internal/domain"
)

const (
	maxRoomNameLen = 64
	maxTopics      = 8
	defaultLimit   = 50
	maxLimit       = 200
)

// prepareRoom validates a new or updated room and normalizes its fields.
func prepareRoom(r *domain.Room, now time.Time) error {
	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" || len(r.Name) > maxRoomNameLen {
		return fmt.Errorf("room name: %w", domain.ErrInvalidRequest)
	}
	if err := r.OwnerID.Validate(); err != nil {
		return fmt.Errorf("room owner: %w", domain.ErrInvalidRequest)
	}
	if r.MaxUsers < 0 {
		return fmt.Errorf("room max users: %w", domain.ErrInvalidRequest)
	}
	r.Topics = normalizeTopics(r.Topics)
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	return nil
}

func normalizeTopics(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, t := range in {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
		if len(out) == maxTopics {
			break
		}
	}
	sort.Strings(out)
	return out
}

func clampLimit(n int) int {
	if n <= 0 {
		return defaultLimit
	}
	if n > maxLimit {
		return maxLimit
	}
	return n
}

func matches(r *domain.Room, q domain.RoomQuery) bool {
	if q.PublicOnly && !r.IsPublic {
		return false
	}
	if q.Topic != "" {
		topic := strings.ToLower(strings.TrimSpace(q.Topic))
		found := false
		for _, t := range r.Topics {
			if t == topic {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if q.Search != "" {
		s := strings.ToLower(q.Search)
		if !strings.Contains(strings.ToLower(r.Name), s) && !strings.Contains(strings.ToLower(r.Description), s) {
			return false
		}
	}
	return true
}
