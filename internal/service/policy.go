package service

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ProfessorAbraham/chereka-customer-support/internal/models"
)

const (
	MaxContentLen  = 5000
	MaxSubjectLen  = 200
	DefaultSubject = "Live Chat Support"
)

// Action is a room-scoped operation subject to authorization.
type Action int

const (
	ActionView Action = iota
	ActionJoin
	ActionClaim
	ActionSend
	ActionClose
)

func (a Action) String() string {
	switch a {
	case ActionView:
		return "view"
	case ActionJoin:
		return "join"
	case ActionClaim:
		return "claim"
	case ActionSend:
		return "send"
	case ActionClose:
		return "close"
	}
	return fmt.Sprintf("action(%d)", int(a))
}

// Authorize is evaluated identically for the live and HTTP paths:
// customers act only on their own rooms, agents on rooms assigned to them or
// (to view, join or claim) on rooms still waiting, admins on anything.
func Authorize(u models.User, room models.Room, a Action) error {
	switch u.Role {
	case models.RoleAdmin:
		return nil
	case models.RoleCustomer:
		if room.CustomerID == u.ID {
			return nil
		}
	case models.RoleAgent:
		if room.AgentID != nil && *room.AgentID == u.ID {
			return nil
		}
		if room.Status == models.RoomWaiting && (a == ActionView || a == ActionJoin || a == ActionClaim) {
			return nil
		}
	}
	return fmt.Errorf("%w: %s room %d as %s", ErrAccessDenied, a, room.ID, u.Role)
}

// ValidateContent trims a user message and checks its length in characters.
func ValidateContent(content string) (string, error) {
	c := strings.TrimSpace(content)
	if c == "" {
		return "", fmt.Errorf("%w: message content is required", ErrInvalidContent)
	}
	if utf8.RuneCountInString(c) > MaxContentLen {
		return "", fmt.Errorf("%w: message exceeds %d characters", ErrInvalidContent, MaxContentLen)
	}
	return c, nil
}

// NormalizeSubject applies the default subject and the length limit.
func NormalizeSubject(subject string) (string, error) {
	s := strings.TrimSpace(subject)
	if s == "" {
		return DefaultSubject, nil
	}
	if utf8.RuneCountInString(s) > MaxSubjectLen {
		return "", fmt.Errorf("%w: subject exceeds %d characters", ErrInvalidContent, MaxSubjectLen)
	}
	return s, nil
}
