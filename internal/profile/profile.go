// Package profile reads and writes the per-user profile document stored
// inside each user's remote folder, bootstrapping defaults on first access.
package profile

import (
	"errors"
	"fmt"
	"time"
)

// Plan is a subscription tier.
type Plan string

const (
	PlanFree    Plan = "free"
	PlanPremium Plan = "premium"
)

// Free-plan quota limits. Premium is unlimited.
const (
	freeMaxBooks   = 3
	freeMaxAIBooks = 1
)

// ErrQuotaExceeded is returned when a plan limit would be exceeded.
// Enforced by the layer that calls into the persistence core, before any
// mutation happens.
var ErrQuotaExceeded = errors.New("profile: plan quota exceeded")

// Profile is the per-user bookkeeping document, stored at
// <root>/user_<userId>/profile.json.
type Profile struct {
	UserID         int64     `json:"userId"`
	Email          string    `json:"email"`
	DisplayName    *string   `json:"displayName"`
	Plan           Plan      `json:"plan"`
	BooksCreated   int       `json:"booksCreated"`
	AIBooksCreated int       `json:"aiBooksCreated"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// valid reports whether a decoded document is usable. Anything else is
// treated as corrupt and healed with defaults.
func (p *Profile) valid() bool {
	if p.UserID == 0 {
		return false
	}

	switch p.Plan {
	case PlanFree, PlanPremium:
		return true
	default:
		return false
	}
}

// defaultProfile builds the bootstrap document written on first access.
func defaultProfile(userID int64, email string, now time.Time) Profile {
	return Profile{
		UserID:    userID,
		Email:     email,
		Plan:      PlanFree,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// CheckBookQuota returns ErrQuotaExceeded when creating one more book
// would exceed the profile's plan limit.
func (p *Profile) CheckBookQuota() error {
	if p.Plan == PlanPremium {
		return nil
	}

	if p.BooksCreated >= freeMaxBooks {
		return fmt.Errorf("%w: free plan allows %d books", ErrQuotaExceeded, freeMaxBooks)
	}

	return nil
}

// CheckAIBookQuota returns ErrQuotaExceeded when generating one more AI
// book would exceed the profile's plan limit.
func (p *Profile) CheckAIBookQuota() error {
	if p.Plan == PlanPremium {
		return nil
	}

	if p.AIBooksCreated >= freeMaxAIBooks {
		return fmt.Errorf("%w: free plan allows %d AI books", ErrQuotaExceeded, freeMaxAIBooks)
	}

	return nil
}

// ParsePlan validates a plan string from the API.
func ParsePlan(s string) (Plan, error) {
	switch Plan(s) {
	case PlanFree:
		return PlanFree, nil
	case PlanPremium:
		return PlanPremium, nil
	default:
		return "", fmt.Errorf("profile: unknown plan %q", s)
	}
}
