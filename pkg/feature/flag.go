package feature

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"time"
)

// Flag is a named switch with a default payload and an enabled payload.
// The key is immutable after creation and unique across all flags.
type Flag struct {
	ID                string    `json:"id" yaml:"id"`
	Key               string    `json:"key" yaml:"key"`
	Name              string    `json:"name" yaml:"name"`
	Description       string    `json:"description,omitempty" yaml:"description,omitempty"`
	Value             any       `json:"value" yaml:"value"`
	DefaultValue      any       `json:"default_value" yaml:"default_value"`
	Active            bool      `json:"active" yaml:"active"`
	Archived          bool      `json:"archived" yaml:"archived"`
	RolloutPercentage float64   `json:"rollout_percentage" yaml:"rollout_percentage"`
	DirectUserIDs     []string  `json:"direct_user_ids,omitempty" yaml:"direct_user_ids,omitempty"`
	CreatedAt         time.Time `json:"created_at,omitzero" yaml:"created_at,omitempty"`
	UpdatedAt         time.Time `json:"updated_at,omitzero" yaml:"updated_at,omitempty"`
}

// keyPattern restricts flag keys to a charset that survives URLs, metrics
// labels, and cache keys without escaping.
var keyPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]*$`)

// Validate checks creation-time invariants of the flag.
func (f *Flag) Validate() error {
	if f.Key == "" {
		return errors.Join(ErrValidation, errors.New("flag key is required"))
	}
	if !keyPattern.MatchString(f.Key) {
		return errors.Join(ErrValidation,
			fmt.Errorf("invalid flag key %q: lowercase letters, digits, '.', '_' and '-' only", f.Key))
	}
	if f.RolloutPercentage < 0 || f.RolloutPercentage > 100 {
		return errors.Join(ErrValidation,
			fmt.Errorf("rollout percentage %v is outside [0,100]", f.RolloutPercentage))
	}
	return nil
}

// IsDirectlyTargeted reports whether the user is always enabled for this flag.
func (f *Flag) IsDirectlyTargeted(userID string) bool {
	return userID != "" && slices.Contains(f.DirectUserIDs, userID)
}

// EvalContext carries optional request-scoped data used by segment matching.
type EvalContext struct {
	UserAgent  string            `json:"user_agent,omitempty"`
	IPAddress  string            `json:"ip_address,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Attribute returns the named attribute and whether it was present.
func (c *EvalContext) Attribute(name string) (string, bool) {
	if c == nil || c.Attributes == nil {
		return "", false
	}
	v, ok := c.Attributes[name]
	return v, ok
}
