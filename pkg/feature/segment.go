package feature

import (
	"errors"
	"fmt"
	"net"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/dmitrymomot/flagkit/pkg/bucket"
)

// SegmentType classifies how a segment targets users.
type SegmentType string

const (
	SegmentTypeUserList  SegmentType = "user_list"
	SegmentTypeAttribute SegmentType = "attribute"
	SegmentTypeCustom    SegmentType = "custom"
)

// Segment is a prioritized targeting rule owned by exactly one flag.
// Higher priority segments are evaluated first; ties break by creation order.
type Segment struct {
	ID         string      `json:"id" yaml:"id"`
	FlagID     string      `json:"flag_id" yaml:"flag_id"`
	Name       string      `json:"name" yaml:"name"`
	Type       SegmentType `json:"type" yaml:"type"`
	Conditions []Condition `json:"conditions" yaml:"conditions"`
	Priority   int         `json:"priority" yaml:"priority"`
	Active     bool        `json:"active" yaml:"active"`
	CreatedAt  time.Time   `json:"created_at,omitzero" yaml:"created_at,omitempty"`
}

// ConditionKind tags one predicate rule inside a segment.
type ConditionKind string

const (
	// ConditionUserIn matches when the user ID is one of Values.
	ConditionUserIn ConditionKind = "user_in"
	// ConditionAttrEquals matches when the named attribute equals any of Values.
	ConditionAttrEquals ConditionKind = "attr_equals"
	// ConditionAttrNotEquals matches when the attribute is present and equals none of Values.
	ConditionAttrNotEquals ConditionKind = "attr_not_equals"
	// ConditionAttrContains matches when the attribute contains any of Values as a substring.
	ConditionAttrContains ConditionKind = "attr_contains"
	// ConditionIPInCIDR matches when the context IP falls inside any CIDR in Values.
	ConditionIPInCIDR ConditionKind = "ip_in_cidr"
	// ConditionUserAgentContains matches when the context user agent contains any of Values.
	ConditionUserAgentContains ConditionKind = "ua_contains"
	// ConditionPercentage matches a deterministic slice of the user population,
	// bucketed per segment so different segments cut the population differently.
	ConditionPercentage ConditionKind = "percentage"
)

// Condition is a single tagged predicate: a rule kind plus its operands.
// Unknown or malformed kinds never match, so a misconfigured segment can only
// narrow targeting, never widen it.
type Condition struct {
	Kind       ConditionKind `json:"kind" yaml:"kind"`
	Attribute  string        `json:"attribute,omitempty" yaml:"attribute,omitempty"`
	Values     []string      `json:"values,omitempty" yaml:"values,omitempty"`
	Percentage float64       `json:"percentage,omitempty" yaml:"percentage,omitempty"`
}

// Validate checks creation-time invariants of the segment.
func (s *Segment) Validate() error {
	if s.Name == "" {
		return errors.Join(ErrValidation, errors.New("segment name is required"))
	}
	if s.FlagID == "" {
		return errors.Join(ErrValidation, errors.New("segment flag id is required"))
	}
	for i, c := range s.Conditions {
		switch c.Kind {
		case ConditionPercentage:
			if c.Percentage < 0 || c.Percentage > 100 {
				return errors.Join(ErrValidation,
					fmt.Errorf("condition %d: percentage %v is outside [0,100]", i, c.Percentage))
			}
		case ConditionAttrEquals, ConditionAttrNotEquals, ConditionAttrContains:
			if c.Attribute == "" {
				return errors.Join(ErrValidation,
					fmt.Errorf("condition %d: attribute name is required for kind %q", i, c.Kind))
			}
		}
	}
	return nil
}

// Matches reports whether the user and context satisfy every condition of the
// segment. A segment without conditions matches nothing. Matching never
// returns an error: malformed operands fail closed to false.
func (s *Segment) Matches(userID string, ec *EvalContext) bool {
	if len(s.Conditions) == 0 {
		return false
	}
	for _, c := range s.Conditions {
		if !s.matchCondition(c, userID, ec) {
			return false
		}
	}
	return true
}

func (s *Segment) matchCondition(c Condition, userID string, ec *EvalContext) bool {
	switch c.Kind {
	case ConditionUserIn:
		return userID != "" && slices.Contains(c.Values, userID)

	case ConditionAttrEquals:
		v, ok := ec.Attribute(c.Attribute)
		return ok && slices.Contains(c.Values, v)

	case ConditionAttrNotEquals:
		v, ok := ec.Attribute(c.Attribute)
		return ok && !slices.Contains(c.Values, v)

	case ConditionAttrContains:
		v, ok := ec.Attribute(c.Attribute)
		if !ok {
			return false
		}
		for _, want := range c.Values {
			if want != "" && strings.Contains(v, want) {
				return true
			}
		}
		return false

	case ConditionIPInCIDR:
		if ec == nil || ec.IPAddress == "" {
			return false
		}
		ip := net.ParseIP(ec.IPAddress)
		if ip == nil {
			return false
		}
		for _, cidr := range c.Values {
			_, ipNet, err := net.ParseCIDR(cidr)
			if err != nil {
				continue // malformed operand never matches
			}
			if ipNet.Contains(ip) {
				return true
			}
		}
		return false

	case ConditionUserAgentContains:
		if ec == nil || ec.UserAgent == "" {
			return false
		}
		ua := strings.ToLower(ec.UserAgent)
		for _, want := range c.Values {
			if want != "" && strings.Contains(ua, strings.ToLower(want)) {
				return true
			}
		}
		return false

	case ConditionPercentage:
		return userID != "" && bucket.InRollout(userID, "segment:"+s.ID, c.Percentage)

	default:
		return false // unknown rule kinds fail closed
	}
}

// sortSegments orders segments for evaluation: priority descending, ties by
// creation time ascending, then by ID for records created within the same tick.
func sortSegments(segments []Segment) []Segment {
	sorted := slices.Clone(segments)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Priority != sorted[j].Priority {
			return sorted[i].Priority > sorted[j].Priority
		}
		if !sorted[i].CreatedAt.Equal(sorted[j].CreatedAt) {
			return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
		}
		return sorted[i].ID < sorted[j].ID
	})
	return sorted
}
