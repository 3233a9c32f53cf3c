package feature_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/flagkit/pkg/feature"
)

func TestSegmentMatches(t *testing.T) {
	t.Parallel()

	t.Run("NoConditionsMatchesNothing", func(t *testing.T) {
		t.Parallel()
		seg := feature.Segment{Name: "empty"}
		assert.False(t, seg.Matches("user-1", nil))
	})

	t.Run("UserIn", func(t *testing.T) {
		t.Parallel()
		seg := feature.Segment{
			Name:       "testers",
			Conditions: []feature.Condition{{Kind: feature.ConditionUserIn, Values: []string{"u1", "u2"}}},
		}
		assert.True(t, seg.Matches("u2", nil))
		assert.False(t, seg.Matches("u3", nil))
		assert.False(t, seg.Matches("", nil))
	})

	t.Run("AttrEquals", func(t *testing.T) {
		t.Parallel()
		seg := feature.Segment{
			Name: "de-users",
			Conditions: []feature.Condition{
				{Kind: feature.ConditionAttrEquals, Attribute: "country", Values: []string{"DE", "AT"}},
			},
		}
		assert.True(t, seg.Matches("u1", &feature.EvalContext{Attributes: map[string]string{"country": "DE"}}))
		assert.False(t, seg.Matches("u1", &feature.EvalContext{Attributes: map[string]string{"country": "US"}}))
		assert.False(t, seg.Matches("u1", &feature.EvalContext{}))
		assert.False(t, seg.Matches("u1", nil))
	})

	t.Run("AttrNotEqualsRequiresPresence", func(t *testing.T) {
		t.Parallel()
		seg := feature.Segment{
			Name: "non-free",
			Conditions: []feature.Condition{
				{Kind: feature.ConditionAttrNotEquals, Attribute: "plan", Values: []string{"free"}},
			},
		}
		assert.True(t, seg.Matches("u1", &feature.EvalContext{Attributes: map[string]string{"plan": "pro"}}))
		assert.False(t, seg.Matches("u1", &feature.EvalContext{Attributes: map[string]string{"plan": "free"}}))
		// Absent attribute fails closed instead of counting as "not equal".
		assert.False(t, seg.Matches("u1", nil))
	})

	t.Run("AttrContains", func(t *testing.T) {
		t.Parallel()
		seg := feature.Segment{
			Name: "corp-emails",
			Conditions: []feature.Condition{
				{Kind: feature.ConditionAttrContains, Attribute: "email", Values: []string{"@corp.example"}},
			},
		}
		assert.True(t, seg.Matches("u1", &feature.EvalContext{Attributes: map[string]string{"email": "jo@corp.example"}}))
		assert.False(t, seg.Matches("u1", &feature.EvalContext{Attributes: map[string]string{"email": "jo@gmail.com"}}))
	})

	t.Run("IPInCIDR", func(t *testing.T) {
		t.Parallel()
		seg := feature.Segment{
			Name: "office",
			Conditions: []feature.Condition{
				{Kind: feature.ConditionIPInCIDR, Values: []string{"10.0.0.0/8", "not-a-cidr"}},
			},
		}
		assert.True(t, seg.Matches("u1", &feature.EvalContext{IPAddress: "10.1.2.3"}))
		assert.False(t, seg.Matches("u1", &feature.EvalContext{IPAddress: "192.168.1.1"}))
		assert.False(t, seg.Matches("u1", &feature.EvalContext{IPAddress: "garbage"}))
		assert.False(t, seg.Matches("u1", nil))
	})

	t.Run("UserAgentContainsCaseInsensitive", func(t *testing.T) {
		t.Parallel()
		seg := feature.Segment{
			Name: "mobile",
			Conditions: []feature.Condition{
				{Kind: feature.ConditionUserAgentContains, Values: []string{"iPhone"}},
			},
		}
		assert.True(t, seg.Matches("u1", &feature.EvalContext{UserAgent: "Mozilla/5.0 (IPHONE; CPU iPhone OS)"}))
		assert.False(t, seg.Matches("u1", &feature.EvalContext{UserAgent: "curl/8.0"}))
	})

	t.Run("PercentageDeterministicPerSegment", func(t *testing.T) {
		t.Parallel()
		seg := feature.Segment{
			ID:   "seg-1",
			Name: "half",
			Conditions: []feature.Condition{
				{Kind: feature.ConditionPercentage, Percentage: 50},
			},
		}
		first := seg.Matches("user-42", nil)
		for range 50 {
			assert.Equal(t, first, seg.Matches("user-42", nil))
		}
		assert.False(t, seg.Matches("", nil))
	})

	t.Run("UnknownKindFailsClosed", func(t *testing.T) {
		t.Parallel()
		seg := feature.Segment{
			Name:       "broken",
			Conditions: []feature.Condition{{Kind: "regex_match", Values: []string{".*"}}},
		}
		assert.False(t, seg.Matches("u1", &feature.EvalContext{}))
	})

	t.Run("AllConditionsMustHold", func(t *testing.T) {
		t.Parallel()
		seg := feature.Segment{
			Name: "de-testers",
			Conditions: []feature.Condition{
				{Kind: feature.ConditionUserIn, Values: []string{"u1"}},
				{Kind: feature.ConditionAttrEquals, Attribute: "country", Values: []string{"DE"}},
			},
		}
		assert.True(t, seg.Matches("u1", &feature.EvalContext{Attributes: map[string]string{"country": "DE"}}))
		assert.False(t, seg.Matches("u1", &feature.EvalContext{Attributes: map[string]string{"country": "US"}}))
		assert.False(t, seg.Matches("u2", &feature.EvalContext{Attributes: map[string]string{"country": "DE"}}))
	})
}

func TestSegmentValidate(t *testing.T) {
	t.Parallel()

	t.Run("RequiresNameAndFlagID", func(t *testing.T) {
		t.Parallel()
		seg := feature.Segment{FlagID: "f1"}
		require.ErrorIs(t, seg.Validate(), feature.ErrValidation)

		seg = feature.Segment{Name: "s1"}
		require.ErrorIs(t, seg.Validate(), feature.ErrValidation)
	})

	t.Run("PercentageBounds", func(t *testing.T) {
		t.Parallel()
		seg := feature.Segment{
			Name: "s1", FlagID: "f1",
			Conditions: []feature.Condition{{Kind: feature.ConditionPercentage, Percentage: 150}},
		}
		require.ErrorIs(t, seg.Validate(), feature.ErrValidation)
	})

	t.Run("AttributeKindsRequireAttributeName", func(t *testing.T) {
		t.Parallel()
		seg := feature.Segment{
			Name: "s1", FlagID: "f1",
			Conditions: []feature.Condition{{Kind: feature.ConditionAttrEquals, Values: []string{"x"}}},
		}
		require.ErrorIs(t, seg.Validate(), feature.ErrValidation)
	})

	t.Run("Valid", func(t *testing.T) {
		t.Parallel()
		seg := feature.Segment{
			Name: "s1", FlagID: "f1", Type: feature.SegmentTypeAttribute,
			Conditions: []feature.Condition{{Kind: feature.ConditionAttrEquals, Attribute: "plan", Values: []string{"pro"}}},
		}
		require.NoError(t, seg.Validate())
	})
}
