package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func ts(t time.Time) *time.Time { return &t }

func TestEffectiveStatus(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	t.Run("closed stays closed regardless of window", func(t *testing.T) {
		s := &Section{Status: SectionClosed, ApplyEndAt: ts(now.Add(time.Hour))}
		assert.Equal(t, SectionClosed, EffectiveStatus(s, now))
	})

	t.Run("open with lapsed window reads closed", func(t *testing.T) {
		s := &Section{Status: SectionOpen, ApplyEndAt: ts(now.Add(-time.Minute))}
		assert.Equal(t, SectionClosed, EffectiveStatus(s, now))
	})

	t.Run("open within window stays open", func(t *testing.T) {
		s := &Section{
			Status:       SectionOpen,
			ApplyStartAt: ts(now.Add(-time.Hour)),
			ApplyEndAt:   ts(now.Add(time.Hour)),
		}
		assert.Equal(t, SectionOpen, EffectiveStatus(s, now))
	})

	t.Run("open without end date stays open", func(t *testing.T) {
		s := &Section{Status: SectionOpen}
		assert.Equal(t, SectionOpen, EffectiveStatus(s, now))
	})

	t.Run("end boundary is inclusive", func(t *testing.T) {
		s := &Section{Status: SectionOpen, ApplyEndAt: ts(now)}
		assert.Equal(t, SectionOpen, EffectiveStatus(s, now))
	})
}

func TestIsFull(t *testing.T) {
	assert.False(t, (&Section{Remaining: 1}).IsFull())
	assert.True(t, (&Section{Remaining: 0}).IsFull())
	assert.True(t, (&Section{Remaining: -1}).IsFull())
}

func TestNormalizePhone(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"010-1234-5678", "01012345678"},
		{" 010 1234 5678 ", "01012345678"},
		{"+82 10-1234-5678", "821012345678"},
		{"01012345678", "01012345678"},
		{"", ""},
	}
	for _, tc := range cases {
		got := NormalizePhone(tc.in)
		assert.Equal(t, tc.want, got, "input %q", tc.in)
		// normalizing twice changes nothing
		assert.Equal(t, got, NormalizePhone(got))
	}
}

func TestValidMobilePhone(t *testing.T) {
	valid := []string{"0101234567", "01012345678", "0119876543"}
	for _, p := range valid {
		assert.True(t, ValidMobilePhone(p), p)
	}

	invalid := []string{
		"",
		"010123456",     // too short
		"010123456789",  // too long
		"0212345678",    // landline prefix
		"010-1234-5678", // not normalized
		"abc",
	}
	for _, p := range invalid {
		assert.False(t, ValidMobilePhone(p), p)
	}
}

func TestProfileIsAdmin(t *testing.T) {
	assert.True(t, Profile{Role: RoleAdmin}.IsAdmin())
	assert.False(t, Profile{Role: RoleUser}.IsAdmin())
	assert.False(t, Profile{}.IsAdmin())
}
