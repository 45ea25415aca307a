package wizard

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acentrix/quotefunnel/internal/core"
)

func TestClassifyIdentity(t *testing.T) {
	t.Run("11 digits is individual", func(t *testing.T) {
		ctype, err := ClassifyIdentity("10000000146")
		require.NoError(t, err)
		assert.Equal(t, core.CustomerIndividual, ctype)
	})

	t.Run("10 digits is corporate", func(t *testing.T) {
		ctype, err := ClassifyIdentity("1234567890")
		require.NoError(t, err)
		assert.Equal(t, core.CustomerCorporate, ctype)
	})

	t.Run("wrong length", func(t *testing.T) {
		_, err := ClassifyIdentity("12345")
		assert.ErrorIs(t, err, core.ErrValidation)
	})

	t.Run("bad checksum", func(t *testing.T) {
		_, err := ClassifyIdentity("10000000147")
		assert.ErrorIs(t, err, core.ErrValidation)
	})

	t.Run("leading zero rejected", func(t *testing.T) {
		_, err := ClassifyIdentity("01000000146")
		assert.ErrorIs(t, err, core.ErrValidation)
	})

	t.Run("non-digits rejected", func(t *testing.T) {
		_, err := ClassifyIdentity("1000000014a")
		assert.ErrorIs(t, err, core.ErrValidation)
	})
}

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"5321234567", "5321234567", true},
		{"05321234567", "5321234567", true},
		{"+90 532 123 45 67", "5321234567", true},
		{"905321234567", "5321234567", true},
		{"0532 123 45 67", "5321234567", true},
		{"2121234567", "", false}, // landline, not mobile
		{"532123", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, err := NormalizePhone(tt.in)
		if tt.ok {
			require.NoError(t, err, tt.in)
			assert.Equal(t, tt.want, got)
		} else {
			assert.ErrorIs(t, err, core.ErrValidation, tt.in)
		}
	}
}

func TestValidateEmail(t *testing.T) {
	assert.NoError(t, ValidateEmail(""))
	assert.NoError(t, ValidateEmail("ayse@example.com"))
	assert.ErrorIs(t, ValidateEmail("not-an-email"), core.ErrValidation)
	assert.ErrorIs(t, ValidateEmail("@example.com"), core.ErrValidation)
}

func TestValidateBirthDate(t *testing.T) {
	now := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	assert.NoError(t, ValidateBirthDate("1990-05-15", now))
	assert.ErrorIs(t, ValidateBirthDate("15.05.1990", now), core.ErrValidation)
	assert.ErrorIs(t, ValidateBirthDate("1850-01-01", now), core.ErrValidation)
}
