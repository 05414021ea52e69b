package validation

import (
	"errors"
	"testing"

	"github.com/mpslytherin/accounts/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type signup struct {
	Username string `json:"username" validate:"required,min=3,max=30,username"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6,max=72,password"`
}

type profileEdit struct {
	Username string `json:"username" validate:"omitempty,min=3,max=30,username"`
	FullName string `json:"fullName" validate:"omitempty,max=100"`
}

func TestStruct_Valid(t *testing.T) {
	assert.NoError(t, Struct(signup{Username: "alice_01", Email: "alice@example.com", Password: "Secret1"}))
	assert.NoError(t, Struct(profileEdit{}))
}

func TestStruct_FieldRules(t *testing.T) {
	tests := []struct {
		name    string
		in      signup
		field   string
		message string
	}{
		{"short username", signup{"al", "a@b.co", "Secret1"}, "username", "must be at least 3 characters"},
		{"long username", signup{"abcdefghijabcdefghijabcdefghijx", "a@b.co", "Secret1"}, "username", "must be at most 30 characters"},
		{"username charset", signup{"al ice", "a@b.co", "Secret1"}, "username", "may only contain letters, numbers and underscores"},
		{"bad email", signup{"alice", "not-an-email", "Secret1"}, "email", "must be a valid email address"},
		{"short password", signup{"alice", "a@b.co", "Se1"}, "password", "must be at least 6 characters"},
		{"weak password", signup{"alice", "a@b.co", "secret1"}, "password", "must contain at least one uppercase letter, one lowercase letter and one number"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Struct(tt.in)

			var ve *Error
			require.True(t, errors.As(err, &ve))
			require.Len(t, ve.Fields, 1)
			assert.Equal(t, tt.field, ve.Fields[0].Field)
			assert.Equal(t, tt.message, ve.Fields[0].Message)
		})
	}
}

func TestStruct_CollectsAllFailures(t *testing.T) {
	err := Struct(signup{})

	var ve *Error
	require.True(t, errors.As(err, &ve))
	require.Len(t, ve.Fields, 3)
	assert.Equal(t, "username: this field is required", ve.First())
	assert.Equal(t, []string{"username", "email", "password"},
		[]string{ve.Fields[0].Field, ve.Fields[1].Field, ve.Fields[2].Field})

	assert.True(t, errors.Is(err, models.ErrValidation))
	assert.Contains(t, err.Error(), "username: this field is required")
}

func TestStruct_OptionalFieldsStillChecked(t *testing.T) {
	err := Struct(profileEdit{Username: "x!"})

	var ve *Error
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "username", ve.Fields[0].Field)
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "alice@example.com", NormalizeEmail("  Alice@Example.COM "))
}
