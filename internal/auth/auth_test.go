package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticValidatorExactMatch(t *testing.T) {
	v := NewStaticValidator("hunter2")
	ctx := context.Background()

	ok, err := v.Validate(ctx, "anyone", "hunter2")
	require.NoError(t, err)
	assert.True(t, ok)

	for _, password := range []string{"", "Hunter2", "HUNTER2", "hunter2 ", " hunter2", "hunter", "hunter22", "hunter2\n"} {
		ok, err := v.Validate(ctx, "anyone", password)
		require.NoError(t, err)
		assert.False(t, ok, "password %q must be rejected", password)
	}
}

func TestStaticValidatorIgnoresUsername(t *testing.T) {
	v := NewStaticValidator("hunter2")
	for _, username := range []string{"", "mihawk", "名前", "a b c"} {
		ok, err := v.Validate(context.Background(), username, "hunter2")
		require.NoError(t, err)
		assert.True(t, ok)
	}
}

func TestStaticValidatorEmptySecret(t *testing.T) {
	ok, err := NewStaticValidator("").Validate(context.Background(), "u", "")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestValidatorFunc(t *testing.T) {
	var v Validator = ValidatorFunc(func(ctx context.Context, username, password string) (bool, error) {
		return username == password, nil
	})
	ok, _ := v.Validate(context.Background(), "x", "x")
	assert.True(t, ok)
}
