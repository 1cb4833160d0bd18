// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package auth_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/authgate/authgate/internal/auth"
	"github.com/authgate/authgate/pkg/errutil"
)

// testCost keeps hashing fast; the production cost is exercised only by
// checking the encoded prefix of a stored hash.
const testCost = bcrypt.MinCost

func TestBcryptHasher_HashAndVerify(t *testing.T) {
	hasher := auth.NewBcryptHasherWithCost(testCost)

	t.Run("round trip", func(t *testing.T) {
		hash, err := hasher.Hash("s3cret")
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(hash, "$2a$"))

		ok, err := hasher.Verify("s3cret", hash)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("wrong password mismatches without error", func(t *testing.T) {
		hash, err := hasher.Hash("s3cret")
		require.NoError(t, err)

		ok, err := hasher.Verify("wrong", hash)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("same password hashes differently each time", func(t *testing.T) {
		a, err := hasher.Hash("s3cret")
		require.NoError(t, err)
		b, err := hasher.Hash("s3cret")
		require.NoError(t, err)
		assert.NotEqual(t, a, b)
	})

	t.Run("empty password rejected", func(t *testing.T) {
		_, err := hasher.Hash("")
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "AUTH_EMPTY_PASSWORD")
	})

	t.Run("malformed hash is an error, not a mismatch", func(t *testing.T) {
		ok, err := hasher.Verify("s3cret", "not-a-bcrypt-hash")
		require.Error(t, err)
		assert.False(t, ok)
		errutil.AssertErrorCode(t, err, "AUTH_INVALID_HASH")
	})

	t.Run("hashes from other costs still verify", func(t *testing.T) {
		strong := auth.NewBcryptHasherWithCost(bcrypt.MinCost + 1)
		hash, err := strong.Hash("s3cret")
		require.NoError(t, err)

		ok, err := hasher.Verify("s3cret", hash)
		require.NoError(t, err)
		assert.True(t, ok)
	})
}

func TestNewBcryptHasherWithCost_OutOfRange(t *testing.T) {
	// Out-of-range costs fall back to the production cost; hashing with
	// it would be slow, so only construction is checked here.
	assert.NotNil(t, auth.NewBcryptHasherWithCost(-1))
	assert.NotNil(t, auth.NewBcryptHasherWithCost(bcrypt.MaxCost+1))
}
