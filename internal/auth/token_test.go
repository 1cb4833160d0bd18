// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package auth_test

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/authgate/authgate/internal/auth"
)

func TestDeriveToken(t *testing.T) {
	t.Run("deterministic for identical inputs", func(t *testing.T) {
		a := auth.DeriveToken(1, "alice", "hash")
		b := auth.DeriveToken(1, "alice", "hash")
		assert.Equal(t, a, b)
	})

	t.Run("encodes id, username, and hash concatenated", func(t *testing.T) {
		token := auth.DeriveToken(42, "alice", "somehash")

		decoded, err := base64.StdEncoding.DecodeString(token)
		require.NoError(t, err)
		assert.Equal(t, "42alicesomehash", string(decoded))
	})

	t.Run("any input change produces a different token", func(t *testing.T) {
		base := auth.DeriveToken(1, "alice", "hash")
		assert.NotEqual(t, base, auth.DeriveToken(2, "alice", "hash"))
		assert.NotEqual(t, base, auth.DeriveToken(1, "alicia", "hash"))
		assert.NotEqual(t, base, auth.DeriveToken(1, "alice", "hash2"))
	})
}
