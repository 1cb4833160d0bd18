// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package auth

import (
	"encoding/base64"
	"strconv"
)

// DeriveToken derives the session token for a user from its legacy ID,
// username, and password hash. The derivation is a pure function: the
// same inputs always yield the same token, and a user holds exactly one
// valid token at a time, reissued identically on every login.
//
// KNOWN LIMITATION: the token is plain base64 of the concatenated
// inputs. It is reversible and carries the password hash verbatim; it is
// NOT a cryptographically secure credential. The scheme is preserved for
// compatibility with tokens already issued by the system this replaces.
// See DESIGN.md before changing it.
func DeriveToken(legacyID int64, username, passwordHash string) string {
	raw := strconv.FormatInt(legacyID, 10) + username + passwordHash
	return base64.StdEncoding.EncodeToString([]byte(raw))
}
