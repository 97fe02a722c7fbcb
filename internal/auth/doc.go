// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package auth resolves chat credentials to identities.
//
// Accounts and web sessions are issued by the todo application's login
// flow; this package only reads them. A client presents the plaintext
// session token, which is hashed and looked up in the web_sessions table.
//
// # Admins
//
// A user is an admin when its is_admin flag is set or its email matches
// one of the configured admin patterns (see AdminMatcher).
package auth
