// Package tokenstore provides durable key-value storage for the signed-in session.
//
// A session is a small record of string keys (access token, refresh token and
// the JSON-encoded user profile). Every backend reads and replaces the whole
// record at once so that a save or a sign-out is never half applied:
//   - File: a single JSON document written with temp file + rename and 0600 permissions
//   - Keyring: OS-native credential storage (macOS Keychain, Windows Credential Manager, etc.)
//   - Env: read-only environment variables (externally provisioned sessions, CI)
//
// Signing in requires writable storage (file or keyring).
package tokenstore
