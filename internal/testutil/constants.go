// Package testutil provides shared test fixtures: mock HTTP backends for the
// model gateway and the home-automation API, and common test constants.
package testutil

// TestSigningKey is a fixed 32-byte key for audit signing in tests.
const TestSigningKey = "test-signing-key-1234567890123456"
