// Package sanitizer provides input normalization for identity data.
//
// All normalization functions are idempotent - applying them multiple times produces
// the same result. Functions handle invalid input gracefully by returning the
// best-effort normalized string; validation happens afterwards.
//
// Normalization includes:
//   - Strings: Collapse whitespace, trim leading/trailing spaces
//   - Names: Collapse whitespace, drop control characters
//   - Emails: Trim and lowercase, so uniqueness is case-insensitive
package sanitizer
