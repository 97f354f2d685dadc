// Package assets mints and verifies signed URLs for plugin asset
// distribution. Signatures are HMAC-SHA256 over a canonical pipe-delimited
// payload covering scope, owner, plugin coordinates, normalized path,
// expiry and share token; verification is constant-time.
package assets
