// Package domain contains the core model types, repository interfaces,
// and sentinel errors shared across the application. It has no dependencies
// on storage or transport packages.
package domain
