// Package model abstracts text generation providers behind a single blocking
// interface. Agents treat one Generate call as an opaque operation bounded by
// the caller's context; provider adapters live in the subpackages.
package model
