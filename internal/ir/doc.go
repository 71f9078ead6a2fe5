// Package ir defines the canonical intermediate representation of a rule
// document: an ordered list of fingerprinted sections with optional
// parameterized plugs. Sources parse into it, exporters render from it, and
// all content hashing runs over its canonical serialization.
package ir
