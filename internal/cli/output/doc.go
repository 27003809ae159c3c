// Package output renders CLI results as a table, JSON or YAML.
//
// Values that implement Tabler choose their own columns; anything else
// falls back to YAML in table mode.
package output
