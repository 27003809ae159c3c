// Package roster reads candidate rosters and notification templates from
// the filesystem.
//
// A roster is a CSV file whose header row names the columns email,
// firstName and lastName (header cells are trimmed; other columns are
// ignored). A template is an HTML file read verbatim.
package roster
