// Package output renders authmesh-cli results as a table, JSON or YAML.
//
// Struct fields are labelled by their json tag; a `table:"-"` tag hides a
// field from tables only.
package output
