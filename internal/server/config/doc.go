// Package config defines the hub configuration structure.
//
// Default returns a complete configuration; confloader overlays the file
// and the environment onto it. Verify checks the result and Sanitize
// returns a copy that is safe to log. The To* functions translate the
// sections into the option structs of the components they configure.
package config
