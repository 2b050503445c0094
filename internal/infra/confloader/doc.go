// Package confloader loads AuthMesh configuration.
//
// Sources are applied in order, later ones winning:
//
//  1. the defaults already present in the target struct
//  2. a YAML file
//  3. environment variables (AUTHMESH_<SECTION>_<KEY>)
//
// Watcher reports changes to the configuration file so the hub can
// re-apply the settings that are safe to change at runtime.
package confloader
