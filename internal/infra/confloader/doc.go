// Package confloader loads configuration with koanf and watches the
// configuration file with fsnotify.
//
// Priority (highest to lowest):
//
//  1. Environment variables (MEMGATE_ prefix, "__" nests sections)
//  2. Configuration file (YAML)
//  3. Maps loaded with LoadMap (defaults)
package confloader
