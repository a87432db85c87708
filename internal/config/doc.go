// Package config loads, normalizes, and validates lectern's TOML
// configuration. Lookup order: explicit --config path, then
// ~/.config/lectern/config.toml, then ./lectern.toml, then built-in defaults.
package config
