// Package confloader loads relaygate configuration from a YAML file and
// RELAYGATE_ environment variables using koanf.
//
// Priority (highest to lowest):
//
//  1. Environment variables
//  2. Configuration file
//  3. Defaults already present in the target struct
//
// Environment names map to keys by lowercasing and turning "__" into the
// nesting separator, so RELAYGATE_TOKEN__WRITE_TTL sets token.write_ttl.
// Names without "__" fall back to splitting on every underscore.
//
// Watcher reports changes to a single config file, debounced, for the
// settings that can be applied at runtime.
package confloader
