// Package config handles loading and validation of Keywarden
// configuration from YAML files and environment variables.
//
// Configuration precedence (later overrides earlier):
//  1. Hardcoded defaults
//  2. YAML file (configs/config.yaml)
//  3. Environment variables (KEYWARDEN_*)
package config
