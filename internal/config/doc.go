// Package config loads, normalizes, and validates soccer-cam configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and layers secrets from .env files plus
// SOCCERCAM_* environment overrides on top. The Config type centralizes every
// knob the daemon and CLI need so storage paths, camera credentials, and retry
// policy are discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
