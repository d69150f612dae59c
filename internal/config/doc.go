// Package config loads and watches the routepulse configuration file
// (routepulse.yaml).
//
// Load(path) reads the YAML file, applies defaults (5m poll, 5-minute
// buckets, 5-day EMA, integrator deadband 2 / threshold 180 / decay 240),
// then validates required fields and positivity constraints; the decision
// engine rejects non-positive knobs rather than silently correcting them.
//
// Secrets never live in the file: api_key_env and url_env name environment
// variables that are resolved at use time, and Watch(ctx, path, onChange)
// hot-reloads the file via fsnotify, handling the rename→create pattern of
// atomic-save editors.
package config
