// Package config loads the streamcast configuration from the `server:`
// section of config.yaml.
//
// Config fields:
//   - HTTPPort      — port for the WebSocket endpoint, broadcast trigger,
//     health and metrics (default 8080)
//   - ReadDeadline  — per-frame read deadline; a silent connection is torn
//     down when it expires (default 60s)
//   - MaxPayload    — inbound frame payload cap in bytes (default 1 MiB)
//   - LogLevel      — debug | info | warn | error (default info)
//
// Load(path) applies defaults before unmarshalling, then validates.
// Watch(ctx, path, onChange) hot-reloads the file on write; ReadDeadline,
// MaxPayload and LogLevel take effect without a restart, HTTPPort does not.
package config
