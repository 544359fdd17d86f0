// Package preflight provides readiness checks for the camera, the storage
// root, and the external services soccer-cam depends on.
//
// These checks run in two contexts:
//   - The daemon calls RunAll at startup and logs every failure; the
//     workflow still starts so a camera that comes online later is picked up.
//   - The CLI "soccercam status" command uses the individual check functions
//     to display service health when the daemon is not running.
//
// Checks for optional features are skipped when the feature is not
// configured.
package preflight
