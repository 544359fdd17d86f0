// Package textutil provides filename sanitization helpers.
//
// CompactName builds the space-free team and venue components of finished
// game videos; SanitizeFileName and SanitizeToken clean free-form values for
// use as path segments and metric labels.
package textutil
