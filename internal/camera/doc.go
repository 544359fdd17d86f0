// Package camera abstracts the recording devices soccer-cam pulls segments
// from.
//
// The Adapter interface is implemented by a closed set of variants selected
// with camera.type: Dahua IP cameras reached over their CGI interface with
// digest authentication, and Directory for mounted SD cards or NAS exports
// that keep the camera's date/time file naming. Monitor wraps an adapter to
// track reachability transitions.
package camera
