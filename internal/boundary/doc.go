// Package boundary decides where the game starts and ends inside a combined
// recording.
//
// The static policy reads offsets straight from match_info.ini. The
// interactive policy runs a step search per side: a snapshot is pushed to the
// user with a yes/no question, "no" moves the candidate one step toward the
// middle of the recording and "yes" settles the side one step further out.
// Searches live in memory only; after a restart the reply history replayed by
// the notification server rebuilds them.
package boundary
