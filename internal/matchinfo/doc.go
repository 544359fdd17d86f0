// Package matchinfo handles match_info.ini, the per-group file that names
// the teams and location and optionally fixes the trim offsets.
//
// A group waits in awaiting_match_info until my_team_name,
// opponent_team_name and location are all non-blank. A start_time_offset
// selects static boundaries; without it the interactive search runs and
// writes the offsets it resolves back into the file.
package matchinfo
