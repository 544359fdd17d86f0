// Package workflow drives recording groups through their lifecycle.
//
// The Manager runs one scheduling tick per poll interval. A tick lists the
// camera, hands new segments to the download manager, closes idle groups, and
// then walks every group once, starting whatever step its stage allows:
// combine and trim jobs go to the media pool, match info templates and
// boundary resolution run inline because they never block on tools.
//
// Downloads and media jobs run on separate pools so a long ffmpeg run never
// starves transfers. A shared in-flight set keyed by group ID keeps each group
// down to one running operation across both pools.
//
// Every transition is persisted through the state store before the next step
// is considered, so a restarted daemon resumes from whatever the last tick
// left on disk.
package workflow
