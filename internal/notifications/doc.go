// Package notifications talks to ntfy.
//
// Service publishes lifecycle events (group complete, group failed, match
// info needed) and degrades to a no-op when no topic is configured. The same
// topic doubles as the boundary confirmation channel: prompts carry a
// snapshot attachment and Yes/No/Not a game action buttons whose bodies
// embed the correlation token, and PollResponses reads the replies back from
// the topic's JSON feed.
package notifications
