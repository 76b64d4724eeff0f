// Moderation engine for group chats.
//
// Inbound group messages are scanned against a global filter word list (see the `keyword` package). A match can delete the message, warn the author, and escalate to a mute or ban, based on per-term rules and the group-wide policy. Admin slash commands (/warn, /mute, /ban, /addfilter, etc) drive the same actions by hand.
//
// Each event is processed in two phases: decisions are collected into an `Effects` value, then `persistEffects` applies them in order (violation state, platform enforcement, audit log, group replies, counters, flags, notifications). Violation state is committed before any platform call and is never rolled back.
//
// See `automod/telegram` for the chat platform binding, and `cmd/tgmod` for a daemon built on this package.
package engine
