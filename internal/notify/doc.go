// Package notify delivers the post-insert notification for stored pushes.
//
// The retention store calls a single Delegate after each successful insert.
// Broadcaster implements Delegate and fans the event out to any number of
// subscribers (the SSE feed, tests, tooling). Fanout combines several
// delegates behind one.
package notify
