/*
Package sink delivers classified scan outcomes.

The console sink writes the canonical result lines to stdout, the debug
log records reply tuples for test harnesses, and the broker fans events
out to in-process subscribers.  Sinks compose through Multi.
*/
package sink
