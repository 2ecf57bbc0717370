/*
Package registry holds the bounded working set of in-flight probe records.

The registry is a double-ended queue plus a descriptor index.  The queue is
kept sorted by due time so the scan driver can answer "can I send the
left-most record now?" in O(1) and stop the send loop on the first negative
answer.  Records are never removed mid-queue: a finished record is
tombstoned (socket closed immediately, poller registration dropped) and
unlinked later when queue traversal reaches it, keeping sends and drains
O(1) amortised.

Invariants:

  - a record's socket appears exactly once in the descriptor index and once
    in the poller watch set
  - a tombstoned record owns no socket and has no poller registration
  - after Sort, tombstones sit left of all live records and the earliest
    due live record is leftmost
*/
package registry
