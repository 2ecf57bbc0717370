/*
Package rate paces the scan with three independent quota calculators.

The governor tracks a bytes-per-second budget, an optional global
packets-per-second budget, and the per-host minimum spacing.  Each budget
is expressed as a wall-clock target (bandwidth times elapsed time) so the
scan converges on the configured rate regardless of burst shape.
WaitForQuotas blocks until all three constraints admit the left-most
queued probe, running receive passes at least every RecvInterval so
replies are not lost during pacing sleeps.
*/
package rate
