/*
Package scan implements the send/poll scheduler at the heart of ferret.

The driver alternates five phases over a single-threaded event loop:

	FILLING    refill the probe registry from the target enumerator up to
	           the high-water mark, then sort the queue by due time
	PACING     block until the bandwidth, packet-rate and per-host quotas
	           all permit the left-most record to be sent
	SENDING    issue non-blocking connects for every due record in the
	           permit batch, rotating each sent record to the right
	DRAINING   poll with zero timeout, classify each readiness event into
	           open / closed / unexpected, tombstone the record
	FINALIZING when the enumerator is exhausted and the registry empty,
	           run one last drain and compute throughput statistics

Sockets are owned by their probe record and closed the moment a verdict is
observed or the retry budget expires; leaving them open would let the
kernel retransmit the SYN and skew later verdicts.  Descriptor exhaustion
on socket creation is fatal with operator guidance; unreachable networks
and unrecognised event masks degrade to once-per-subject warnings.
*/
package scan
