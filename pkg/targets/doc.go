/*
Package targets enumerates scan targets lazily.

A target token is a dotted quad, an inclusive dashed range
(10.0.0.1-10.0.0.9) or a CIDR block (10.0.0.0/24, netmask between /8 and
/32, network and broadcast addresses included).  Tokens come from the
command line or from a file with one token per line and # comments.

The enumerator composes a host source with the ordered port list in
column-major order: every host is visited for the first port before any
host sees the second.  Sources stream and are restarted per port, so a
scan over millions of targets holds only the in-flight working set in
memory.
*/
package targets
