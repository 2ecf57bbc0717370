/*
Package poller abstracts the OS readiness interfaces used to watch
non-blocking connect attempts.

Three interchangeable backends share one contract:

  - epoll: edge-notify, linux only, opt-in via -t epoll.  EPOLLRDHUP is the
    reliable RST signal.
  - poll: level-triggered, the automatic choice outside windows.
  - select: the automatic choice on windows and an explicit fallback
    elsewhere.  Caps the watch set at 511 sockets on windows and 1021
    elsewhere; the scan driver clamps its socket budget accordingly.

Backends report a backend-independent Mask (readable, writable, hangup,
error).  Which combination of bits means open versus closed differs per
backend, so verdict classification lives with the scan driver and switches
on Kind.
*/
package poller
