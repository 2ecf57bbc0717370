package scan

import "errors"

var (
	// ErrFdExhausted means socket creation hit the open-file limit.  This
	// is fatal: the scan cannot make progress and the fix (lower -m or
	// raise ulimit -n) needs the operator.
	ErrFdExhausted = errors.New("too many open files (sockets); check 'ulimit -n', try a higher limit with 'ulimit -n NNNN' or limit max sockets (-m)")

	// errUnreachable marks a connect that failed with network-unreachable,
	// the normal outcome of probing a broadcast address.  The probe is
	// accounted as sent so quota arithmetic stays consistent.
	errUnreachable = errors.New("network is unreachable")
)
