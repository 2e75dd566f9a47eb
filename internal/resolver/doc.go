// Package resolver orchestrates an operator-supplied external resolver
// program: installing it from a URL or bundled template, invoking it per
// request over a file-based request/response protocol, caching results,
// and refreshing the program on a schedule.
//
// The program is untrusted and swappable. The package validates only that
// an installed artifact looks like a resolver (entry-point markers) and
// that the runtime can execute it; correctness of the resolution logic is
// the operator's contract with downstream players.
package resolver
