// Package cas holds the helpers every CAS browser scenario is written with:
// the out-of-band HTTP call, browser options, page navigation, the login
// form and text assertions. Helpers never retry; every failure is returned
// wrapped in one of the package sentinels so callers can classify it.
package cas
