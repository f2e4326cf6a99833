//go:build !quarkdebug

package value

// DebugChecks enables programming-error assertions across quark. Build with
// -tags quarkdebug to turn them on.
const DebugChecks = false
