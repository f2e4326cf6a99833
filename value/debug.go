//go:build quarkdebug

package value

// DebugChecks enables programming-error assertions across quark.
const DebugChecks = true
