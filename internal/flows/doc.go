// Package flows contains pure-function orchestrators for every engine
// operation.
//
// Each flow function (RunLogin, RunRefresh, RunLogout) accepts a typed
// dependency struct and returns a result value without side effects beyond
// those dependencies. The engine maps failure kinds to its public sentinel
// errors and emits audit events; flows never do either.
package flows
