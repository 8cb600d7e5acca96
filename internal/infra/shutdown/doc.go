// Package shutdown coordinates graceful process termination.
//
// Components register hooks as they start; Wait runs them in reverse on
// SIGINT, SIGTERM or an explicit Trigger such as the SHUTDOWN command.
package shutdown
