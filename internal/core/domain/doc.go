// Package domain defines the error taxonomy shared by the kvgate core.
//
// Every rejection the admission pipeline or the concurrency layer can
// produce is a *DomainError with a stable code. The code drives metrics
// labels and log fields; the message is what the client sees after the
// "-ERR " prefix.
package domain
