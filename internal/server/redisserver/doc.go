// Package redisserver serves the Redis protocol over TCP.
//
// Each connection gets its own goroutine that reads a command, runs it
// through the admission pipeline and collects the reply in an OutputBuffer.
// Replies to pipelined commands are flushed together once the input is
// drained. A connection that issues MONITOR stops serving commands and
// streams the command feed until it disconnects.
//
// Optional per-IP rate limiting uses token buckets from golang.org/x/time/rate.
package redisserver
