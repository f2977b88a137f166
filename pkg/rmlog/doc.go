/*
Package rmlog provides the resource manager's structured logger, a
thin layer over github.com/rs/zerolog.

Every component gets a child logger tagged with its own name via
WithComponent. The RM additionally tags loggers with the
badge fields that identify the object a log line is about, since
almost every interesting log line here is "something happened to
object X owned by PD Y".
*/
package rmlog
