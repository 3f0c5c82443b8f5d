// Package executor holds the Executor implementations cronbot wires into the
// scheduler: a logging executor, a channel router and a timeout wrapper.
// Delivery to Telegram lives in the telegram subpackage.
package executor
