// Package notifier turns scheduler failure events into operator chat alerts.
//
// It subscribes to cron.job.failed and cron.store.error on the event bus,
// suppresses repeats of the same failure inside a dedup window, rate limits,
// and hands the text to a Sender (the Telegram bot in production). A small
// in-memory history of sent alerts is kept for the status command.
package notifier
