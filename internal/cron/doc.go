// Package cron implements cronbot's persistent job scheduler.
//
// # Schedules
//
// A job runs on exactly one of three schedules:
//
//   - AtSchedule: a single instant (one-shot). It never re-arms.
//   - EverySchedule: a fixed interval, measured from the moment the scheduler
//     decides the next run (wall clock), so missed ticks never burst.
//   - CronSchedule: a calendar expression ("*/5 * * * *", "0 30 9 * * 1-5",
//     "@daily"), evaluated in the schedule's timezone or UTC.
//
// # Loop
//
// Service.Start loads the job document, reconciles every enabled job's next run
// against the current time, then runs a single loop goroutine that sleeps until
// the earliest next run, dispatches due jobs sequentially and persists once per
// batch. Mutations (Add, Remove, Enable, Run) are safe to call concurrently with
// the loop; each persists before returning and wakes the loop so it re-evaluates
// its deadline.
//
// # Executor
//
// The work itself is done by an Executor held by the Service. It is called with
// the registry lock released, so a slow executor never blocks the API. Failures
// are recorded on the job (lastStatus=error) and never stop the loop.
package cron
