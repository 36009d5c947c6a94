// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cron parses 5-field cron expressions and drives recurring
// jobs from them.
//
//	┌───────────── minute (0-59)
//	│ ┌───────────── hour (0-23)
//	│ │ ┌───────────── day of month (1-31)
//	│ │ │ ┌───────────── month (1-12)
//	│ │ │ │ ┌───────────── day of week (0-7, 0 and 7 are Sunday)
//	│ │ │ │ │
//	* * * * *
//
// Fields accept values, ranges (1-5), lists (1,3,5), steps (*/15,
// 1-30/5) and the wildcard. The shortcuts @hourly, @daily (@midnight),
// @weekly, @monthly and @yearly (@annually) expand to their 5-field
// equivalents. When both day fields are restricted a day matches if
// either matches, as in Vixie cron. All times are UTC.
//
// [Runner] executes a job once at start and then at every occurrence
// of a schedule. A run never overlaps the previous one: if a job is
// still running when its next occurrence passes, that occurrence is
// skipped and the runner waits for the following one. The payment
// channel check uses this to reconcile against remote state without
// two checks acting on the same snapshot.
package cron
