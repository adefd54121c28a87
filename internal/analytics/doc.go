// Package analytics records per-user email logs and usage counters and
// derives reports from them.
//
// Counters are informational. Nothing in this package limits sending.
package analytics
