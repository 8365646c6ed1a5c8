// Package agency defines the agency records tracked by calib and the
// calibration due-date logic built on top of them. It contains:
//
//   - Agency: the persisted record (contact, route/agency codes and the
//     append-only calibration and service-report history)
//   - Record: a synthesized view with the history sorted newest first and the
//     derived most-recent calibration date and due date
//   - the pure filters used by both the daemon and the CLI (due in a month,
//     due this month, text search)
//
// These types are shared across server, client and CLI code to keep JSON
// contracts consistent.
package agency
