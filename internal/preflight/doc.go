// Package preflight provides readiness checks for the filesystem paths the
// trash daemon depends on.
//
// These checks run in two contexts:
//   - The daemon calls RunAll at startup and logs every failed check.
//   - The CLI "trashcan status" command renders the same results so an
//     operator can see why moves are failing.
package preflight
