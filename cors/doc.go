// Package cors negotiates cross-origin access for the badge service.
//
// Preflight answers are built from the route table's own allowed-methods
// report, so the advertised methods are always accurate per path. When
// the browser asks for one specific method that is allowed, only that
// method is disclosed.
package cors
