//go:build !linux || !cgo

package camera

// DefaultEventSource returns the platform event source. Non-Linux
// builds have no kernel event stream and run polling-only.
func DefaultEventSource() EventSource { return NullSource{} }
