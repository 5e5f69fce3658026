package wire

// Status is the framework-defined status space from spec.md §6; values
// >= StatusReservedMax are user-defined application codes.
type Status int32

const (
	StatusSuccess Status = iota
	StatusMethodNotFound
	StatusOverloaded
	StatusFailed
	StatusTimeout
	StatusNoPeer
	StatusMalformedData
	StatusOutOfService
	StatusFromUser
)

// StatusReservedMax is the boundary above which status values are
// user/application codes rather than framework-defined ones.
const StatusReservedMax Status = 1000
