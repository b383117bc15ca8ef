package envexec

// Status defines run task Status return status
type Status int

// Defines run task Status result status
const (
	// not initialized status (as error)
	StatusInvalid Status = iota

	// exit normally
	StatusAccepted

	// exit with error
	StatusMemoryLimitExceeded // MLE
	StatusTimeLimitExceeded   // TLE
	StatusNonzeroExitStatus   // NZS
	StatusSignalled           // SIG

	// the process could not be observed after start
	StatusInternalError
)

var statusToString = []string{
	"Invalid",
	"Accepted",
	"Memory Limit Exceeded",
	"Time Limit Exceeded",
	"Nonzero Exit Status",
	"Signalled",
	"Internal Error",
}

func (s Status) String() string {
	si := int(s)
	if si < 0 || si >= len(statusToString) {
		return statusToString[0] // invalid
	}
	return statusToString[si]
}
