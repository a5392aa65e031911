package runner

// Status is the final status of a guest run
type Status int

// Run statuses
const (
	StatusInvalid Status = iota // 0 not initialized
	// Normal
	StatusNormal // 1 exited zero

	// Guest outcome
	StatusNonzeroExitStatus // 2 exited nonzero
	StatusDisallowedSyscall // 3 proxied syscall denied by policy

	// Runner failure
	StatusRunnerError // 4 runner error
)

var statusString = []string{
	"Invalid",
	"",
	"Nonzero Exit Status",
	"Disallowed Syscall",
	"Runner Error",
}

func (s Status) String() string {
	i := int(s)
	if i >= 0 && i < len(statusString) {
		return statusString[i]
	}
	return statusString[0]
}

func (s Status) Error() string {
	return s.String()
}
