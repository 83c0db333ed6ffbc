package opt

import "errors"

var (
	// ErrInvalidInput reports malformed instance data or configuration.
	ErrInvalidInput = errors.New("invalid input")
	// ErrUnserviceableOrder reports an order no driver can feasibly take.
	ErrUnserviceableOrder = errors.New("unserviceable order")
	// ErrInfeasibleRoute reports a task sequence violating precedence or capacity.
	ErrInfeasibleRoute = errors.New("infeasible route")
	// ErrInfeasibleSolution reports an order unassigned or assigned more than once.
	ErrInfeasibleSolution = errors.New("infeasible solution")
	// ErrNoSolution reports that no complete solution could be built.
	ErrNoSolution = errors.New("no solution")
)
