package integrations

import (
	"context"
	"fmt"

	"pdptw/internal/opt"
)

// InstanceSource defines the minimal interface for driver/order inputs of a
// planning run.
type InstanceSource interface {
	Name() string
	FetchDrivers(ctx context.Context) ([]opt.Driver, error)
	FetchOrders(ctx context.Context) ([]opt.Order, error)
}

// SolutionSink receives the assignments of a finished run.
type SolutionSink interface {
	Name() string
	WriteAssignments(ctx context.Context, assignments []opt.Assignment) error
}

// LoadInstance reads drivers and orders from src and validates them as one
// instance.
func LoadInstance(ctx context.Context, src InstanceSource, opts ...opt.InstanceOption) (*opt.Instance, error) {
	drivers, err := src.FetchDrivers(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: drivers: %w", src.Name(), err)
	}
	orders, err := src.FetchOrders(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: orders: %w", src.Name(), err)
	}
	inst, err := opt.NewInstance(drivers, orders, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", src.Name(), err)
	}
	return inst, nil
}
