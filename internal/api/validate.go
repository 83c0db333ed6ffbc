package api

import (
	"fmt"
	"time"

	"pdptw/internal/model"
	"pdptw/internal/opt"
)

const planDateLayout = "2006-01-02"

func validateSolveRequest(req *model.SolveRequest) error {
	if req.PlanDate != "" {
		if _, err := time.Parse(planDateLayout, req.PlanDate); err != nil {
			return fmt.Errorf("%w: planDate must be YYYY-MM-DD, got %q", opt.ErrInvalidInput, req.PlanDate)
		}
	}
	if len(req.Drivers) == 0 {
		return fmt.Errorf("%w: at least one driver is required", opt.ErrInvalidInput)
	}
	if len(req.Orders) == 0 {
		return fmt.Errorf("%w: at least one order is required", opt.ErrInvalidInput)
	}
	for _, d := range req.Drivers {
		if d.Capacity <= 0 {
			return fmt.Errorf("%w: driver %d capacity must be > 0", opt.ErrInvalidInput, d.ID)
		}
		if err := validPoint(d.Start); err != nil {
			return fmt.Errorf("driver %d start: %w", d.ID, err)
		}
		if d.End != nil {
			if err := validPoint(*d.End); err != nil {
				return fmt.Errorf("driver %d end: %w", d.ID, err)
			}
		}
	}
	for _, o := range req.Orders {
		if o.Items <= 0 {
			return fmt.Errorf("%w: order %d items must be > 0", opt.ErrInvalidInput, o.ID)
		}
		if err := validPoint(o.Pickup); err != nil {
			return fmt.Errorf("order %d pickup: %w", o.ID, err)
		}
		if err := validPoint(o.Delivery); err != nil {
			return fmt.Errorf("order %d delivery: %w", o.ID, err)
		}
	}
	return nil
}

func validPoint(p model.GeoPoint) error {
	if p.Lat < -90 || p.Lat > 90 || p.Lng < -180 || p.Lng > 180 {
		return fmt.Errorf("%w: coordinates out of range (%v, %v)", opt.ErrInvalidInput, p.Lat, p.Lng)
	}
	return nil
}
