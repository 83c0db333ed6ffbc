// Package csvfile reads driver and order files and writes assignment files in
// the comma separated layout used by the batch planner.
package csvfile

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"pdptw/internal/opt"
)

// Driver file columns.
const (
	HeaderDriverID   = "driver_id"
	HeaderCapacity   = "capacity"
	HeaderStartLat   = "start_location_lat"
	HeaderStartLng   = "start_location_long"
	HeaderShiftStart = "shift_start_sec"
	HeaderShiftEnd   = "shift_end_sec"
)

// Order file columns.
const (
	HeaderOrderID     = "order_id"
	HeaderPickupLat   = "restaurant_lat"
	HeaderPickupLng   = "restaurant_long"
	HeaderDeliveryLat = "customer_lat"
	HeaderDeliveryLng = "customer_long"
	HeaderItems       = "no_of_items"
	HeaderPrepTime    = "prep_duration_sec"
	HeaderPreferred   = "preferred_otd_sec"
)

// table walks the data rows of one file and parses fields by header name.
type table struct {
	name    string
	r       *csv.Reader
	headers []string
	row     []string
}

func newTable(src io.Reader, name string, known map[string]bool) (*table, error) {
	r := csv.NewReader(src)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	headers, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %s: missing header line", opt.ErrInvalidInput, name)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", opt.ErrInvalidInput, name, err)
	}
	for i, h := range headers {
		h = strings.Trim(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")), `"`)
		if !known[h] {
			return nil, fmt.Errorf("%w: %s: unknown header %q", opt.ErrInvalidInput, name, h)
		}
		headers[i] = h
	}
	return &table{name: name, r: r, headers: headers}, nil
}

// next advances to the following data row; it returns false at end of file.
func (t *table) next() (bool, error) {
	row, err := t.r.Read()
	if errors.Is(err, io.EOF) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: %s: %v", opt.ErrInvalidInput, t.name, err)
	}
	if len(row) != len(t.headers) {
		line, _ := t.r.FieldPos(0)
		return false, fmt.Errorf("%w: %s line %d: %d fields for %d headers", opt.ErrInvalidInput, t.name, line, len(row), len(t.headers))
	}
	t.row = row
	return true, nil
}

func (t *table) fieldErr(i int, err error) error {
	line, col := t.r.FieldPos(i)
	return fmt.Errorf("%w: %s line %d column %d (%s): %v", opt.ErrInvalidInput, t.name, line, col, t.headers[i], err)
}

func (t *table) parseInt(i int) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(t.row[i]))
	if err != nil {
		return 0, t.fieldErr(i, err)
	}
	return v, nil
}

func (t *table) parseFloat(i int) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(t.row[i]), 64)
	if err != nil {
		return 0, t.fieldErr(i, err)
	}
	return v, nil
}

func knownHeaders(hs ...string) map[string]bool {
	m := make(map[string]bool, len(hs))
	for _, h := range hs {
		m[h] = true
	}
	return m
}

// ReadDrivers parses a driver file. Shift bounds default to an open window
// starting at zero.
func ReadDrivers(src io.Reader, name string) ([]opt.Driver, error) {
	t, err := newTable(src, name, knownHeaders(HeaderDriverID, HeaderCapacity, HeaderStartLat, HeaderStartLng, HeaderShiftStart, HeaderShiftEnd))
	if err != nil {
		return nil, err
	}
	var drivers []opt.Driver
	for {
		ok, err := t.next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return drivers, nil
		}
		d := opt.Driver{Shift: opt.Unbounded(0)}
		for i := range t.row {
			switch t.headers[i] {
			case HeaderDriverID:
				d.ID, err = t.parseInt(i)
			case HeaderCapacity:
				d.Capacity, err = t.parseInt(i)
			case HeaderStartLat:
				d.Start.Lat, err = t.parseFloat(i)
			case HeaderStartLng:
				d.Start.Lng, err = t.parseFloat(i)
			case HeaderShiftStart:
				d.Shift.Start, err = t.parseFloat(i)
			case HeaderShiftEnd:
				d.Shift.End, err = t.parseFloat(i)
			}
			if err != nil {
				return nil, err
			}
		}
		drivers = append(drivers, d)
	}
}

// ReadOrders parses an order file. The preparation time opens the pickup
// window and the preferred delivery time closes the delivery window.
func ReadOrders(src io.Reader, name string) ([]opt.Order, error) {
	t, err := newTable(src, name, knownHeaders(HeaderOrderID, HeaderPickupLat, HeaderPickupLng, HeaderDeliveryLat, HeaderDeliveryLng, HeaderItems, HeaderPrepTime, HeaderPreferred))
	if err != nil {
		return nil, err
	}
	var orders []opt.Order
	for {
		ok, err := t.next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return orders, nil
		}
		var id, items int
		var pickup, delivery opt.Location
		pickupW, deliveryW := opt.Unbounded(0), opt.Unbounded(0)
		for i := range t.row {
			switch t.headers[i] {
			case HeaderOrderID:
				id, err = t.parseInt(i)
			case HeaderPickupLat:
				pickup.Lat, err = t.parseFloat(i)
			case HeaderPickupLng:
				pickup.Lng, err = t.parseFloat(i)
			case HeaderDeliveryLat:
				delivery.Lat, err = t.parseFloat(i)
			case HeaderDeliveryLng:
				delivery.Lng, err = t.parseFloat(i)
			case HeaderItems:
				items, err = t.parseInt(i)
			case HeaderPrepTime:
				pickupW.Start, err = t.parseFloat(i)
			case HeaderPreferred:
				deliveryW.End, err = t.parseFloat(i)
			}
			if err != nil {
				return nil, err
			}
		}
		orders = append(orders, opt.NewOrder(id, pickup, delivery, items, pickupW, deliveryW))
	}
}
