package csvfile

import (
	"encoding/csv"
	"io"
	"math"
	"strconv"

	"pdptw/internal/opt"
)

// Assignment file columns.
const (
	HeaderEstimatedPickup   = "estimated_pickuptime_sec"
	HeaderEstimatedDelivery = "estimated_delivery_sec"
)

// WriteAssignments writes one row per order with completion times rounded to
// whole seconds. Rows keep the order of the input slice.
func WriteAssignments(dst io.Writer, assignments []opt.Assignment) error {
	w := csv.NewWriter(dst)
	if err := w.Write([]string{HeaderOrderID, HeaderDriverID, HeaderEstimatedPickup, HeaderEstimatedDelivery}); err != nil {
		return err
	}
	for _, a := range assignments {
		rec := []string{
			strconv.Itoa(a.OrderID),
			strconv.Itoa(a.DriverID),
			strconv.FormatInt(int64(math.Round(a.PickupTime)), 10),
			strconv.FormatInt(int64(math.Round(a.DeliveryTime)), 10),
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
