package csvfile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"pdptw/internal/integrations"
	"pdptw/internal/opt"
)

const (
	DefaultDriverFile = "drivers.csv"
	DefaultOrderFile  = "orders.csv"
)

// Source reads drivers and orders from two files in one directory.
type Source struct {
	Dir        string
	DriverFile string
	OrderFile  string
}

var _ integrations.InstanceSource = Source{}

func (s Source) Name() string { return "csv-file" }

func (s Source) FetchDrivers(ctx context.Context) ([]opt.Driver, error) {
	name := s.DriverFile
	if name == "" {
		name = DefaultDriverFile
	}
	f, err := os.Open(filepath.Join(s.Dir, name))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadDrivers(f, name)
}

func (s Source) FetchOrders(ctx context.Context) ([]opt.Order, error) {
	name := s.OrderFile
	if name == "" {
		name = DefaultOrderFile
	}
	f, err := os.Open(filepath.Join(s.Dir, name))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadOrders(f, name)
}

// Sink writes the assignment file to Path, replacing any previous content.
type Sink struct {
	Path string
}

var _ integrations.SolutionSink = Sink{}

func (s Sink) Name() string { return "csv-file" }

func (s Sink) WriteAssignments(ctx context.Context, assignments []opt.Assignment) error {
	f, err := os.Create(s.Path)
	if err != nil {
		return err
	}
	if err := WriteAssignments(f, assignments); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", s.Path, err)
	}
	return f.Close()
}
