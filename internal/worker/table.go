package worker

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"BotnetSpectra/internal/fault"
	"BotnetSpectra/internal/model"
)

// newTableReader returns a reader for flow tables: comma separated,
// variable field count, leading spaces trimmed.
func newTableReader(r io.Reader, skipFirstLine bool) (*csv.Reader, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true
	if skipFirstLine {
		if _, err := cr.Read(); err != nil && !errors.Is(err, io.EOF) {
			return nil, fault.Wrap(err, fault.KindInput, "cannot read table header")
		}
	}
	return cr, nil
}

// RunTable processes every flow of a flow table through w. It returns the
// number of flows read.
func RunTable(r io.Reader, skipFirstLine bool, w *Worker) (int64, error) {
	cr, err := newTableReader(r, skipFirstLine)
	if err != nil {
		return 0, err
	}

	var read int64
	for {
		fields, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return read, nil
		}
		if err != nil {
			return read, fault.Wrapf(err, fault.KindInput, "error processing flow %d", read)
		}
		flow, err := model.ParseFlowFields(fields)
		if err != nil {
			return read, fault.Wrapf(err, fault.KindInput, "error processing flow %d", read)
		}
		if err := w.Process(flow); err != nil {
			return read, fmt.Errorf("error processing flow %d: %w", read, err)
		}
		read++
	}
}
