// Package ingest turns external power readings into samples: CSV logs for
// replay and MQTT messages for live operation.
package ingest

import (
	"io"

	"solar_report/internal/model"
)

// Parser reads power samples from a source. Samples are returned in
// ascending time order.
type Parser interface {
	Parse(r io.Reader) ([]model.Sample, error)
}
