// Package delivery forwards finished reports to their consumers.
package delivery

import (
	"solar_report/internal/model"
)

// Sink receives a rendered report and its data.
type Sink interface {
	OnReport(message string, data model.DailyReportData)
}

// Fanout delivers each report to every sink in order.
type Fanout []Sink

func (f Fanout) OnReport(message string, data model.DailyReportData) {
	for _, s := range f {
		if s != nil {
			s.OnReport(message, data)
		}
	}
}

// Envelope is the JSON form of a delivered report.
type Envelope struct {
	Message string                `json:"message"`
	Data    model.DailyReportData `json:"data"`
}
