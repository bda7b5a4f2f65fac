package export

import (
	"fmt"
	"time"

	ics "github.com/arran4/golang-ical"
)

// Event is one calendar entry in an ICS export.
type Event struct {
	UID         string
	Summary     string
	Description string
	Start       time.Time
	End         time.Time
	Created     time.Time
	Modified    time.Time
	Cancelled   bool
}

// ICSExporter renders events as an iCalendar feed.
type ICSExporter struct {
	productID string
}

// NewICSExporter constructs an ICS exporter with the PRODID to advertise.
func NewICSExporter(productID string) *ICSExporter {
	if productID == "" {
		productID = "-//lesson-calendar-api//EN"
	}
	return &ICSExporter{productID: productID}
}

// Render serialises events into a PUBLISH calendar named name.
func (e *ICSExporter) Render(name string, events []Event) ([]byte, error) {
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId(e.productID)
	if name != "" {
		cal.SetName(name)
	}

	for _, ev := range events {
		if ev.UID == "" {
			return nil, fmt.Errorf("ics event starting %s has no uid", ev.Start.Format(time.RFC3339))
		}
		event := cal.AddEvent(ev.UID)
		event.SetDtStampTime(ev.Modified.UTC())
		event.SetCreatedTime(ev.Created.UTC())
		event.SetModifiedAt(ev.Modified.UTC())
		event.SetStartAt(ev.Start.UTC())
		event.SetEndAt(ev.End.UTC())
		event.SetSummary(ev.Summary)
		if ev.Description != "" {
			event.SetDescription(ev.Description)
		}
		status := "CONFIRMED"
		if ev.Cancelled {
			status = "CANCELLED"
		}
		event.SetProperty(ics.ComponentPropertyStatus, status)
	}
	return []byte(cal.Serialize()), nil
}
