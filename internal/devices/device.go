package devices

import (
	"fmt"
	"time"
)

const (
	OccupantJob OccupantKind = iota + 1
	OccupantReserved
	OccupantOutOfCommission
)

// OccupantKind tells what holds a device
type OccupantKind int

func (k OccupantKind) String() string {
	switch k {
	case OccupantJob:
		return "job"
	case OccupantReserved:
		return "reserved"
	case OccupantOutOfCommission:
		return "out-of-commission"
	default:
		return "unknown"
	}
}

// Occupant is whatever currently holds a device: a scan job, an operator
// reservation, or the terminal out-of-commission marker
type Occupant struct {
	Kind   OccupantKind `json:"kind"`
	Module string       `json:"module,omitempty"`
	JobID  string       `json:"jobID,omitempty"`
	Since  time.Time    `json:"since"`
}

func (o *Occupant) String() string {
	switch o.Kind {
	case OccupantJob:
		return fmt.Sprintf("%s job %s", o.Module, o.JobID)
	case OccupantReserved:
		return "*** Reserved"
	case OccupantOutOfCommission:
		return "*** Out of commission"
	default:
		return "*** Unknown"
	}
}

// Device is a physical RTL-SDR dongle or a pseudo device hosting a remote job
type Device struct {
	Index    int       `json:"index"`
	Name     string    `json:"name"`
	Serial   string    `json:"serial,omitempty"`
	PPM      int       `json:"ppm"`
	Usable   bool      `json:"usable"`
	Reserved bool      `json:"reserved"`
	Pseudo   bool      `json:"pseudo"`
	Occupant *Occupant `json:"occupant,omitempty"`
}

func (d *Device) clone() Device {
	c := *d
	if d.Occupant != nil {
		o := *d.Occupant
		c.Occupant = &o
	}
	return c
}
