package reporting

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// ModuleName identifies this system in outgoing records and device occupancy
const ModuleName = "scanner"

// Station identifies the sending station and keys its record signatures
type Station struct {
	ID         string
	Passphrase string
}

// Record is the telemetry datagram sent for every hit. Every value is a
// string; Time is the send time in whole seconds.
type Record struct {
	StationID string `json:"stationid"`
	Lat       string `json:"lat"`
	Lng       string `json:"lng"`
	AGF       string `json:"agf"`
	Freq      string `json:"freq"`
	Pwr       string `json:"pwr"`
	OverPct   string `json:"overpct"`
	Step      string `json:"step"`
	Gain      string `json:"gain"`
	Module    string `json:"module"`
	JobID     string `json:"jobid"`
	CT        string `json:"ct"`
	Time      string `json:"time"`
	Sign      string `json:"sign"`
}

// NewRecord builds and signs the record for a hit on d
func NewRecord(station Station, agf int, d Data, overPct string, sent time.Time) Record {
	pwr := formatFloat(d.Power)
	sendTime := strconv.FormatInt(sent.Unix(), 10)

	return Record{
		StationID: station.ID,
		Lat:       d.Location.Lat,
		Lng:       d.Location.Lng,
		AGF:       strconv.Itoa(agf),
		Freq:      strconv.FormatInt(d.Frequency, 10),
		Pwr:       pwr,
		OverPct:   overPct,
		Step:      formatFloat(d.Step),
		Gain:      formatFloat(d.Gain),
		Module:    ModuleName,
		JobID:     d.JobID,
		CT:        strconv.FormatInt(d.CaptureTime, 10),
		Time:      sendTime,
		Sign:      Sign(station.Passphrase, pwr, sendTime),
	}
}

// Sign returns the lowercase hex MD5 of passphrase, pwr and sendTime concatenated
func Sign(passphrase, pwr, sendTime string) string {
	sum := md5.Sum([]byte(passphrase + pwr + sendTime))
	return hex.EncodeToString(sum[:])
}

// Verify checks the record signature against passphrase
func (r Record) Verify(passphrase string) bool {
	return r.Sign == Sign(passphrase, r.Pwr, r.Time)
}

// Marshal encodes the record as a datagram payload
func (r Record) Marshal() ([]byte, error) {
	return json.Marshal(r)
}

// formatFloat renders v in its shortest form, keeping a trailing ".0" on
// integral values so that 50 is sent as "50.0"
func formatFloat(v float64) string {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return strconv.FormatFloat(v, 'f', -1, 64)
	}

	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s
}
