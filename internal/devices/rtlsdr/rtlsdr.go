// Package rtlsdr enumerates RTL-SDR dongles through librtlsdr.
package rtlsdr

import (
	"fmt"

	rtl "github.com/jpoirier/gortlsdr"
)

// Enumerator lists the RTL-SDR devices attached to this host
type Enumerator struct{}

func (Enumerator) Count() int {
	return rtl.GetDeviceCount()
}

func (Enumerator) Describe(index int) (name, serial string, err error) {
	name = rtl.GetDeviceName(index)

	_, _, serial, err = rtl.GetDeviceUsbStrings(index)
	if err != nil {
		return name, "", fmt.Errorf("rtlsdr: reading USB strings of device %d: %w", index, err)
	}

	return name, serial, nil
}
