// Package debug formats LT-BUS frames for traces.
package debug

import (
	"fmt"

	"github.com/knieriem/ltbus"
)

// FormatFrame returns a trace line for frame. If the frame is long
// enough to be split, the header and trailer are set in parentheses
// around the payload: "<- conn [2] (7b 00 aa 00 a0 02 00) 00 10 (c8 3b 7d)".
func FormatFrame(msgDir string, frame []byte, err error, connName string) string {
	s := ""
	if msgDir != "" {
		s += msgDir + " "
	}
	s += connName
	n := len(frame)
	if n < ltbus.HeaderSize+ltbus.TrailerSize {
		if n == 0 {
			s += " [0]"
		} else {
			s += fmt.Sprintf(" [%d] % x", n, frame)
		}
	} else {
		end := n - ltbus.TrailerSize
		payload := frame[ltbus.HeaderSize:end]
		s += fmt.Sprintf(" [%d] (% x)", len(payload), frame[:ltbus.HeaderSize])
		if len(payload) != 0 {
			s += fmt.Sprintf(" % x", payload)
		}
		s += fmt.Sprintf(" (% x)", frame[end:])
	}
	if err != nil {
		s += " error: " + err.Error()
	}
	return s
}
