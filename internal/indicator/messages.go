package indicator

import (
	"fmt"
	"strings"
)

const (
	unknownSender = "Someone"
	errorText     = "File transfer error"
)

// offerText is the inbound-offer line for a sender and file count.
func offerText(from string, files int) string {
	from = strings.TrimSpace(from)
	if from == "" {
		from = unknownSender
	}
	switch {
	case files == 1:
		return fmt.Sprintf("%s wants to send you a file", from)
	case files > 1:
		return fmt.Sprintf("%s wants to send you %d files", from, files)
	default:
		return fmt.Sprintf("%s wants to send you files", from)
	}
}
