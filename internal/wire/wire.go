// Package wire holds the helper-process protocol vocabulary: frame titles, stdin
// response tokens, payload shapes, and argument vectors.
package wire

import (
	"strconv"
	"strings"
)

// Relay frame titles.
const (
	TitleAcceptFile      = "ACCEPT_FILE"
	TitleFileDestination = "FILE_DESTINATION"
	TitleFileWritten     = "FILE_WRITTEN"
)

// Tokens written to the relay's stdin.
const (
	AcceptToken  = "y\n"
	DeclineToken = "n\n"
)

// DestinationLine formats the destination directory reply.
func DestinationLine(dir string) string {
	return dir + "\n"
}

// OfferedFile is one entry of an inbound offer header.
type OfferedFile struct {
	Filename string `msgpack:"Filename" json:"filename"`
	Size     int64  `msgpack:"Size" json:"size"`
}

// Offer is the ACCEPT_FILE payload.
type Offer struct {
	From  string        `msgpack:"From" json:"from"`
	Files []OfferedFile `msgpack:"Files" json:"files"`
}

// TotalSize sums the offered file sizes.
func (o Offer) TotalSize() int64 {
	var total int64
	for _, f := range o.Files {
		total += f.Size
	}
	return total
}

// Common carries the flags shared by every helper invocation.
type Common struct {
	Port    int
	Adapter string
}

func (c Common) args() []string {
	args := []string{"--msgpack", "--port", strconv.Itoa(c.Port)}
	if strings.TrimSpace(c.Adapter) != "" {
		args = append(args, "--dev", c.Adapter)
	}
	return args
}

// RelayArgs builds the listener argument vector. The relay takes no subcommand.
func RelayArgs(c Common, name string) []string {
	args := []string{"--msgpack", "--name", name, "--port", strconv.Itoa(c.Port)}
	if strings.TrimSpace(c.Adapter) != "" {
		args = append(args, "--dev", c.Adapter)
	}
	return args
}

// ScanArgs builds the discovery argument vector.
func ScanArgs(c Common, include bool) []string {
	args := c.args()
	if include {
		args = append(args, "--include")
	}
	return append(args, "scan")
}

// SendArgs builds the transfer argument vector.
func SendArgs(c Common, name, address string, paths []string) []string {
	args := c.args()
	args = append(args, "--name", name, "send", address)
	return append(args, paths...)
}
