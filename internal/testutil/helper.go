// Package testutil provides a scriptable fake helper process for tests.
//
// A test package opts in by declaring
//
//	func TestHelperProcess(t *testing.T) { testutil.HelperMain() }
//
// and building commands with HelperCommand. The test binary then re-executes itself
// and plays the script given in the RAINDROP_HELPER_SCRIPT environment variable.
package testutil

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rbright/raindrop/internal/frame"
	"github.com/rbright/raindrop/internal/wire"
)

const (
	envWantHelper = "GO_WANT_HELPER_PROCESS"
	// EnvScript holds the ';'-separated script the helper plays.
	EnvScript = "RAINDROP_HELPER_SCRIPT"
	// EnvRecord names a file that receives one JSON line per helper event.
	EnvRecord = "RAINDROP_HELPER_RECORD"
)

// Record is one line of the helper record file.
type Record struct {
	PID   int      `json:"pid"`
	Kind  string   `json:"kind"`
	Args  []string `json:"args,omitempty"`
	Stdin string   `json:"stdin,omitempty"`
}

// HelperCommand builds a command that runs the current test binary as a fake helper.
func HelperCommand(script, recordPath string) func(name string, args ...string) *exec.Cmd {
	return func(name string, args ...string) *exec.Cmd {
		cmdArgs := []string{"-test.run=^TestHelperProcess$", "--", name}
		cmdArgs = append(cmdArgs, args...)

		cmd := exec.Command(os.Args[0], cmdArgs...)
		cmd.Env = append(os.Environ(),
			envWantHelper+"=1",
			EnvScript+"="+script,
			EnvRecord+"="+recordPath,
		)
		return cmd
	}
}

// ReadRecords parses the record file. A missing file yields no records.
func ReadRecords(path string) ([]Record, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []Record
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if line == "" {
			continue
		}
		var rec Record
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// Starts returns the records of helpers that began playing their script. A helper
// has its interrupt handler installed once its start record exists.
func Starts(records []Record) []Record {
	var out []Record
	for _, rec := range records {
		if rec.Kind == "start" {
			out = append(out, rec)
		}
	}
	return out
}

// HelperMain plays the script when running as a helper and exits. It returns
// immediately inside a normal test run.
func HelperMain() {
	if os.Getenv(envWantHelper) != "1" {
		return
	}
	os.Exit(play(os.Getenv(EnvScript)))
}

func play(script string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	record(Record{PID: os.Getpid(), Kind: "start", Args: helperArgs()})

	stdin := bufio.NewReader(os.Stdin)
	for _, step := range strings.Split(script, ";") {
		step = strings.TrimSpace(step)
		if step == "" {
			continue
		}
		verb, rest, _ := strings.Cut(step, " ")
		switch verb {
		case "out":
			title, value, _ := strings.Cut(rest, " ")
			writeFrame(os.Stdout, title, value, false)
		case "err":
			title, value, _ := strings.Cut(rest, " ")
			writeFrame(os.Stderr, title, map[string]string{"Err": value}, true)
		case "offer":
			from, files, _ := strings.Cut(rest, " ")
			writeFrame(os.Stdout, wire.TitleAcceptFile, parseOffer(from, files), false)
		case "raw":
			_, _ = os.Stdout.WriteString(rest)
		case "readline":
			line, err := stdin.ReadString('\n')
			if err != nil {
				return 3
			}
			record(Record{PID: os.Getpid(), Kind: "stdin", Stdin: line})
		case "sleep":
			d, err := time.ParseDuration(rest)
			if err != nil {
				return 4
			}
			select {
			case <-time.After(d):
			case <-ctx.Done():
				return 0
			}
		case "wait":
			<-ctx.Done()
			return 0
		case "ignoreint":
			signal.Ignore(os.Interrupt)
		case "exit":
			code, err := strconv.Atoi(rest)
			if err != nil {
				return 4
			}
			return code
		default:
			fmt.Fprintf(os.Stderr, "unknown helper step %q\n", verb)
			return 5
		}
	}
	return 0
}

func helperArgs() []string {
	args := os.Args
	for i, arg := range args {
		if arg == "--" {
			if i+2 <= len(args) {
				return append([]string(nil), args[i+2:]...)
			}
			return nil
		}
	}
	return nil
}

// parseOffer reads "name:size,name:size".
func parseOffer(from, files string) wire.Offer {
	offer := wire.Offer{From: from}
	for _, entry := range strings.Split(files, ",") {
		name, size, ok := strings.Cut(entry, ":")
		if !ok {
			continue
		}
		n, _ := strconv.ParseInt(size, 10, 64)
		offer.Files = append(offer.Files, wire.OfferedFile{Filename: name, Size: n})
	}
	return offer
}

func writeFrame(f *os.File, title string, data any, isError bool) {
	b, err := frame.Encode(title, data, isError)
	if err != nil {
		os.Exit(6)
	}
	_, _ = f.Write(b)
}

func record(rec Record) {
	path := os.Getenv(EnvRecord)
	if path == "" {
		return
	}
	line, err := json.Marshal(rec)
	if err != nil {
		return
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return
	}
	defer f.Close()
	_, _ = f.Write(append(line, '\n'))
}
