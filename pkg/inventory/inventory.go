// Package inventory reads the line-oriented input files of a run: the device
// list and the command batch.
package inventory

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// LoadDevices reads newline-separated device names. Surrounding whitespace is
// trimmed and blank lines are skipped.
func LoadDevices(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open device list: %w", err)
	}
	defer f.Close()

	var devices []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		name := strings.TrimSpace(scanner.Text())
		if name == "" {
			continue
		}
		devices = append(devices, name)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read device list: %w", err)
	}
	return devices, nil
}

// LoadCommands reads the command batch. Every command keeps its own line
// terminator because the session driver sends commands verbatim.
func LoadCommands(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open command batch: %w", err)
	}
	defer f.Close()
	return ReadCommands(f)
}

// ReadCommands splits r into lines, terminators included.
func ReadCommands(r io.Reader) ([]string, error) {
	var commands []string
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			commands = append(commands, line)
		}
		if errors.Is(err, io.EOF) {
			return commands, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read command batch: %w", err)
		}
	}
}
