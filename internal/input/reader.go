package input

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// Reader collects scan targets from files and stdin. Blank lines and
// #-comments are skipped; surrounding whitespace is trimmed.
type Reader struct{}

// NewReader creates a new Reader.
func NewReader() *Reader {
	return &Reader{}
}

// ReadTargetsFromFile reads targets line by line from a file.
func (r *Reader) ReadTargetsFromFile(filePath string) ([]string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open targets file: %w", err)
	}
	defer file.Close()
	return r.readTargets(file)
}

// ReadTargetsFromStdin reads targets line by line from standard input.
func (r *Reader) ReadTargetsFromStdin() ([]string, error) {
	return r.readTargets(os.Stdin)
}

func (r *Reader) readTargets(src io.Reader) ([]string, error) {
	var targets []string
	scanner := bufio.NewScanner(src)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		targets = append(targets, line)
	}
	return targets, scanner.Err()
}
