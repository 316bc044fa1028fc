package nightjar

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// LoadLabels reads the class names the detector was trained with from the
// given text file, one label per line in class index order.  Trailing blank
// lines are dropped, blank lines in between keep their index.
func LoadLabels(file string) ([]string, error) {

	f, err := os.Open(file)

	if err != nil {
		return nil, fmt.Errorf("error opening labels file: %w", err)
	}

	defer f.Close()

	scanner := bufio.NewScanner(f)

	var labels []string

	for scanner.Scan() {
		labels = append(labels, strings.TrimSpace(scanner.Text()))
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading labels file: %w", err)
	}

	for len(labels) > 0 && labels[len(labels)-1] == "" {
		labels = labels[:len(labels)-1]
	}

	if len(labels) == 0 {
		return nil, fmt.Errorf("labels file %s is empty", file)
	}

	return labels, nil
}
