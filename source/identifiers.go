package source

import (
	"bufio"
	"os"
	"strings"
)

// ReadIdentifiers reads an identifier list, one identifier per line.
// Surrounding whitespace is trimmed and blank lines are skipped.
func ReadIdentifiers(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var identifiers []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			identifiers = append(identifiers, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return identifiers, nil
}

// WriteIdentifiers writes identifiers one per line with a trailing newline.
func WriteIdentifiers(path string, identifiers []string) error {
	var b strings.Builder
	for _, id := range identifiers {
		b.WriteString(id)
		b.WriteByte('\n')
	}
	return os.WriteFile(path, []byte(b.String()), 0644)
}
