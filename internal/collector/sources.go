package collector

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"TradeSentinel/internal/model"
)

// LoadSources reads one handle per line, skipping blanks and # comments.
// A leading @ is stripped. Order is preserved.
func LoadSources(path string) ([]model.Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open sources: %w", err)
	}
	defer f.Close()

	var sources []model.Source
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "@")
		if line == "" {
			continue
		}
		sources = append(sources, model.Source(line))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read sources: %w", err)
	}
	return sources, nil
}
