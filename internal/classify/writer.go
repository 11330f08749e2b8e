package classify

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// WriteReport writes one <prefix>.<class> file per non-empty class into
// dir. Output is deterministic: classifying the same log twice produces
// byte-identical files.
func WriteReport(dir, prefix string, report *Report) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}

	for _, class := range report.Order {
		lines := report.Classes[class]
		if len(lines) == 0 {
			continue
		}
		path := filepath.Join(dir, fmt.Sprintf("%s.%s", prefix, class))
		content := strings.Join(lines, "\n") + "\n"
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
	}
	return nil
}
