package classify

import (
	"bufio"
	"io"

	"go.uber.org/zap"
)

// Report is the outcome of one classification pass. Classes preserves the
// input order of the lines within each class; Order lists the classes in
// the order files should be written.
type Report struct {
	Classes map[Class][]string
	Order   []Class
	Total   int
	Dropped int
}

// Classified returns how many lines landed in a named class (catch-alls
// included).
func (r *Report) Classified() int {
	n := 0
	for _, lines := range r.Classes {
		n += len(lines)
	}
	return n
}

// Classify partitions lines into the rules' classes. Known-benign noise is
// dropped first. Each rule then removes its matches from the remaining
// pool (multiset semantics: duplicate identical lines are each classified
// exactly once, by the first rule that matches them). Whatever survives
// every rule lands in one of the two catch-all classes. Classification
// never fails; arbitrary input only grows the catch-alls.
func Classify(lines []string, rules []Rule, logger *zap.Logger) *Report {
	report := &Report{Classes: make(map[Class][]string)}

	pool := make([]string, 0, len(lines))
	for _, line := range lines {
		if Denylisted(line) {
			report.Dropped++
			continue
		}
		pool = append(pool, line)
	}
	report.Total = len(pool)

	classified := 0
	for _, rule := range rules {
		matched, rest := partition(pool, rule)
		pool = rest
		if len(matched) > 0 {
			report.Classes[rule.Class] = matched
			report.Order = append(report.Order, rule.Class)
		}
		classified += len(matched)
		logger.Info("classification pass",
			zap.String("class", string(rule.Class)),
			zap.Int("matched", len(matched)),
			zap.Int("classified", classified),
			zap.Int("total", report.Total),
		)
	}

	var replLeftover, otherLeftover []string
	for _, line := range pool {
		if reReplError.MatchString(line) {
			replLeftover = append(replLeftover, line)
		} else {
			otherLeftover = append(otherLeftover, line)
		}
	}
	if len(replLeftover) > 0 {
		report.Classes[ClassUnclassifiedRepl] = replLeftover
		report.Order = append(report.Order, ClassUnclassifiedRepl)
	}
	if len(otherLeftover) > 0 {
		report.Classes[ClassUnclassified] = otherLeftover
		report.Order = append(report.Order, ClassUnclassified)
	}

	logger.Info("classification finished",
		zap.Int("total", report.Total),
		zap.Int("dropped", report.Dropped),
		zap.Int("unclassified", len(replLeftover)+len(otherLeftover)),
	)
	return report
}

// partition splits the pool into the rule's normalized matches and the
// untouched remainder, both order-preserving.
func partition(pool []string, rule Rule) (matched, rest []string) {
	for _, line := range pool {
		if rule.Pattern.MatchString(line) {
			matched = append(matched, rule.Extract(line))
		} else {
			rest = append(rest, line)
		}
	}
	return matched, rest
}

// ReadLines reads a newline-delimited error log, skipping empty lines.
func ReadLines(r io.Reader) ([]string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var lines []string
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			lines = append(lines, line)
		}
	}
	return lines, scanner.Err()
}
