package classify

import (
	"regexp"
	"strings"
)

// Class names a failure category. Class names double as output file
// suffixes, so they stay lowercase with underscores.
type Class string

const (
	ClassBrokenConn       Class = "broken_conn"
	ClassShortFile        Class = "short_file"
	ClassTimeout          Class = "timeout"
	ClassChksumMismatch   Class = "chksum_mismatches"
	ClassMissingFile      Class = "missing_file"
	ClassSrcPath          Class = "src_path_errors"
	ClassUnclassifiedRepl Class = "unclassified_repl_errors"
	ClassUnclassified     Class = "unclassified_errors"
)

// Rule maps raw error lines to a class. Pattern decides membership;
// Extract turns a matched line into its normalized "<context> <path>"
// form. Rules are evaluated in order and a matched line is removed from
// the pool, so the first matching rule wins.
type Rule struct {
	Class   Class
	Pattern *regexp.Regexp
	Extract func(line string) string
}

// denylist matches known-benign noise: reconnect chatter from flaky
// sessions and the harmless invalid-object-type complaint for collections.
// These lines are dropped silently, not counted as unclassified.
var denylist = []*regexp.Regexp{
	regexp.MustCompile(`cliReconnManager: .*, status = -305111`),
	regexp.MustCompile(`socket reconnected, retrying`),
	regexp.MustCompile(`replUtil: invalid repl objType 0 for `),
}

// reAnyPath pulls the first absolute path out of a line.
var reAnyPath = regexp.MustCompile(`(/[^\s,]+)`)

// reSrcPath matches the transfer tool's complaint about a vanished source
// path; the submatch is the path itself.
var reSrcPath = regexp.MustCompile(`replUtil: srcPath (/[^\s,]+) does not exist`)

// reReplError recognizes lines that came from a transfer attempt even when
// no specific rule matched, so they land in the repl catch-all rather than
// the generic one.
var reReplError = regexp.MustCompile(`status = -\d+|replUtil: `)

// DefaultRules returns the rule chain in priority order. Patterns are
// mutually exclusive in practice; the sequential-removal semantics make
// the order authoritative either way.
func DefaultRules() []Rule {
	return []Rule{
		{
			Class:   ClassBrokenConn,
			Pattern: regexp.MustCompile(`status = -4000\b.*SYS_HEADER_READ_LEN_ERR`),
			Extract: normalize("SYS_HEADER_READ_LEN_ERR"),
		},
		{
			Class:   ClassShortFile,
			Pattern: regexp.MustCompile(`status = -27000\b.*SYS_COPY_LEN_ERR`),
			Extract: normalize("SYS_COPY_LEN_ERR"),
		},
		{
			Class:   ClassTimeout,
			Pattern: regexp.MustCompile(`status = -115000\b.*SYS_SOCK_READ_TIMEDOUT`),
			Extract: normalize("SYS_SOCK_READ_TIMEDOUT"),
		},
		{
			Class:   ClassChksumMismatch,
			Pattern: regexp.MustCompile(`status = -314000\b.*USER_CHKSUM_MISMATCH`),
			Extract: normalize("USER_CHKSUM_MISMATCH"),
		},
		{
			Class:   ClassMissingFile,
			Pattern: regexp.MustCompile(`status = -510002\b.*UNIX_FILE_OPEN_ERR`),
			Extract: normalize("UNIX_FILE_OPEN_ERR"),
		},
		{
			Class:   ClassSrcPath,
			Pattern: reSrcPath,
			Extract: func(line string) string {
				if m := reSrcPath.FindStringSubmatch(line); len(m) == 2 {
					return "srcPath " + m[1]
				}
				return "srcPath " + strings.TrimSpace(line)
			},
		},
	}
}

// normalize builds an extractor emitting "<context> <path>" when the line
// carries a path and "<context> <line>" otherwise.
func normalize(context string) func(string) string {
	return func(line string) string {
		if p := reAnyPath.FindString(line); p != "" {
			return context + " " + p
		}
		return context + " " + strings.TrimSpace(line)
	}
}

// Denylisted reports whether a line is known-benign noise.
func Denylisted(line string) bool {
	for _, re := range denylist {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}
