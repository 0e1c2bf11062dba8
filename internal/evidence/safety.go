package evidence

import (
	"regexp"

	"triage/internal/config"
	"triage/internal/logging"
)

// Built-in deny-list for acquisition guidance commands. A diagnostic
// command suggestion must never be able to destroy state, widen
// permissions, execute remote code, or touch credential material.
var denyPatterns = []*regexp.Regexp{
	// Recursive or forced deletion
	regexp.MustCompile(`(?i)\brm\s+(-[a-z]*[rf][a-z]*\s+)+`),
	regexp.MustCompile(`(?i)\brmdir\s+`),
	regexp.MustCompile(`(?i)\bdel\s+/[sq]`),
	// Overly permissive modes
	regexp.MustCompile(`(?i)\bchmod\s+(-[a-z]+\s+)*[0-7]*77[0-7]*\b`),
	regexp.MustCompile(`(?i)\bchmod\s+(-[a-z]+\s+)*a\+rwx`),
	regexp.MustCompile(`(?i)\bchown\s+(-[a-z]+\s+)*root`),
	// Pipe-to-shell remote execution
	regexp.MustCompile(`(?i)\b(curl|wget)\b[^|;]*\|\s*(ba|z|da)?sh\b`),
	regexp.MustCompile(`(?i)\b(curl|wget)\b[^|;]*\|\s*sudo\b`),
	// Sensitive file paths
	regexp.MustCompile(`(?i)/etc/(shadow|passwd|sudoers)`),
	regexp.MustCompile(`(?i)(~|/home/[^/\s]+|/root)/\.ssh\b`),
	regexp.MustCompile(`(?i)\.aws/credentials`),
	regexp.MustCompile(`(?i)\.(npmrc|netrc|pgpass)\b`),
	// Destructive SQL
	regexp.MustCompile(`(?i)\bdrop\s+(table|database|schema)\b`),
	regexp.MustCompile(`(?i)\btruncate\s+table\b`),
	regexp.MustCompile(`(?i)\bdelete\s+from\s+\w+\s*(;|$)`),
	// Raw device and filesystem writes
	regexp.MustCompile(`(?i)\bdd\s+.*of=/dev/`),
	regexp.MustCompile(`(?i)\bmkfs\b`),
	regexp.MustCompile(`(?i)>\s*/dev/sd[a-z]`),
}

// SafetyFilter drops destructive commands from acquisition guidance.
type SafetyFilter struct {
	patterns []*regexp.Regexp
}

// NewSafetyFilter builds a filter from the built-in deny-list plus any
// configured extra patterns. Invalid extra patterns are logged and
// skipped rather than failing startup.
func NewSafetyFilter(cfg config.SafetyConfig) *SafetyFilter {
	patterns := make([]*regexp.Regexp, 0, len(denyPatterns)+len(cfg.ExtraDenyPatterns))
	patterns = append(patterns, denyPatterns...)
	for _, raw := range cfg.ExtraDenyPatterns {
		re, err := regexp.Compile(raw)
		if err != nil {
			logging.Evidence().Warnw("skipping invalid deny pattern", "pattern", raw, "error", err)
			continue
		}
		patterns = append(patterns, re)
	}
	return &SafetyFilter{patterns: patterns}
}

// Denied reports whether a command matches any deny pattern.
func (f *SafetyFilter) Denied(command string) bool {
	for _, re := range f.patterns {
		if re.MatchString(command) {
			return true
		}
	}
	return false
}

// FilterCommands returns the commands that pass the deny-list. Dropped
// entries are logged, never surfaced to the user.
func (f *SafetyFilter) FilterCommands(commands []string) []string {
	kept := make([]string, 0, len(commands))
	for _, cmd := range commands {
		if f.Denied(cmd) {
			logging.Evidence().Warnw("dropped unsafe guidance command", "command", cmd)
			continue
		}
		kept = append(kept, cmd)
	}
	return kept
}
