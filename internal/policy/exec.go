package policy

import (
	"path/filepath"
	"regexp"
	"strings"
)

// execActionNames are action names treated as shell or process execution.
var execActionNames = map[string]struct{}{
	"exec":        {},
	"bash":        {},
	"shell":       {},
	"process":     {},
	"run_command": {},
}

// execAllowlist holds read-only utilities the agent may run.
var execAllowlist = map[string]struct{}{
	"ls":     {},
	"cat":    {},
	"head":   {},
	"tail":   {},
	"wc":     {},
	"grep":   {},
	"pwd":    {},
	"echo":   {},
	"date":   {},
	"whoami": {},
	"which":  {},
	"file":   {},
	"stat":   {},
	"du":     {},
	"df":     {},
	"diff":   {},
	"git":    {},
}

// writeOptions are options that make an allowlisted utility write files,
// run external programs or change system state. Long options also match
// their unambiguous abbreviations.
var writeOptions = map[string][]string{
	"date": {"-s", "--set"},
	"file": {"-C", "--compile"},
	"git":  {"--output", "--ext-diff"},
}

// gitReadOnly lists git subcommands that never modify the repository.
var gitReadOnly = map[string]struct{}{
	"status":    {},
	"log":       {},
	"diff":      {},
	"show":      {},
	"rev-parse": {},
	"ls-files":  {},
	"blame":     {},
}

// controlPatterns match shell constructs that would run more than the
// leading executable. Compiled once at init.
var controlPatterns = []*regexp.Regexp{
	// sequencing and pipes
	regexp.MustCompile(`[;|&]`),
	// command substitution
	regexp.MustCompile("`"),
	regexp.MustCompile(`\$\(`),
	// redirection
	regexp.MustCompile(`[<>]`),
	// embedded newlines
	regexp.MustCompile(`[\r\n]`),
}

// IsExecAction reports whether name is a shell or process action.
func IsExecAction(name string) bool {
	_, ok := execActionNames[strings.ToLower(strings.TrimSpace(name))]
	return ok
}

// ExecCommand extracts the command string from an exec action.
func ExecCommand(action Action) string {
	if cmd := action.StringParam("command"); cmd != "" {
		return cmd
	}
	return action.StringParam("cmd")
}

// CheckExecCommand reports whether command may run under the allowlist,
// with a reason when it may not.
func CheckExecCommand(command string) (bool, string) {
	command = strings.TrimSpace(command)
	if command == "" {
		return false, "exec action has no command"
	}
	for _, pat := range controlPatterns {
		if pat.MatchString(command) {
			return false, "command contains shell control operators"
		}
	}

	fields := strings.Fields(command)
	binary := filepath.Base(fields[0])
	if _, ok := execAllowlist[binary]; !ok {
		return false, "executable " + quote(binary) + " is not on the exec allowlist"
	}

	args := fields[1:]
	if opt, ok := findWriteOption(binary, args); ok {
		return false, "option " + quote(opt) + " of " + quote(binary) + " is not read-only"
	}

	if binary == "git" {
		sub := ""
		for _, f := range args {
			if strings.HasPrefix(f, "-c") || strings.HasPrefix(f, "--config-env") {
				return false, "git configuration overrides are not allowed"
			}
			if !strings.HasPrefix(f, "-") {
				sub = f
				break
			}
		}
		if _, ok := gitReadOnly[sub]; !ok {
			if sub == "" {
				return false, "git requires a read-only subcommand"
			}
			return false, "git subcommand " + quote(sub) + " is not read-only"
		}
	}
	return true, ""
}

func findWriteOption(binary string, args []string) (string, bool) {
	for _, arg := range args {
		for _, opt := range writeOptions[binary] {
			if matchesOption(arg, opt) {
				return opt, true
			}
		}
	}
	return "", false
}

// matchesOption reports whether arg selects opt. Short options match
// inside clusters such as -zC.
func matchesOption(arg, opt string) bool {
	if strings.HasPrefix(opt, "--") {
		if !strings.HasPrefix(arg, "--") {
			return false
		}
		name, _, _ := strings.Cut(arg, "=")
		return len(name) > 3 && strings.HasPrefix(opt, name)
	}
	if strings.HasPrefix(arg, "--") || !strings.HasPrefix(arg, "-") || len(arg) < 2 {
		return false
	}
	return strings.ContainsRune(arg[1:], rune(opt[1]))
}

// LeadingExecutable returns the base name of the first token of command.
func LeadingExecutable(command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return ""
	}
	return filepath.Base(fields[0])
}

func quote(s string) string {
	return "'" + s + "'"
}
