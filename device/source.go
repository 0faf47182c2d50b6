package device

import (
	"regexp"
	"strconv"
	"strings"
)

var entryPointPattern = regexp.MustCompile(`@kernel\s+void\s+([A-Za-z_][A-Za-z0-9_]*)\s*\(`)

// EntryPoints returns the names of the @kernel functions declared in an OKL
// source text, in declaration order and without duplicates.
func EntryPoints(source string) []string {
	matches := entryPointPattern.FindAllStringSubmatch(stripComments(source), -1)
	seen := make(map[string]bool, len(matches))
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		if seen[m[1]] {
			continue
		}
		seen[m[1]] = true
		names = append(names, m[1])
	}
	return names
}

// stripComments removes // and /* */ comments so commented-out kernels are
// not reported as entry points.
func stripComments(source string) string {
	var sb strings.Builder
	sb.Grow(len(source))
	for i := 0; i < len(source); i++ {
		if i+1 < len(source) && source[i] == '/' && source[i+1] == '/' {
			for i < len(source) && source[i] != '\n' {
				i++
			}
			if i < len(source) {
				sb.WriteByte('\n')
			}
			continue
		}
		if i+1 < len(source) && source[i] == '/' && source[i+1] == '*' {
			end := strings.Index(source[i+2:], "*/")
			if end < 0 {
				return sb.String()
			}
			i += end + 3
			continue
		}
		sb.WriteByte(source[i])
	}
	return sb.String()
}

// CheckBalanced reports the first unbalanced brace or parenthesis as a
// compiler-style log line, or "" when the source is balanced.
func CheckBalanced(source string) string {
	src := stripComments(source)
	var stack []byte
	line := 1
	for i := 0; i < len(src); i++ {
		c := src[i]
		switch c {
		case '\n':
			line++
		case '{', '(':
			stack = append(stack, c)
		case '}', ')':
			want := byte('{')
			if c == ')' {
				want = '('
			}
			if len(stack) == 0 || stack[len(stack)-1] != want {
				return "line " + strconv.Itoa(line) + ": error: unexpected '" + string(c) + "'"
			}
			stack = stack[:len(stack)-1]
		}
	}
	if len(stack) > 0 {
		return "line " + strconv.Itoa(line) + ": error: expected '" + closing(stack[len(stack)-1]) + "' at end of input"
	}
	return ""
}

func closing(open byte) string {
	if open == '(' {
		return ")"
	}
	return "}"
}
