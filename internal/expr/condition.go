package expr

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Evaluate parses and evaluates a step condition against ctx. An empty
// condition is the default success() check. The grammar is deliberately
// tiny: status functions, exists(), negation, and string comparison.
//
//	success() | failure() | always()
//	exists('relative/path')
//	!<condition>
//	<value> == <value> | <value> != <value>
//	true | false
//
// A <value> is either a quoted literal or text that gets interpolated.
func Evaluate(cond string, ctx *Context) (bool, error) {
	cond = strings.TrimSpace(cond)
	if cond == "" {
		return !ctx.Failed, nil
	}

	// Negation binds tighter than comparison; "!=" is not a negation.
	if strings.HasPrefix(cond, "!") && !strings.HasPrefix(cond, "!=") {
		ok, err := Evaluate(cond[1:], ctx)
		if err != nil {
			return false, err
		}
		return !ok, nil
	}

	if lhs, rhs, op, found := splitComparison(cond); found {
		left, err := resolveValue(lhs, ctx)
		if err != nil {
			return false, err
		}
		right, err := resolveValue(rhs, ctx)
		if err != nil {
			return false, err
		}
		if op == "==" {
			return left == right, nil
		}
		return left != right, nil
	}

	switch cond {
	case "success()":
		return !ctx.Failed, nil
	case "failure()":
		return ctx.Failed, nil
	case "always()":
		return true, nil
	case "true":
		return true, nil
	case "false":
		return false, nil
	}

	if arg, ok := callArg(cond, "exists"); ok {
		return evalExists(arg, ctx)
	}

	return false, &ParseError{Expr: cond, Msg: "unrecognized condition"}
}

// splitComparison finds the first == or != outside quotes. Returns the
// trimmed operands and the operator.
func splitComparison(s string) (lhs, rhs, op string, found bool) {
	var quote rune
	runes := []rune(s)
	for i := 0; i < len(runes)-1; i++ {
		c := runes[i]
		if quote != 0 {
			if c == quote {
				quote = 0
			}
			continue
		}
		if c == '\'' || c == '"' {
			quote = c
			continue
		}
		if (c == '=' || c == '!') && runes[i+1] == '=' {
			return strings.TrimSpace(string(runes[:i])), strings.TrimSpace(string(runes[i+2:])), string(c) + "=", true
		}
	}
	return "", "", "", false
}

// resolveValue turns a comparison operand into a string: quoted literals
// are unwrapped, anything else is interpolated.
func resolveValue(s string, ctx *Context) (string, error) {
	if lit, ok := unquote(s); ok {
		return lit, nil
	}
	return Interpolate(s, ctx)
}

// unquote strips a matching pair of single or double quotes.
func unquote(s string) (string, bool) {
	if len(s) < 2 {
		return "", false
	}
	first := s[0]
	if (first == '\'' || first == '"') && s[len(s)-1] == first {
		inner := s[1 : len(s)-1]
		if !strings.ContainsRune(inner, rune(first)) {
			return inner, true
		}
	}
	return "", false
}

// callArg matches name('arg') or name("arg") and returns the raw argument.
func callArg(s, name string) (string, bool) {
	rest, ok := strings.CutPrefix(s, name+"(")
	if !ok {
		return "", false
	}
	rest, ok = strings.CutSuffix(rest, ")")
	if !ok {
		return "", false
	}
	arg, ok := unquote(strings.TrimSpace(rest))
	if !ok {
		return "", false
	}
	return arg, true
}

// evalExists checks whether a path relative to the branch workspace
// exists. Absolute paths and paths escaping the workspace are rejected.
func evalExists(path string, ctx *Context) (bool, error) {
	resolved, err := Interpolate(path, ctx)
	if err != nil {
		return false, err
	}
	if resolved == "" {
		return false, &ParseError{Expr: path, Msg: "exists() requires a path"}
	}
	if filepath.IsAbs(resolved) {
		return false, &ParseError{Expr: path, Msg: "exists() paths must be relative to the workspace"}
	}
	cleaned := filepath.Clean(resolved)
	if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return false, &ParseError{Expr: path, Msg: "exists() path escapes the workspace"}
	}
	_, err = os.Stat(filepath.Join(ctx.WorkDir, cleaned))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("exists(%q): %w", resolved, err)
	}
	return true, nil
}
