// Package expr implements the small expression dialect used in workflow
// files: ${{ ... }} interpolation and step-level if: conditions.
package expr

import (
	"fmt"
	"regexp"
	"strings"
)

// refPattern matches a single ${{ ... }} placeholder.
var refPattern = regexp.MustCompile(`\$\{\{([^{}]*)\}\}`)

// Context carries the values available to expressions for one branch:
// the matrix combination, the effective environment as of the current
// step, and the branch state the status functions inspect.
type Context struct {
	// Matrix maps dimension names to the branch's chosen values.
	Matrix map[string]string
	// Env is the step's effective environment.
	Env map[string]string
	// WorkDir is the directory exists() paths resolve against.
	WorkDir string
	// Failed reports whether an earlier step in the branch failed.
	Failed bool
}

// ParseError describes an expression the engine could not parse.
type ParseError struct {
	Expr string
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid expression %q: %s", e.Expr, e.Msg)
}

// Interpolate replaces every ${{ matrix.NAME }} and ${{ env.NAME }}
// placeholder in s with its value from ctx. Unknown references are an
// error rather than an empty substitution, so a typo in a workflow
// fails loudly instead of producing a silently wrong command line.
func Interpolate(s string, ctx *Context) (string, error) {
	var firstErr error
	out := refPattern.ReplaceAllStringFunc(s, func(match string) string {
		inner := strings.TrimSpace(refPattern.FindStringSubmatch(match)[1])
		val, err := resolveRef(inner, ctx)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		return val
	})
	if firstErr != nil {
		return "", firstErr
	}
	if idx := strings.Index(out, "${{"); idx != -1 {
		return "", &ParseError{Expr: s, Msg: "unterminated ${{ placeholder"}
	}
	return out, nil
}

// resolveRef resolves a single placeholder body like "matrix.python-version".
func resolveRef(ref string, ctx *Context) (string, error) {
	name, ok := strings.CutPrefix(ref, "matrix.")
	if ok {
		if ctx == nil || ctx.Matrix == nil {
			return "", &ParseError{Expr: ref, Msg: "no matrix in scope"}
		}
		val, found := ctx.Matrix[name]
		if !found {
			return "", &ParseError{Expr: ref, Msg: fmt.Sprintf("matrix has no dimension %q", name)}
		}
		return val, nil
	}

	name, ok = strings.CutPrefix(ref, "env.")
	if ok {
		if ctx == nil || ctx.Env == nil {
			return "", &ParseError{Expr: ref, Msg: "no environment in scope"}
		}
		val, found := ctx.Env[name]
		if !found {
			return "", &ParseError{Expr: ref, Msg: fmt.Sprintf("environment has no variable %q", name)}
		}
		return val, nil
	}

	return "", &ParseError{Expr: ref, Msg: "unknown context (expected matrix.* or env.*)"}
}

// InterpolateMap interpolates every value of in, returning a new map.
// Keys are copied verbatim.
func InterpolateMap(in map[string]string, ctx *Context) (map[string]string, error) {
	if len(in) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		val, err := Interpolate(v, ctx)
		if err != nil {
			return nil, fmt.Errorf("value for %q: %w", k, err)
		}
		out[k] = val
	}
	return out, nil
}
