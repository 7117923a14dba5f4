package session

import "fmt"

// EvaluateHandle synthesises JavaScript source that invokes fnSource (an
// expression evaluating to a callable) with a single JSON-encoded
// argument, evaluated in frameId's scope — the "eval style" helper in
// spec.md §4.3. Implementers in Go pass the function source directly
// rather than stringifying a Go closure; the stringification convenience
// described in the spec is a scripting-language ergonomic with no Go
// analogue.
func (s *Session) EvaluateHandle(frameId int, fnSource string, arg interface{}) (Variable, error) {
	argJSON, err := json.Marshal(arg)
	if err != nil {
		return Variable{}, fmt.Errorf("session: encode EvaluateHandle arg: %w", err)
	}
	expr := fmt.Sprintf("(%s)(%s)", fnSource, argJSON)
	return s.Evaluate(frameId, expr, ContextWatch)
}

// EvaluateHandleGlobal synthesises JavaScript source that invokes
// fnSource in the debuggee's global scope via `new Function`, rather
// than the currently selected frame — the "global style" helper in
// spec.md §4.3.
func (s *Session) EvaluateHandleGlobal(frameId int, fnSource string, arg interface{}) (Variable, error) {
	argJSON, err := json.Marshal(arg)
	if err != nil {
		return Variable{}, fmt.Errorf("session: encode EvaluateHandleGlobal arg: %w", err)
	}
	expr := fmt.Sprintf(`(new Function("return (%s)(arguments[0])"))(%s)`, fnSource, argJSON)
	return s.Evaluate(frameId, expr, ContextWatch)
}
