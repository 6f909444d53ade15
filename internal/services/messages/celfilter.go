package messagesvc

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/cel-go/cel"

	"github.com/rzbill/courier/internal/envelope"
)

// celFilter wraps a compiled CEL program evaluated against each delivered
// envelope. When disabled, Eval always returns true.
type celFilter struct {
	prog    cel.Program
	enabled bool
}

func newCELFilter(expr string) (celFilter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return celFilter{enabled: false}, nil
	}
	env, err := cel.NewEnv(
		cel.Variable("topic", cel.StringType),
		cel.Variable("ts_ns", cel.IntType),
		cel.Variable("size", cel.IntType),
		cel.Variable("text", cel.StringType),
		// parsed JSON payload, null when the message is not JSON
		cel.Variable("json", cel.DynType),
		cel.Variable("now_ns", cel.IntType),
	)
	if err != nil {
		return celFilter{}, err
	}
	ast, iss := env.Parse(expr)
	if iss != nil && iss.Err() != nil {
		return celFilter{}, fmt.Errorf("%w: filter: %v", envelope.ErrInvalidArgument, iss.Err())
	}
	checked, iss2 := env.Check(ast)
	if iss2 != nil && iss2.Err() != nil {
		return celFilter{}, fmt.Errorf("%w: filter: %v", envelope.ErrInvalidArgument, iss2.Err())
	}
	prog, err := env.Program(checked)
	if err != nil {
		return celFilter{}, err
	}
	return celFilter{prog: prog, enabled: true}, nil
}

// Eval reports whether e passes the filter. Evaluation errors count as a miss.
func (f celFilter) Eval(e envelope.StoredEnvelope) bool {
	if !f.enabled {
		return true
	}
	var jsonObj any
	_ = json.Unmarshal(e.Message, &jsonObj)
	out, _, err := f.prog.Eval(map[string]any{
		"topic":  e.Topic,
		"ts_ns":  int64(e.TimestampNs),
		"size":   int64(len(e.Message)),
		"text":   string(e.Message),
		"json":   jsonObj,
		"now_ns": time.Now().UnixNano(),
	})
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}
