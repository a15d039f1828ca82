package flow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/accountsync/internal/org"
	"github.com/roach88/accountsync/internal/record"
)

// Invoke pushes payload through h and blocks until the flow returns.
//
// Any fault raised by the flow is wrapped in an execution error unless it
// is already a flow Error (e.g. an uninitialised handle).
func Invoke(ctx context.Context, h *Handle, payload any, vars map[string]string) (*Event, error) {
	ev := &Event{ID: h.tokens.Generate(), Payload: payload, Variables: vars}
	if ev.Variables == nil {
		ev.Variables = map[string]string{}
	}

	h.logger.Debug("flow invoked", "flow", h.Name(), "event", ev.ID)
	out, err := h.Process(ctx, ev)
	if err != nil {
		var fe *Error
		if errors.As(err, &fe) {
			return nil, err
		}
		return nil, NewExecutionError(h.Name(), err)
	}
	if out == nil {
		out = ev.Reply(nil)
	}
	return out, nil
}

// InvokeCreate runs a create flow for records and returns the identifier
// assigned to the first one.
func InvokeCreate(ctx context.Context, h *Handle, records ...record.Record) (string, error) {
	out, err := Invoke(ctx, h, records, nil)
	if err != nil {
		return "", err
	}
	results, ok := out.Payload.([]org.SaveResult)
	if !ok {
		return "", NewExecutionError(h.Name(), fmt.Errorf("unexpected create payload %T", out.Payload))
	}
	if len(results) == 0 {
		return "", NewExecutionError(h.Name(), errors.New("create returned no results"))
	}
	first := results[0]
	if !first.Success || first.ID == "" {
		return "", NewExecutionError(h.Name(), fmt.Errorf("create failed: %s", strings.Join(first.Errors, "; ")))
	}
	return first.ID, nil
}

// InvokeQuery runs a query flow for criteria and returns the matched
// record's fields. found is false when nothing matched.
func InvokeQuery(ctx context.Context, h *Handle, criteria record.Fields) (fields record.Fields, found bool, err error) {
	out, err := Invoke(ctx, h, criteria, nil)
	if err != nil {
		return nil, false, err
	}
	if out.Payload == nil {
		return nil, false, nil
	}
	fields, ok := out.Payload.(record.Fields)
	if !ok {
		return nil, false, NewExecutionError(h.Name(), fmt.Errorf("unexpected query payload %T", out.Payload))
	}
	if fields == nil {
		return nil, false, nil
	}
	return fields, true, nil
}

// InvokeDelete runs a delete flow for ids. An empty id list is a valid
// invocation and returns no results.
func InvokeDelete(ctx context.Context, h *Handle, ids []string) ([]org.DeleteResult, error) {
	if ids == nil {
		ids = []string{}
	}
	out, err := Invoke(ctx, h, ids, nil)
	if err != nil {
		return nil, err
	}
	if out.Payload == nil {
		return nil, nil
	}
	results, ok := out.Payload.([]org.DeleteResult)
	if !ok {
		return nil, NewExecutionError(h.Name(), fmt.Errorf("unexpected delete payload %T", out.Payload))
	}
	return results, nil
}
