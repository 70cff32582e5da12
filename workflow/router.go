package workflow

import (
	"context"
	"strings"

	"github.com/weftworks/agentweave/core"
)

// runRouter invokes the classifier once, matches its label against the route
// table, and forwards the original input to the selected agent. An unmatched
// label falls back to the default route when configured and fails with
// ROUTE_NOT_FOUND otherwise.
func (e *Engine) runRouter(ctx context.Context, def Definition, ec *core.ExecutionContext) (string, error) {
	input, _ := ec.Get(InputKey)

	label, err := e.invoke(ctx, def, "classifier", def.Classifier, input)
	if err != nil {
		return "", err
	}
	label = strings.TrimSpace(label)

	target, ok := matchRoute(def.Routes, label)
	if !ok {
		if def.DefaultRoute == "" {
			return "", core.Errorf(core.ErrRouteNotFound,
				"classifier label %q matches no route", label).WithStep("classifier").WithAgent(def.Classifier)
		}
		e.logger.Debug("router default route", "workflow", def.Name, "label", label)
		target = def.DefaultRoute
	}

	if err := ec.Set("route", target); err != nil {
		return "", err
	}
	return e.invoke(ctx, def, "route:"+target, target, input)
}

// matchRoute looks the label up in the table, tolerating case differences.
func matchRoute(routes map[string]string, label string) (string, bool) {
	if target, ok := routes[label]; ok {
		return target, true
	}
	for key, target := range routes {
		if strings.EqualFold(key, label) {
			return target, true
		}
	}
	return "", false
}
