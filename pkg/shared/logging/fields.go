// Package logging provides a chainable structured-fields builder layered on
// top of zap, mirroring the teacher's standard-fields convention so every
// component logs the same vocabulary (component, operation, incident id,
// agent id, duration) instead of ad-hoc key names.
package logging

import (
	"time"

	"go.uber.org/zap"
)

// Fields is an ordered bag of structured attributes built up by chained
// setters and converted to zap.Field at the call site.
type Fields map[string]interface{}

func NewFields() Fields {
	return Fields{}
}

func (f Fields) Component(name string) Fields {
	f["component"] = name
	return f
}

func (f Fields) Operation(name string) Fields {
	f["operation"] = name
	return f
}

func (f Fields) Resource(resourceType, resourceName string) Fields {
	f["resource_type"] = resourceType
	if resourceName != "" {
		f["resource_name"] = resourceName
	}
	return f
}

func (f Fields) IncidentID(id string) Fields {
	f["incident_id"] = id
	return f
}

func (f Fields) AgentID(id string) Fields {
	f["agent_id"] = id
	return f
}

func (f Fields) Round(round uint64) Fields {
	f["round"] = round
	return f
}

func (f Fields) Duration(d time.Duration) Fields {
	f["duration_ms"] = d.Milliseconds()
	return f
}

func (f Fields) Err(err error) Fields {
	if err != nil {
		f["error"] = err.Error()
	}
	return f
}

// Zap converts the field bag into zap.Field slice, stable-ordered by key so
// log lines are diffable across runs.
func (f Fields) Zap() []zap.Field {
	out := make([]zap.Field, 0, len(f))
	for _, k := range fieldOrder {
		if v, ok := f[k]; ok {
			out = append(out, zap.Any(k, v))
		}
	}
	return out
}

// fieldOrder fixes the rendering order of well-known keys; unknown keys
// (added via custom chaining) are not emitted by Zap() to keep log lines
// deterministic — callers needing ad-hoc keys should use zap.Any directly.
var fieldOrder = []string{
	"component", "operation", "resource_type", "resource_name",
	"incident_id", "agent_id", "round", "duration_ms", "error",
}
