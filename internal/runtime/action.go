// Package runtime implements the Agent Runtime: prompt assembly, the action
// protocol, guarded dispatch, planner/executor modes, and loop termination
// per spec.md §4.7.
package runtime

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Action kinds, the fixed vocabulary from spec.md §4.7/§6.5.
const (
	ActionListFiles    = "list_files"
	ActionReadFile     = "read_file"
	ActionSearchText   = "search_text"
	ActionWriteMemory  = "write_memory"
	ActionOrchStatus   = "orch_status"
	ActionSpawnDaemon  = "spawn_daemon"
	ActionRun          = "run"
	ActionExec         = "exec"
	ActionHTTPRequest  = "http_request"
	ActionEditFile     = "edit_file"
	ActionDone         = "done"
)

// Action is the closed sum type the LLM emits each iteration: one Kind
// discriminant with the per-variant fields relevant to that kind populated,
// per spec.md §9's "closed sum type" guidance and goa-ai's schema-validated
// tool-call payload pattern (registry/service.go's
// validatePayloadJSONAgainstSchema).
type Action struct {
	Kind string `json:"action"`

	Path    string `json:"path,omitempty"`
	Pattern string `json:"pattern,omitempty"`

	MemoryType string `json:"type,omitempty"`
	Topic      string `json:"topic,omitempty"`
	Text       string `json:"text,omitempty"`
	Choice     string `json:"choice,omitempty"`

	OrchID string `json:"orch_id,omitempty"`

	Objective     string `json:"objective,omitempty"`
	Wait          bool   `json:"wait,omitempty"`
	Timeout       int    `json:"timeout,omitempty"`
	MaxIterations int    `json:"max_iterations,omitempty"`

	Command string `json:"command,omitempty"`

	URL    string `json:"url,omitempty"`
	Method string `json:"method,omitempty"`

	Content string `json:"content,omitempty"`

	Summary string `json:"summary,omitempty"`
}

// actionSchema is the per-kind JSON Schema used to validate the raw payload
// before decoding, so a malformed or missing required field is rejected with
// a clear error rather than silently decoding into a zero-valued Action.
var actionSchemas = map[string]string{
	ActionListFiles:   `{"type":"object","required":["action","path"],"properties":{"action":{"const":"list_files"},"path":{"type":"string"}}}`,
	ActionReadFile:    `{"type":"object","required":["action","path"],"properties":{"action":{"const":"read_file"},"path":{"type":"string"}}}`,
	ActionSearchText:  `{"type":"object","required":["action","pattern"],"properties":{"action":{"const":"search_text"},"pattern":{"type":"string"}}}`,
	ActionWriteMemory: `{"type":"object","required":["action","type","topic","text"],"properties":{"action":{"const":"write_memory"},"type":{"type":"string"},"topic":{"type":"string"},"text":{"type":"string"}}}`,
	ActionOrchStatus:  `{"type":"object","required":["action","orch_id"],"properties":{"action":{"const":"orch_status"},"orch_id":{"type":"string"}}}`,
	ActionSpawnDaemon: `{"type":"object","required":["action","objective"],"properties":{"action":{"const":"spawn_daemon"},"objective":{"type":"string"}}}`,
	ActionRun:         `{"type":"object","required":["action","command"],"properties":{"action":{"const":"run"},"command":{"type":"string"}}}`,
	ActionExec:        `{"type":"object","required":["action","command"],"properties":{"action":{"const":"exec"},"command":{"type":"string"}}}`,
	ActionHTTPRequest: `{"type":"object","required":["action","url","method"],"properties":{"action":{"const":"http_request"},"url":{"type":"string"},"method":{"type":"string"}}}`,
	ActionEditFile:    `{"type":"object","required":["action","path","content"],"properties":{"action":{"const":"edit_file"},"path":{"type":"string"},"content":{"type":"string"}}}`,
	ActionDone:        `{"type":"object","required":["action","summary"],"properties":{"action":{"const":"done"},"summary":{"type":"string"}}}`,
}

var compiledSchemas = map[string]*jsonschema.Schema{}

func init() {
	for kind, raw := range actionSchemas {
		var doc any
		if err := json.Unmarshal([]byte(raw), &doc); err != nil {
			panic(fmt.Sprintf("runtime: invalid built-in schema for %q: %v", kind, err))
		}
		c := jsonschema.NewCompiler()
		resource := "action-" + kind + ".json"
		if err := c.AddResource(resource, doc); err != nil {
			panic(fmt.Sprintf("runtime: add schema resource for %q: %v", kind, err))
		}
		schema, err := c.Compile(resource)
		if err != nil {
			panic(fmt.Sprintf("runtime: compile schema for %q: %v", kind, err))
		}
		compiledSchemas[kind] = schema
	}
}

// ParseAction decodes raw LLM stdout into an Action: peek the "action"
// field, validate the full payload against that kind's schema, then decode
// into the typed struct. Returns an error naming the unknown kind or the
// schema violation rather than guessing at intent.
func ParseAction(raw []byte) (Action, error) {
	var peek struct {
		Action string `json:"action"`
	}
	if err := json.Unmarshal(raw, &peek); err != nil {
		return Action{}, fmt.Errorf("runtime: parse action envelope: %w", err)
	}
	schema, ok := compiledSchemas[peek.Action]
	if !ok {
		return Action{}, fmt.Errorf("runtime: unknown action kind %q", peek.Action)
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Action{}, fmt.Errorf("runtime: parse action payload: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return Action{}, fmt.Errorf("runtime: action %q failed schema validation: %w", peek.Action, err)
	}

	var action Action
	if err := json.Unmarshal(raw, &action); err != nil {
		return Action{}, fmt.Errorf("runtime: decode action %q: %w", peek.Action, err)
	}
	return action, nil
}
