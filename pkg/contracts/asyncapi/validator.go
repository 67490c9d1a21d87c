package asyncapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"
)

// EventTypeKey is the schema extension naming the CloudEvents type a
// component schema describes
const EventTypeKey = "x-event-type"

// EventValidator checks CloudEvents payloads against the component schemas
// of an AsyncAPI document
type EventValidator struct {
	schemas map[string]*jsonschema.Schema
}

// Document is the subset of an AsyncAPI document the validator reads
type Document struct {
	AsyncAPI   string     `yaml:"asyncapi"`
	Info       Info       `yaml:"info"`
	Components Components `yaml:"components"`
}

// Info is the AsyncAPI info block
type Info struct {
	Title   string `yaml:"title"`
	Version string `yaml:"version"`
}

// Components holds the reusable schemas
type Components struct {
	Schemas map[string]map[string]interface{} `yaml:"schemas"`
}

// NewEventValidator compiles every component schema that carries an
// x-event-type extension
func NewEventValidator(specBytes []byte) (*EventValidator, error) {
	var doc Document
	if err := yaml.Unmarshal(specBytes, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse AsyncAPI document: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	schemas := make(map[string]*jsonschema.Schema)

	for name, raw := range doc.Components.Schemas {
		eventType, _ := raw[EventTypeKey].(string)
		if eventType == "" {
			continue
		}
		value, err := toJSONValue(raw)
		if err != nil {
			return nil, fmt.Errorf("schema %s: %w", name, err)
		}
		uri := "asyncapi://schemas/" + name
		if err := compiler.AddResource(uri, value); err != nil {
			return nil, fmt.Errorf("schema %s: %w", name, err)
		}
		compiled, err := compiler.Compile(uri)
		if err != nil {
			return nil, fmt.Errorf("failed to compile schema %s: %w", name, err)
		}
		schemas[eventType] = compiled
	}

	return &EventValidator{schemas: schemas}, nil
}

// toJSONValue round-trips v through JSON so numbers and maps have the types
// the schema compiler expects
func toJSONValue(v interface{}) (interface{}, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(bytes.NewReader(data))
}

// Validate checks one payload of the given event type
func (v *EventValidator) Validate(eventType string, data interface{}) error {
	schema, ok := v.schemas[eventType]
	if !ok {
		return fmt.Errorf("no schema found for event type: %s", eventType)
	}
	if data == nil {
		return fmt.Errorf("event data is required")
	}
	doc, err := toJSONValue(data)
	if err != nil {
		return fmt.Errorf("failed to encode event data: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("event data validation failed for type %s: %w", eventType, err)
	}
	return nil
}

// ValidateEventJSON validates the data of a serialized CloudEvent
func (v *EventValidator) ValidateEventJSON(eventJSON []byte) error {
	var event struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(eventJSON, &event); err != nil {
		return fmt.Errorf("failed to parse CloudEvent: %w", err)
	}
	if event.Type == "" {
		return fmt.Errorf("event type is required")
	}
	if len(event.Data) == 0 {
		return fmt.Errorf("event data is required")
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(event.Data))
	if err != nil {
		return fmt.Errorf("failed to parse event data: %w", err)
	}
	schema, ok := v.schemas[event.Type]
	if !ok {
		return fmt.Errorf("no schema found for event type: %s", event.Type)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("event data validation failed for type %s: %w", event.Type, err)
	}
	return nil
}

// HasSchema reports whether eventType has a registered schema
func (v *EventValidator) HasSchema(eventType string) bool {
	_, ok := v.schemas[eventType]
	return ok
}

// EventTypes lists the event types with schemas, sorted
func (v *EventValidator) EventTypes() []string {
	types := make([]string, 0, len(v.schemas))
	for t := range v.schemas {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
