package types

import (
	"encoding/json"

	"github.com/sashabaranov/go-openai/jsonschema"
)

type CommandDefinition struct {
	Properties  map[string]jsonschema.Definition
	Required    []string
	Name        CommandName
	Description string
}

type CommandName string

func (a CommandName) Is(name string) bool {
	return string(a) == name
}

func (a CommandName) String() string {
	return string(a)
}

// Schema returns the JSON schema of the command object, including the
// "type" discriminator.
func (a CommandDefinition) Schema() jsonschema.Definition {
	props := map[string]jsonschema.Definition{
		"type": {
			Type: jsonschema.String,
			Enum: []string{a.Name.String()},
		},
	}
	for k, v := range a.Properties {
		props[k] = v
	}
	return jsonschema.Definition{
		Type:        jsonschema.Object,
		Description: a.Description,
		Properties:  props,
		Required:    append([]string{"type"}, a.Required...),
	}
}

func (a CommandDefinition) String() string {
	b, _ := json.Marshal(a.Schema())
	return string(b)
}

type CommandDefinitions []CommandDefinition

func (d CommandDefinitions) Find(name string) (CommandDefinition, bool) {
	for _, def := range d {
		if def.Name.Is(name) {
			return def, true
		}
	}
	return CommandDefinition{}, false
}
