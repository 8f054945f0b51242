package config

// Input tells the web form which control to draw for a field.
type Input string

const (
	InputText     Input = "text"
	InputTextarea Input = "textarea"
	InputSelect   Input = "select"
)

type Choice struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// FormField is one input of a form. Key is the JSON key the value is sent
// under when the form is submitted.
type FormField struct {
	Key         string   `json:"key"`
	Input       Input    `json:"input"`
	Label       string   `json:"label"`
	Hint        string   `json:"hint,omitempty"`
	Placeholder string   `json:"placeholder,omitempty"`
	Required    bool     `json:"required,omitempty"`
	Choices     []Choice `json:"choices,omitempty"`
}

type FormSection struct {
	Name   string      `json:"name"`
	Label  string      `json:"label"`
	Fields []FormField `json:"fields"`
}

// AgentForm describes the agent creation form. groups are the groups a new
// agent may join; joining none is always offered first.
func AgentForm(groups []Choice) []FormSection {
	choices := append([]Choice{{Value: "", Label: "No group"}}, groups...)
	return []FormSection{
		{
			Name:  "profile",
			Label: "Profile",
			Fields: []FormField{
				{Key: "name", Input: InputText, Label: "Name", Required: true},
				{Key: "persona", Input: InputTextarea, Label: "Persona", Hint: "Who the character is and how they talk"},
				{Key: "signature", Input: InputText, Label: "Signature"},
				{Key: "avatar", Input: InputText, Label: "Avatar", Placeholder: "https://..."},
			},
		},
		{
			Name:  "membership",
			Label: "Membership",
			Fields: []FormField{
				{Key: "group_id", Input: InputSelect, Label: "Group", Choices: choices},
			},
		},
	}
}
