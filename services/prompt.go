package services

import (
	"fmt"
	"strings"
	"text/template"
	"text/template/parse"

	"github.com/krshsl/influenceos/backend/models"
)

const DefaultTone = "professional"

// topicTemplate is the copywriter brief used when a request names a topic instead of a prompt
var topicTemplate = template.Must(template.New("topic").Parse(
	`Write a LinkedIn post for a person whose professional role is '{{.Role}}'.` +
		`{{if .Name}} The author's name is {{.Name}}.{{end}}` +
		` The post should be about the topic: '{{.Topic}}'.` +
		` The tone of the post must be {{.Tone}}.` +
		"\n\n" +
		`Please include 3-5 relevant hashtags in your response.`,
))

// GenerateRequest is the client's description of the post to write
type GenerateRequest struct {
	Prompt string `json:"prompt" validate:"required_without=Topic,max=4000"`
	Topic  string `json:"topic" validate:"required_without=Prompt,max=500"`
	Role   string `json:"role" validate:"max=200"`
	Tone   string `json:"tone" validate:"omitempty,oneof=professional casual friendly inspirational humorous formal enthusiastic"`
}

// promptFields are the profile fields a free-form prompt may reference
type promptFields struct {
	Name       string
	GivenName  string
	FamilyName string
	Headline   string
}

type topicFields struct {
	Role  string
	Name  string
	Topic string
	Tone  string
}

// BuildPrompt renders the request into the text sent to the model.
// A free prompt may reference the profile fields as {{.Name}} and friends;
// a topic uses the copywriter brief.
func BuildPrompt(req GenerateRequest, profile *models.Profile) (string, error) {
	if profile == nil {
		profile = &models.Profile{}
	}

	if req.Prompt != "" {
		tmpl, err := template.New("prompt").Option("missingkey=error").Parse(req.Prompt)
		if err != nil {
			return "", models.NewValidationError("prompt is not a valid template", err)
		}
		if tmpl.Tree == nil || !onlyFieldReferences(tmpl.Tree.Root) {
			return "", models.NewValidationError("prompt may only reference profile fields such as {{.Name}}", nil)
		}
		var b strings.Builder
		err = tmpl.Execute(&b, promptFields{
			Name:       profile.Name,
			GivenName:  profile.GivenName,
			FamilyName: profile.FamilyName,
			Headline:   profile.Headline,
		})
		if err != nil {
			return "", models.NewValidationError("prompt references an unknown field", err)
		}
		return b.String(), nil
	}

	role := strings.TrimSpace(req.Role)
	if role == "" {
		role = profile.Headline
	}
	if role == "" {
		role = "professional"
	}
	tone := strings.TrimSpace(req.Tone)
	if tone == "" {
		tone = DefaultTone
	}

	var b strings.Builder
	if err := topicTemplate.Execute(&b, topicFields{
		Role:  role,
		Name:  profile.Name,
		Topic: strings.TrimSpace(req.Topic),
		Tone:  tone,
	}); err != nil {
		return "", fmt.Errorf("failed to render topic prompt: %w", err)
	}
	return b.String(), nil
}

// onlyFieldReferences accepts text and single-level field actions like {{.Name}}.
// Anything else is rejected; the rendered prompt must stay bounded by the
// input plus the profile fields.
func onlyFieldReferences(list *parse.ListNode) bool {
	if list == nil {
		return true
	}
	for _, node := range list.Nodes {
		switch n := node.(type) {
		case *parse.TextNode:
		case *parse.ActionNode:
			pipe := n.Pipe
			if pipe == nil || len(pipe.Decl) > 0 || len(pipe.Cmds) != 1 || len(pipe.Cmds[0].Args) != 1 {
				return false
			}
			field, ok := pipe.Cmds[0].Args[0].(*parse.FieldNode)
			if !ok || len(field.Ident) != 1 {
				return false
			}
		default:
			return false
		}
	}
	return true
}
