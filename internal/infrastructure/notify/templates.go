package notify

import (
	"bytes"
	"fmt"
	"text/template"
)

// Message is a rendered notification
type Message struct {
	Title string
	Body  string
}

type messageTemplate struct {
	title *template.Template
	body  *template.Template
}

var templates = map[string]messageTemplate{
	"workflow.step.approval_required": mustTemplate(
		"Approval needed: {{.stepName}}",
		"Request {{.requestId}} ({{.documentTypeId}}) from {{or .requesterName .requesterId}} is waiting for your approval at \"{{.stepName}}\".",
	),
	"workflow.step.status_update": mustTemplate(
		"Your request is now {{.stepName}}",
		"Your {{.documentTypeId}} request {{.requestId}} moved to \"{{.stepName}}\".",
	),
	"workflow.request.completed": mustTemplate(
		"Your request is complete",
		"Your {{.documentTypeId}} request {{.requestId}} has completed all steps.",
	),
	"workflow.request.rejected": mustTemplate(
		"Your request was rejected",
		"Your {{.documentTypeId}} request {{.requestId}} was rejected. Reason: {{.reason}}",
	),
}

func mustTemplate(title, body string) messageTemplate {
	return messageTemplate{
		title: template.Must(template.New("title").Option("missingkey=zero").Parse(title)),
		body:  template.Must(template.New("body").Option("missingkey=zero").Parse(body)),
	}
}

// Render produces the message for a template key
func Render(templateKey string, data map[string]string) (Message, error) {
	tmpl, ok := templates[templateKey]
	if !ok {
		return Message{}, fmt.Errorf("unknown notification template %q", templateKey)
	}

	var title, body bytes.Buffer
	if err := tmpl.title.Execute(&title, data); err != nil {
		return Message{}, fmt.Errorf("render %s title: %w", templateKey, err)
	}
	if err := tmpl.body.Execute(&body, data); err != nil {
		return Message{}, fmt.Errorf("render %s body: %w", templateKey, err)
	}
	return Message{Title: title.String(), Body: body.String()}, nil
}
