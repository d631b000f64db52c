package email

import (
	"fmt"
	"html/template"
	"strings"

	"gopkg.in/gomail.v2"
)

// SMTPProvider реализует Provider поверх gomail.
type SMTPProvider struct {
	host      string
	port      int
	username  string
	password  string
	fromEmail string
	fromName  string
	tpl       *template.Template
}

func NewSMTPProvider(host string, port int, username, password, fromEmail, fromName string) (*SMTPProvider, error) {
	tpl, err := template.New("activation").Parse(activationTemplate)
	if err != nil {
		return nil, fmt.Errorf("email: parse activation template: %w", err)
	}
	return &SMTPProvider{
		host:      host,
		port:      port,
		username:  username,
		password:  password,
		fromEmail: fromEmail,
		fromName:  fromName,
		tpl:       tpl,
	}, nil
}

func (p *SMTPProvider) SendActivation(to string, data ActivationData) error {
	var body strings.Builder
	if err := p.tpl.Execute(&body, data); err != nil {
		return fmt.Errorf("email: render activation template: %w", err)
	}

	subject := "Tu suscripción está activa"
	if data.Language == "en" {
		subject = "Your subscription is active"
	}

	m := gomail.NewMessage()
	m.SetAddressHeader("From", p.fromEmail, p.fromName)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", body.String())

	d := gomail.NewDialer(p.host, p.port, p.username, p.password)
	return d.DialAndSend(m)
}
