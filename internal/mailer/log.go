package mailer

import "go.uber.org/zap"

// LogMailer renders messages and writes them to the log instead of sending
// them. It is used when no SMTP host is configured.
type LogMailer struct {
	logger *zap.SugaredLogger
}

func NewLogMailer(logger *zap.SugaredLogger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) Send(templateFile, username, email string, data any) error {
	subject, plainBody, _, err := Render(templateFile, data)
	if err != nil {
		return err
	}
	m.logger.Infow("email not sent, SMTP disabled",
		"to", email,
		"name", username,
		"subject", subject,
		"body", plainBody,
	)
	return nil
}
