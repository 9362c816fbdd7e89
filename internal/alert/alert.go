// Stockroom - Online Store Administration Backend
// Copyright 2026 Stockroom Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/stockroom-hq/stockroom

// Package alert sends operational notification emails. Delivery is best
// effort: failures are logged and counted, never returned to callers.
package alert

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"github.com/stockroom-hq/stockroom/internal/logging"
	"github.com/stockroom-hq/stockroom/internal/metrics"
)

// Notifier sends alert emails over SMTP. A Notifier with no host is a
// no-op, so alerting can stay unconfigured in development.
type Notifier struct {
	host     string
	port     int
	username string
	password string
	from     string
	to       []string
}

// NewNotifier builds a Notifier. host may be empty to disable alerting.
func NewNotifier(host string, port int, username, password, from string, to []string) *Notifier {
	return &Notifier{host: host, port: port, username: username, password: password, from: from, to: to}
}

// Notify sends one alert email. Never returns an error; SMTP problems are
// swallowed, logged, and counted as non-critical failures.
func (n *Notifier) Notify(ctx context.Context, subject, body string) {
	if n.host == "" || len(n.to) == 0 {
		return
	}

	done := make(chan error, 1)
	go func() {
		done <- n.send(subject, body)
	}()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = ctx.Err()
	case <-time.After(30 * time.Second):
		err = fmt.Errorf("smtp send timed out")
	}
	if err != nil {
		metrics.NonCriticalFailures.WithLabelValues("alert_email").Inc()
		logging.Warn().Err(err).Str("subject", subject).Msg("Alert email failed")
		return
	}
	logging.Info().Str("subject", subject).Msg("Alert email sent")
}

func (n *Notifier) send(subject, body string) error {
	addr := fmt.Sprintf("%s:%d", n.host, n.port)

	var auth smtp.Auth
	if n.username != "" {
		auth = smtp.PlainAuth("", n.username, n.password, n.host)
	}

	msg := strings.Join([]string{
		"From: " + n.from,
		"To: " + strings.Join(n.to, ", "),
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=utf-8",
		"",
		body,
	}, "\r\n")

	return smtp.SendMail(addr, auth, n.from, n.to, []byte(msg))
}
