package alerts

import (
	"context"
	"errors"
	"log"
)

// MultiSender delivers every notification through each of its senders
type MultiSender []Sender

// Send tries every sender and joins their errors
func (m MultiSender) Send(ctx context.Context, subject, body string) error {
	var errs []error
	for _, s := range m {
		if err := s.Send(ctx, subject, body); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogSender writes notifications to the process log. Used when no transport
// is configured.
type LogSender struct{}

func (LogSender) Send(_ context.Context, subject, body string) error {
	log.Printf("%s %s", subject, body)
	return nil
}
