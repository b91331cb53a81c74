package sink

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"alertd/internal/notifier"
	logx "alertd/pkg/logx"
)

// Multi shows on a primary sink and copies to mirrors. Only the primary's
// error is returned; mirror errors are logged.
type Multi struct {
	primary notifier.Sink
	mirrors []notifier.Sink
	log     logx.Logger
}

func NewMulti(primary notifier.Sink, log logx.Logger, mirrors ...notifier.Sink) *Multi {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Multi{primary: primary, mirrors: mirrors, log: log}
}

func (m *Multi) Name() string {
	names := []string{m.primary.Name()}
	for _, s := range m.mirrors {
		names = append(names, s.Name())
	}
	return strings.Join(names, "+")
}

func (m *Multi) Show(ctx context.Context, n notifier.Notification) error {
	err := m.primary.Show(ctx, n)
	for _, s := range m.mirrors {
		if merr := s.Show(ctx, n); merr != nil {
			m.log.Warn("mirror delivery failed", logx.String("sink", s.Name()), logx.Err(merr))
		}
	}
	if err != nil {
		return fmt.Errorf("%s: %w", m.primary.Name(), err)
	}
	return nil
}

// Close closes every sink that holds a connection.
func (m *Multi) Close() error {
	var errs []error
	for _, s := range append([]notifier.Sink{m.primary}, m.mirrors...) {
		if c, ok := s.(interface{ Close() error }); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}
