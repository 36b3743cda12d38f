package reconcile

import (
	"fmt"

	"github.com/clinicsync/admissions/pkg/common/logger"
	"github.com/sirupsen/logrus"
)

const maxDiagnosticLength = 240

// diagnostics keeps the first limit messages for the result; every message
// is logged regardless of the limit.
type diagnostics struct {
	limit    int
	messages []string
	total    int
}

func newDiagnostics(limit int) *diagnostics {
	if limit <= 0 {
		limit = 20
	}
	return &diagnostics{limit: limit, messages: []string{}}
}

func (d *diagnostics) add(index int, err error) {
	msg := fmt.Sprintf("record %d: %s", index, err.Error())
	if runes := []rune(msg); len(runes) > maxDiagnosticLength {
		msg = string(runes[:maxDiagnosticLength-3]) + "..."
	}
	d.total++

	logger.Log.WithFields(logrus.Fields{
		"record": index,
		"kind":   fmt.Sprintf("%T", err),
	}).WithError(err).Warn("admission record diagnostic")

	if len(d.messages) < d.limit {
		d.messages = append(d.messages, msg)
	}
}

func (d *diagnostics) list() []string {
	out := make([]string, len(d.messages))
	copy(out, d.messages)
	return out
}
