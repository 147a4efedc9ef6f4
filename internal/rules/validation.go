package rules

import (
	"fmt"

	"github.com/avanderberg/scrumline/internal/domain"
)

// ValidationError rejects a save. Values snapshots the ticket's attributes
// at rejection time, before the caller rolls the instance back, so error
// reporters can show what was attempted.
type ValidationError struct {
	RuleName string
	Message  string
	TicketID int64
	Values   map[string]string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.RuleName, e.Message)
}

func reject(t *domain.Ticket, rule, message string) *ValidationError {
	values := map[string]string{}
	if schema := t.Schema(); schema != nil {
		for _, f := range schema.Fields {
			values[f] = t.Get(f)
		}
	}
	return &ValidationError{
		RuleName: rule,
		Message:  message,
		TicketID: t.ID,
		Values:   values,
	}
}
