package dispatch

import (
	"fmt"
	"strings"

	"github.com/mailwise/mailwise/internal/models"
)

// RenderBody produces the plain-text body for one recipient from the queue
// item's person payload. Missing fields degrade gracefully: the greeting drops
// the name, and detail lines fall back to "-".
func RenderBody(person *models.Person) string {
	var b strings.Builder

	greeting := "Hello"
	if name := person.DisplayName(); name != "" {
		greeting += " " + name
	}
	b.WriteString(greeting + ",\n\n")

	if company := person.CompanyName(); company != "" {
		fmt.Fprintf(&b, "I would like to apply for an open position at %s.\n\n", company)
	} else {
		b.WriteString("I would like to apply for an open position at your company.\n\n")
	}

	fmt.Fprintf(&b, "Position: %s\n", orDash(person.Title))
	fmt.Fprintf(&b, "Company: %s\n", orDash(person.CompanyName()))
	fmt.Fprintf(&b, "LinkedIn: %s\n\n", orDash(person.LinkedinURL))

	b.WriteString("My CV is attached.\n\nBest regards")

	return b.String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
