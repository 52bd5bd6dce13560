package httpserver

import (
	"time"

	"github.com/oriys/labthings/internal/domain"
)

// link is one entry of an invocationView's links array.
type link struct {
	Rel  string `json:"rel"`
	Href string `json:"href"`
}

// invocationView is the wire representation of domain.Invocation, matching
// spec.md §6's "Invocation JSON shape" exactly.
type invocationView struct {
	ID            string              `json:"id"`
	Status        string              `json:"status"`
	Action        string              `json:"action"`
	Href          string              `json:"href"`
	TimeRequested time.Time           `json:"timeRequested"`
	TimeStarted   *time.Time          `json:"timeStarted,omitempty"`
	TimeCompleted *time.Time          `json:"timeCompleted,omitempty"`
	Input         any                 `json:"input,omitempty"`
	Output        any                 `json:"output,omitempty"`
	Log           []domain.LogRecord  `json:"log,omitempty"`
	Links         []link              `json:"links"`
}

func toInvocationView(inv domain.Invocation, baseURL string) invocationView {
	href := baseURL + inv.Href()
	links := []link{{Rel: "self", Href: href}}
	if inv.Status == domain.StatusCompleted {
		links = append(links, link{Rel: "output", Href: href + "/output"})
	}

	return invocationView{
		ID:            inv.ID.String(),
		Status:        string(inv.Status),
		Action:        inv.Action,
		Href:          href,
		TimeRequested: inv.TimeRequested,
		TimeStarted:   inv.TimeStarted,
		TimeCompleted: inv.TimeCompleted,
		Input:         inv.Input,
		Output:        inv.Output,
		Log:           inv.Log,
		Links:         links,
	}
}

func toInvocationViews(list []domain.Invocation, baseURL string) []invocationView {
	out := make([]invocationView, 0, len(list))
	for _, inv := range list {
		out = append(out, toInvocationView(inv, baseURL))
	}
	return out
}
