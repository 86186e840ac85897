package ratelimit

import (
	"time"

	"medivault/internal/store"
)

// Category is a named request budget applied to a class of routes.
type Category struct {
	Name   string
	Limit  int
	Window time.Duration
}

// Default category budgets. Auth endpoints are throttled hard; bulk
// transfer and chat get hourly budgets; the per-source-address budget
// backstops unauthenticated traffic.
var categories = map[string]Category{
	"auth":     {Name: "auth", Limit: 5, Window: 5 * time.Minute},
	"upload":   {Name: "upload", Limit: 10, Window: time.Hour},
	"download": {Name: "download", Limit: 50, Window: time.Hour},
	"chat":     {Name: "chat", Limit: 100, Window: time.Hour},
	"admin":    {Name: "admin", Limit: 1000, Window: time.Hour},
	"api":      {Name: "api", Limit: 100, Window: 15 * time.Minute},
	"ip":       {Name: "ip", Limit: 1000, Window: time.Hour},
}

// CategoryByName returns the named category budget.
func CategoryByName(name string) (Category, bool) {
	c, ok := categories[name]
	return c, ok
}

// ForCategory builds a fixed-window checker for the named category,
// falling back to the general api budget for unknown names.
func ForCategory(st store.Store, name string) *FixedWindow {
	c, ok := categories[name]
	if !ok {
		c = categories["api"]
	}
	return NewFixedWindow(st, c.Limit, c.Window)
}
