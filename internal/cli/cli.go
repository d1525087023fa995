// Package cli implements the odpctl commands.
package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/arnavshah/odp-scheduler-go/internal/models"
	"github.com/arnavshah/odp-scheduler-go/pkg/app"
)

var (
	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	warnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	dimStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

// Context is passed to every command's Run.
type Context struct {
	Ctx context.Context
	Out io.Writer
	// Open builds the application on first use so commands that never touch
	// the database (keyring) work without one.
	Open func(context.Context) (*app.App, error)

	app *app.App
}

// App returns the lazily opened application.
func (c *Context) App() (*app.App, error) {
	if c.app != nil {
		return c.app, nil
	}
	a, err := c.Open(c.Ctx)
	if err != nil {
		return nil, err
	}
	c.app = a
	return a, nil
}

// Close releases the application if it was opened.
func (c *Context) Close() {
	if c.app != nil {
		c.app.Close()
	}
}

func (c *Context) ok(label string) {
	fmt.Fprintf(c.Out, "%s %s\n", okStyle.Render("✓"), label)
}

func (c *Context) fail(label string, err error) {
	fmt.Fprintf(c.Out, "%s %s\n", failStyle.Render("✗"), label)
	fmt.Fprintf(c.Out, "   %s\n", dimStyle.Render(err.Error()))
}

func (c *Context) warn(label, detail string) {
	fmt.Fprintf(c.Out, "%s %s\n", warnStyle.Render("!"), label)
	if detail != "" {
		fmt.Fprintf(c.Out, "   %s\n", dimStyle.Render(detail))
	}
}

// resolveOrder accepts an order id or its ODP number.
func resolveOrder(a *app.App, ref string) (models.ProductionOrder, error) {
	store := a.Engine.Store()
	if o, ok := store.Order(ref); ok {
		return o, nil
	}
	for _, o := range store.Orders() {
		if o.OrderNumber == ref {
			return o, nil
		}
	}
	return models.ProductionOrder{}, fmt.Errorf("no order with id or number %q", ref)
}

// parseHourRange reads "8-12" as hours [8, 12).
func parseHourRange(s string) (from, to int, err error) {
	lo, hi, ok := strings.Cut(s, "-")
	if !ok {
		return 0, 0, fmt.Errorf("invalid hour range %q, expected FROM-TO", s)
	}
	if from, err = strconv.Atoi(strings.TrimSpace(lo)); err != nil {
		return 0, 0, fmt.Errorf("invalid hour range %q: %w", s, err)
	}
	if to, err = strconv.Atoi(strings.TrimSpace(hi)); err != nil {
		return 0, 0, fmt.Errorf("invalid hour range %q: %w", s, err)
	}
	return from, to, nil
}
