// Package commands defines the command metadata shared by the registry
// and the routers.
package commands

import (
	tele "gopkg.in/telebot.v4"
)

// Command binds a handler to its menu description and routing metadata.
// Aliases let plain text, such as a reply keyboard label, reach the same
// handler through the text router.
type Command struct {
	Handler     tele.HandlerFunc
	Description string
	AdminOnly   bool
	Hidden      bool
	Aliases     []string
}

// Visible reports whether the command belongs in the public command menu.
func (c Command) Visible() bool {
	return !c.Hidden && !c.AdminOnly
}
