package commands

import (
	"context"
	stderrors "errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/yourusername/lolo-bridge/internal/config"
	"github.com/yourusername/lolo-bridge/internal/database"
	"github.com/yourusername/lolo-bridge/internal/errors"
)

// fetchTimeout bounds admin plugin get
const fetchTimeout = 30 * time.Second

// admin routes "admin user|channels|plugin ...". The user add/remove/set
// forms never get here; the router hands them to the identity resolver.
func (b *Builtins) admin(channel, nick string, args []string) (string, error) {
	if len(args) > 0 {
		switch args[0] {
		case "user":
			return b.adminUser(args[1:])
		case "channels":
			return b.adminChannels(args[1:])
		case "plugin":
			return b.adminPlugin(channel, args[1:])
		case "audit":
			return b.adminAudit(args[1:])
		}
	}
	p := b.usagePrefix()
	return fmt.Sprintf("Usage: %sadmin user list | plugin list|load|unload|reload|get <url> | channels add <#channel> | channels remove <#channel> | channels list | audit [N]", p), nil
}

func (b *Builtins) adminUser(args []string) (string, error) {
	if len(args) == 0 || args[0] != "list" {
		return fmt.Sprintf("Usage: %sadmin user list", b.usagePrefix()), nil
	}

	users, err := b.Users.List()
	if err != nil {
		return "", errors.NewDatabaseError("list users", err)
	}
	if len(users) == 0 {
		return "No users found.", nil
	}

	entries := make([]string, 0, len(users))
	for _, u := range users {
		entries = append(entries, fmt.Sprintf("%s (%s)", u.Nick, u.Level))
	}
	return "Users: " + strings.Join(entries, ", "), nil
}

const maxAuditLines = 20

// adminAudit lists the newest audit entries in one line
func (b *Builtins) adminAudit(args []string) (string, error) {
	n := 5
	if len(args) > 0 {
		v, err := strconv.Atoi(args[0])
		if err != nil || v <= 0 {
			return fmt.Sprintf("Usage: %sadmin audit [N]", b.usagePrefix()), nil
		}
		n = min(v, maxAuditLines)
	}

	entries, err := b.DB.GetAuditLog(n, 0)
	if err != nil {
		return "", errors.NewDatabaseError("read audit log", err)
	}
	if len(entries) == 0 {
		return "No audited actions.", nil
	}

	parts := make([]string, 0, len(entries))
	for _, e := range entries {
		line := fmt.Sprintf("[%s] %s %s", e.Timestamp.Format("01-02 15:04"), e.ActorNick, e.Action)
		if e.Target != "" {
			line += " " + e.Target
		}
		parts = append(parts, line+": "+e.Result)
	}
	return "Recent actions: " + strings.Join(parts, "; "), nil
}

func (b *Builtins) adminChannels(args []string) (string, error) {
	if len(args) == 0 || (args[0] != "add" && args[0] != "remove" && args[0] != "list") {
		p := b.usagePrefix()
		return fmt.Sprintf("Usage: %[1]sadmin channels add <#channel> | %[1]sadmin channels remove <#channel> | %[1]sadmin channels list", p), nil
	}

	if args[0] == "list" || len(args) != 2 || !strings.HasPrefix(args[1], "#") {
		channels := b.Channels.AutoJoin()
		if len(channels) == 0 {
			return "No auto-join channels set.", nil
		}
		return "Auto-join channels: " + strings.Join(channels, ", "), nil
	}

	target := args[1]
	var msg string
	changed := false
	switch args[0] {
	case "add":
		if b.Channels.Add(target) {
			changed = true
			msg = fmt.Sprintf("Added %s to auto-join list.", target)
		} else {
			msg = fmt.Sprintf("%s is already in auto-join list.", target)
		}
	case "remove":
		if b.Channels.Remove(target) {
			changed = true
			msg = fmt.Sprintf("Removed %s from auto-join list.", target)
		} else {
			msg = fmt.Sprintf("%s is not in auto-join list.", target)
		}
	}

	if changed {
		if err := b.persistChannels(); err != nil {
			return "", err
		}
		b.audit(database.AuditChannelList, "", fmt.Sprintf("%s %s", args[0], target), "success")
	}
	return msg, nil
}

// persistChannels writes the current auto-join list back to the config file
func (b *Builtins) persistChannels() error {
	b.Config.Bot.Channels = b.Channels.AutoJoin()
	if b.ConfigPath == "" {
		return nil
	}
	if err := config.Save(b.ConfigPath, b.Config); err != nil {
		return fmt.Errorf("failed to save auto-join channels: %w", err)
	}
	return nil
}

func (b *Builtins) adminPlugin(channel string, args []string) (string, error) {
	usage := fmt.Sprintf("Usage: %sadmin plugin list|load|unload|reload|get <url>", b.usagePrefix())
	if len(args) == 0 {
		return usage, nil
	}
	if b.Bundles == nil {
		return "Plugins are not enabled.", nil
	}

	if args[0] == "list" {
		available, err := b.Bundles.Available()
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Plugins available: %s; loaded: %s",
			strings.Join(available, ", "), strings.Join(b.Bundles.Loaded(), ", ")), nil
	}
	if len(args) != 2 {
		return usage, nil
	}

	id := args[1]
	switch args[0] {
	case "load":
		err := b.Bundles.Load(id)
		switch {
		case stderrors.Is(err, ErrBundleLoaded):
			return fmt.Sprintf("Plugin %s already loaded.", id), nil
		case err != nil:
			b.Logger.Error("Error loading plugin %s: %v", id, err)
			return fmt.Sprintf("Error loading plugin %s: %s", id, userText(err)), nil
		}
		b.audit(database.AuditPlugin, "", "load "+id, "success")
		return fmt.Sprintf("Plugin %s loaded.", id), nil

	case "unload":
		removed, err := b.Bundles.Unload(id)
		switch {
		case stderrors.Is(err, ErrBundleNotLoaded):
			return fmt.Sprintf("Plugin %s not loaded.", id), nil
		case err != nil:
			return "", err
		}
		b.audit(database.AuditPlugin, "", "unload "+id, "success")
		return fmt.Sprintf("Plugin %s unloaded. Removed cmds: %s", id, joinOrNone(removed)), nil

	case "reload":
		removed, err := b.Bundles.Reload(id)
		if err != nil {
			b.Logger.Error("Error reloading plugin %s: %v", id, err)
			return fmt.Sprintf("Error reloading plugin %s: %s", id, userText(err)), nil
		}
		b.audit(database.AuditPlugin, "", "reload "+id, "success")
		return fmt.Sprintf("Plugin %s reloaded. Removed cmds: %s", id, joinOrNone(removed)), nil

	case "get":
		inv := b.caller()
		b.background(channel, func(ctx context.Context) func() string {
			ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
			defer cancel()
			fetched, err := b.Bundles.Fetch(ctx, id)

			return func() string {
				if err == nil {
					err = b.Bundles.Install(fetched)
				}
				if err != nil {
					b.Logger.Error("Failed to download/load plugin %s: %v", id, err)
					b.auditAs(inv, database.AuditPlugin, "", "get "+id, err.Error())
					if botErr, ok := errors.AsBotError(err); ok {
						return botErr.UserMessage
					}
					return fmt.Sprintf("Failed to download/load plugin: %v", err)
				}
				b.auditAs(inv, database.AuditPlugin, "", "get "+id, "success")
				return fmt.Sprintf("Plugin %s downloaded and loaded.", fetched)
			}
		})
		return fmt.Sprintf("Fetching plugin from %s...", id), nil
	}
	return usage, nil
}

// userText prefers a BotError's user message over the raw error text
func userText(err error) string {
	if botErr, ok := errors.AsBotError(err); ok {
		return botErr.UserMessage
	}
	return err.Error()
}

func joinOrNone(names []string) string {
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, ", ")
}
