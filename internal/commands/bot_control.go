package commands

import (
	"fmt"
	"strings"

	"github.com/yourusername/lolo-bridge/internal/backend"
	"github.com/yourusername/lolo-bridge/internal/config"
	"github.com/yourusername/lolo-bridge/internal/database"
	"github.com/yourusername/lolo-bridge/internal/errors"
)

func (b *Builtins) say(channel, nick string, args []string) (string, error) {
	if len(args) < 2 {
		return fmt.Sprintf("Usage: %ssay <target> <message>", b.usagePrefix()), nil
	}
	return backend.PrivmsgMarker(args[0], strings.Join(args[1:], " ")), nil
}

func (b *Builtins) join(channel, nick string, args []string) (string, error) {
	if len(args) != 1 || !strings.HasPrefix(args[0], "#") {
		return fmt.Sprintf("Usage: %sjoin <#channel>", b.usagePrefix()), nil
	}
	return backend.JoinMarker(args[0]), nil
}

func (b *Builtins) part(channel, nick string, args []string) (string, error) {
	if len(args) != 1 || !strings.HasPrefix(args[0], "#") {
		return fmt.Sprintf("Usage: %spart <#channel>", b.usagePrefix()), nil
	}
	return backend.PartMarker(args[0]), nil
}

// prefix shows the channel prefix to anyone; changing it needs Admin
func (b *Builtins) prefix(channel, nick string, args []string) (string, error) {
	defaultPrefix := b.Config.Bot.CommandPrefix

	if len(args) == 0 {
		if !config.IsChannel(channel) {
			return fmt.Sprintf("Current prefix is '%s'", defaultPrefix), nil
		}
		setting, err := b.DB.GetChannelSetting(channel, defaultPrefix)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Current prefix is '%s'", setting.Prefix), nil
	}

	if len(args) != 2 || args[0] != "set" {
		return fmt.Sprintf("Usage: %sprefix set <new_prefix>", b.usagePrefix()), nil
	}
	if !HasPermission(b.caller().Level, database.LevelAdmin) {
		return errors.NewPermissionError(database.LevelAdmin).UserMessage, nil
	}
	if !config.IsChannel(channel) {
		return "Prefixes can only be set in a channel.", nil
	}

	newPrefix := args[1]
	if err := b.DB.SetChannelPrefix(channel, newPrefix); err != nil {
		return "", err
	}
	b.audit(database.AuditPrefix, "", fmt.Sprintf("channel=%s prefix=%s", channel, newPrefix), "success")
	return fmt.Sprintf("Prefix set to '%s' for %s", newPrefix, channel), nil
}

func (b *Builtins) enable(channel, nick string, args []string) (string, error) {
	return b.toggle(channel, args, false)
}

func (b *Builtins) disable(channel, nick string, args []string) (string, error) {
	return b.toggle(channel, args, true)
}

func (b *Builtins) toggle(channel string, args []string, disable bool) (string, error) {
	verb, past := "enable", "Enabled"
	if disable {
		verb, past = "disable", "Disabled"
	}
	if len(args) != 1 {
		return fmt.Sprintf("Usage: %s%s <command>", b.usagePrefix(), verb), nil
	}
	if !config.IsChannel(channel) {
		return "Commands can only be toggled in a channel.", nil
	}

	name := strings.ToLower(args[0])
	if disable && (name == "enable" || name == "disable") {
		return fmt.Sprintf("Cannot disable '%s'.", name), nil
	}

	if err := b.DB.SetCommandDisabled(channel, b.Config.Bot.CommandPrefix, name, disable); err != nil {
		return "", err
	}
	b.audit(database.AuditCommandToggle, "", fmt.Sprintf("channel=%s command=%s disabled=%t", channel, name, disable), "success")
	return fmt.Sprintf("%s command '%s' in %s", past, args[0], channel), nil
}
