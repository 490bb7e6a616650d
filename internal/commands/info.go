package commands

import (
	"fmt"
	"os"
	"strings"
	"time"
)

const aboutText = "Lolo IRC bridge | relays chat to the command server | Type %shelp for commands."

func (b *Builtins) ping(channel, nick string, args []string) (string, error) {
	return "pong", nil
}

func (b *Builtins) test(channel, nick string, args []string) (string, error) {
	b.Logger.Info("Received %stest from %s", b.usagePrefix(), nick)
	return "Test successful!", nil
}

func (b *Builtins) about(channel, nick string, args []string) (string, error) {
	return fmt.Sprintf(aboutText, b.usagePrefix()), nil
}

func (b *Builtins) uptime(channel, nick string, args []string) (string, error) {
	return formatUptime(time.Since(b.StartTime)), nil
}

// formatUptime formats an uptime duration as hours, minutes and seconds
func formatUptime(d time.Duration) string {
	total := int(d.Seconds())
	h, m, s := total/3600, (total%3600)/60, total%60
	return fmt.Sprintf("Uptime: %dh %dm %ds", h, m, s)
}

func (b *Builtins) status(channel, nick string, args []string) (string, error) {
	return fmt.Sprintf("Status: %d commands loaded.", b.Dispatcher.Registry().Len()), nil
}

// version reads the version file at call time so a deploy can update it
// without a restart
func (b *Builtins) version(channel, nick string, args []string) (string, error) {
	path := b.Config.Bot.VersionFile
	if path == "" {
		path = "VERSION"
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "Version: unknown", nil
	}
	version := strings.TrimSpace(string(data))
	if version == "" {
		return "Version: unknown", nil
	}
	return "Version: " + version, nil
}

func (b *Builtins) listCommands(channel, nick string, args []string) (string, error) {
	return "Available commands: " + strings.Join(b.Dispatcher.Registry().List(), ", "), nil
}

func (b *Builtins) reloadHint(channel, nick string, args []string) (string, error) {
	return fmt.Sprintf("Use %sadmin plugin reload <name> to reload plugins.", b.usagePrefix()), nil
}

func (b *Builtins) echo(channel, nick string, args []string) (string, error) {
	if len(args) == 0 {
		return fmt.Sprintf("Usage: %secho <text>", b.usagePrefix()), nil
	}
	return strings.Join(args, " "), nil
}
