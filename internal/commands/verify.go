package commands

import (
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/yourusername/lolo-bridge/internal/database"
	"github.com/yourusername/lolo-bridge/internal/user"
)

// verify bootstraps the first owner from the password set at startup
func (b *Builtins) verify(channel, nick string, args []string) (string, error) {
	inv := b.caller()

	// Only allowed via PM so the password is never shown in a channel.
	// Channel attempts are audited and get no reply.
	if !inv.IsPM {
		b.audit(database.AuditVerifyInChan, "", fmt.Sprintf("Attempted %sverify in channel: %s", inv.Prefix, channel), "blocked")
		b.Logger.Warning("%s attempted %sverify in %s", inv.Hostmask, inv.Prefix, channel)
		return "", nil
	}

	if len(args) == 0 {
		return fmt.Sprintf("Usage: %sverify <password>", b.usagePrefix()), nil
	}

	err := b.Users.ClaimOwner(nick, inv.Hostmask, strings.Join(args, " "))
	switch {
	case err == nil:
		b.audit(database.AuditOwnerVerify, nick, "", "success")
		b.Logger.Success("%s (%s) verified as owner", nick, inv.Hostmask)
		return "Owner verified! You are now the bot owner.", nil
	case stderrors.Is(err, user.ErrOwnerExists):
		return "Owner already exists. Verification is no longer available.", nil
	case stderrors.Is(err, user.ErrInvalidPassword):
		b.audit(database.AuditOwnerVerify, nick, "", "invalid password")
		return "Invalid password. Please try again.", nil
	default:
		return "", fmt.Errorf("failed to set owner: %w", err)
	}
}
