package user

import (
	"github.com/yourusername/lolo-bridge/internal/database"
)

// CanAdminister reports whether level may run privileged admin commands
func CanAdminister(level database.PermissionLevel) bool {
	return level == database.LevelOwner || level == database.LevelAdmin
}

// CanGrant reports whether actor may assign target to someone.
// Only an owner can hand out the owner level.
func CanGrant(actor, target database.PermissionLevel) bool {
	if !CanAdminister(actor) {
		return false
	}
	if target == database.LevelOwner {
		return actor == database.LevelOwner
	}
	return true
}
