package irc

import (
	"fmt"

	"gopkg.in/irc.v4"
)

// identifyNickServ sends IDENTIFY to NickServ. It is a no-op without a
// configured password.
func (s *Supervisor) identifyNickServ(client *irc.Client) error {
	password := s.cfg.Auth.NickServPassword
	if password == "" {
		return nil
	}

	s.logger.Info("Identifying with NickServ...")
	err := client.WriteMessage(&irc.Message{
		Command: "PRIVMSG",
		Params:  []string{"NickServ", "IDENTIFY " + password},
	})
	if err != nil {
		return fmt.Errorf("failed to send NickServ IDENTIFY: %w", err)
	}
	return nil
}
