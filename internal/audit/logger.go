package audit

import (
	"os"

	"github.com/rs/zerolog"
)

// Redemption failures are recorded here with their specific internal
// kind, even though the wire response collapses them into one generic
// error.
var auditLogger = zerolog.New(os.Stdout).With().Str("channel", "audit").Timestamp().Logger()

// Log records an audit event.
func Log(action, user, audience string, success bool, err error) {
	event := auditLogger.Log().
		Str("action", action).
		Bool("success", success)
	if user != "" {
		event = event.Str("user", user)
	}
	if audience != "" {
		event = event.Str("audience", audience)
	}
	if err != nil {
		event = event.Str("error", err.Error())
	}
	event.Msg("audit")
}
