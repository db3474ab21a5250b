// Package systemd reports service state to the systemd manager. Every call
// is a no-op when the process was not started by systemd (NOTIFY_SOCKET unset).
package systemd

import (
	"fmt"
	"strings"

	"github.com/coreos/go-systemd/v22/daemon"

	"agencyops/pkg/logx"
)

// Ready tells systemd start-up is complete (Type=notify units).
func Ready(log logx.Logger) bool { return notify(log, daemon.SdNotifyReady) }

// Stopping tells systemd shutdown has begun.
func Stopping(log logx.Logger) bool { return notify(log, daemon.SdNotifyStopping) }

// Status sets the free-form status line shown by systemctl status.
func Status(log logx.Logger, format string, args ...any) bool {
	msg := strings.ReplaceAll(fmt.Sprintf(format, args...), "\n", " ")
	return notify(log, "STATUS="+msg)
}

func notify(log logx.Logger, state string) bool {
	ok, err := daemon.SdNotify(false, state)
	if err != nil {
		log.Warn("sd_notify failed", logx.String("state", state), logx.Err(err))
		return false
	}
	if ok {
		log.Debug("sd_notify sent", logx.String("state", state))
	}
	return ok
}
