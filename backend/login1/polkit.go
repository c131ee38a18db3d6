package login1

import (
	"fmt"
	"os/user"
	"strings"
)

// usernamePlaceholder is substituted when the current user has no passwd
// entry (e.g. the process runs under a container uid without one).
const usernamePlaceholder = "USERNAME"

var currentUsername = func() (string, error) {
	u, err := user.Current()
	if err != nil {
		return "", err
	}
	return u.Username, nil
}

// polkitActionID maps a shutdown action to the polkit action id gating it.
// logind names the poweroff permission "power-off"; every other action id
// matches the action string.
func polkitActionID(action string) string {
	if action == ActionPoweroff {
		return polkitActionPrefix + "power-off"
	}
	return polkitActionPrefix + action
}

// interactiveAuthRemediation builds the log message emitted when polkit
// demands interactive authorization: it contains a ready-to-install rule
// granting the current user the required action id.
func interactiveAuthRemediation(actionLabel, actionID string) string {
	username, err := currentUsername()
	if err != nil || username == "" {
		username = usernamePlaceholder
	}
	return fmt.Sprintf(`[login1] failed to %s: interactive authorization required

create %s and insert the following rule:
polkit.addRule(function(action, subject) {
    if(action.id === %q && subject.user === %q) {
        return polkit.Result.YES;
    }
});
`, actionLabel, polkitRulesPath, actionID, username)
}

// containsShutdown reports whether an inhibitor's colon-separated "what"
// list covers shutdown.
func containsShutdown(what string) bool {
	for _, part := range strings.Split(what, ":") {
		if part == inhibitWhatShutdown {
			return true
		}
	}
	return false
}
