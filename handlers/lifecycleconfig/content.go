package lifecycleconfig

import (
	_ "embed"
	"strconv"
	"strings"
)

// Lifecycle scripts shipped with the binary. The base script provisions the
// Code Editor environment; the auto-stop fragment installs the idle watcher
// released with aws-samples/sagemaker-studio-apps-lifecycle-config-examples.

//go:embed scripts/lifecycle-base.sh
var baseScript string

//go:embed scripts/auto-stop-idle.sh
var autoStopScript string

// idleTimeToken is the placeholder in the auto-stop fragment. The watcher
// takes its threshold in seconds.
const idleTimeToken = "__AUTO_STOP_IDLE_TIME__"

// BuildContent renders the lifecycle script for the given idle timeout in
// minutes. A timeout of zero disables auto-stop entirely: only the base
// provisioning script is emitted.
func BuildContent(idleMinutes int) string {
	if idleMinutes <= 0 {
		return baseScript
	}
	seconds := strconv.Itoa(60 * idleMinutes)
	return baseScript + "\n" + strings.ReplaceAll(autoStopScript, idleTimeToken, seconds)
}
