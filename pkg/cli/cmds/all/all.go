// Package all registers all shell command providers.
package all

import (
	// command providers
	_ "github.com/robotalks/vcplink/pkg/cli/cmds/vcp"
)
