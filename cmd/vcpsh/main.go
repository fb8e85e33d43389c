package main

import (
	"github.com/robotalks/vcplink/pkg/cli/sh"

	_ "github.com/robotalks/vcplink/pkg/cli/cmds/all"
)

//go-build: CGO_ENABLED=0

func main() {
	sh.Main()
}
