//go:build !windows

package util

import "os/exec"

const powerShellExe = "pwsh"

func hideWindow(cmd *exec.Cmd) {}
