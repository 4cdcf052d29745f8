//go:build windows

package util

import (
	"os/exec"
	"syscall"
)

const powerShellExe = "powershell"

// hideWindow 隐藏子进程窗口
func hideWindow(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		HideWindow:    true,
		CreationFlags: 0x08000000, // CREATE_NO_WINDOW
	}
}
