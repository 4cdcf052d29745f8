package util

import (
	"bytes"
	"context"
	"os/exec"
	"time"
	"unicode/utf8"

	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"
)

// DefaultCmdTimeout 外部命令的默认超时时间
var DefaultCmdTimeout = 2 * time.Minute

func command(ctx context.Context, name string, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, name, args...)
	hideWindow(cmd)
	return cmd
}

// RunPowerShellCombined 执行 PowerShell 命令，返回 stdout + stderr
func RunPowerShellCombined(script string) (string, error) {
	fullScript := "[Console]::OutputEncoding = [System.Text.Encoding]::UTF8; " + script

	ctx, cancel := context.WithTimeout(context.Background(), DefaultCmdTimeout)
	defer cancel()

	output, err := command(ctx, powerShellExe, "-NoProfile", "-NonInteractive", "-Command", fullScript).CombinedOutput()
	return string(output), err
}

// RunCmdCombined 执行普通命令，返回 stdout + stderr
func RunCmdCombined(name string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), DefaultCmdTimeout)
	defer cancel()

	output, err := command(ctx, name, args...).CombinedOutput()

	utf8Output, convErr := GBKToUTF8(output)
	if convErr != nil {
		return string(output), err
	}

	return string(utf8Output), err
}

// GBKToUTF8 将 GBK 编码转换为 UTF-8
// 如果已经是有效的 UTF-8 且包含中文，则不转换
func GBKToUTF8(data []byte) ([]byte, error) {
	if utf8.Valid(data) && containsChineseUTF8(data) {
		return data, nil
	}

	reader := transform.NewReader(bytes.NewReader(data), simplifiedchinese.GBK.NewDecoder())
	var buf bytes.Buffer
	_, err := buf.ReadFrom(reader)
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// containsChineseUTF8 检查是否包含 UTF-8 编码的中文字符
func containsChineseUTF8(data []byte) bool {
	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		if r >= 0x4E00 && r <= 0x9FFF {
			return true
		}
		data = data[size:]
	}
	return false
}
