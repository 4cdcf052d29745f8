package util

import "unicode/utf8"

// TruncateString 安全截断字符串，不会切断多字节 UTF-8 字符
// 用于把 appcmd / netsh 的长输出放进错误信息
func TruncateString(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	for maxBytes > 0 && !utf8.RuneStart(s[maxBytes]) {
		maxBytes--
	}
	return s[:maxBytes] + "..."
}
