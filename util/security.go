package util

import (
	"fmt"
	"net"
	"regexp"
	"strings"

	"golang.org/x/net/idna"
)

// ===== PowerShell 转义 =====

// EscapePowerShellString 转义 PowerShell 单引号字符串
// 在 PowerShell 单引号字符串中，只需要将单引号转义为两个单引号
func EscapePowerShellString(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

// ===== 域名规范化 =====

// isASCII 检查字符串是否全部为 ASCII 字符
func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] > 127 {
			return false
		}
	}
	return true
}

// NormalizeDomain 将域名规范化为小写 ASCII (Punycode) 形式
// 纯 ASCII 直通；非 ASCII 尝试转 Punycode，失败则 fallback 到小写原串
func NormalizeDomain(domain string) string {
	domain = strings.TrimSpace(domain)
	if domain == "" {
		return domain
	}
	if isASCII(domain) {
		return strings.ToLower(domain)
	}

	prefix, rest := "", domain
	if strings.HasPrefix(domain, "*.") {
		prefix, rest = "*.", domain[2:]
	}
	ascii, err := idna.Lookup.ToASCII(rest)
	if err != nil {
		return strings.ToLower(domain)
	}
	return prefix + strings.ToLower(ascii)
}

// ===== 验证函数 =====

// thumbprintRegex 证书指纹正则：40位十六进制字符
var thumbprintRegex = regexp.MustCompile(`^[A-Fa-f0-9]{40}$`)

// ValidateThumbprint 验证证书指纹格式
func ValidateThumbprint(thumbprint string) error {
	_, err := NormalizeThumbprint(thumbprint)
	return err
}

// NormalizeThumbprint 规范化并验证证书指纹
// 返回大写的40位十六进制字符串
func NormalizeThumbprint(thumbprint string) (string, error) {
	// 移除空格和连字符
	cleaned := strings.ReplaceAll(thumbprint, " ", "")
	cleaned = strings.ReplaceAll(cleaned, "-", "")
	cleaned = strings.ToUpper(cleaned)

	if !thumbprintRegex.MatchString(cleaned) {
		return "", fmt.Errorf("证书指纹必须是40位十六进制字符")
	}
	return cleaned, nil
}

// domainRegex 域名正则（支持通配符）
var domainRegex = regexp.MustCompile(`^(\*\.)?[a-zA-Z0-9]([a-zA-Z0-9\-]{0,61}[a-zA-Z0-9])?(\.[a-zA-Z0-9]([a-zA-Z0-9\-]{0,61}[a-zA-Z0-9])?)*$`)

// ValidateDomain 验证域名格式（支持通配符如 *.example.com）
func ValidateDomain(domain string) error {
	if domain == "" {
		return fmt.Errorf("域名不能为空")
	}
	normalized := NormalizeDomain(domain)
	if len(normalized) > 253 {
		return fmt.Errorf("域名长度不能超过253个字符")
	}
	if !domainRegex.MatchString(normalized) {
		return fmt.Errorf("域名格式无效")
	}
	return nil
}

// ValidatePort 验证端口号
func ValidatePort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("端口号必须在 1-65535 之间")
	}
	return nil
}

// ValidateIP 验证绑定使用的 IP 地址，"*" 表示全部未分配地址
func ValidateIP(ip string) error {
	if ip == "" {
		return fmt.Errorf("IP 地址不能为空")
	}
	if ip == "*" {
		return nil
	}
	// IIS 中 IPv6 地址以 [addr] 形式出现
	trimmed := strings.TrimSuffix(strings.TrimPrefix(ip, "["), "]")
	if net.ParseIP(trimmed) == nil {
		return fmt.Errorf("无效的 IP 地址格式")
	}
	return nil
}
