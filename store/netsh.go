package store

import (
	"bufio"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"

	"iisctl/util"
)

// 默认 AppID (用于标识应用程序)
const defaultAppID = "{00000000-0000-0000-0000-000000000000}"

// SSLBinding HTTP.sys 中的证书绑定
type SSLBinding struct {
	Endpoint      string // SNI: hostname:port，否则 ip:port
	SNI           bool
	CertHash      string
	CertStoreName string
	AppID         string
}

// SSLBinder 将 https 绑定的证书同步到 HTTP.sys
type SSLBinder interface {
	Bind(b SSLBinding) error
	Unbind(b SSLBinding) error
}

// SplitBindingInformation 拆分 "ip:port:host"，IPv6 地址形如 [::1]
func SplitBindingInformation(info string) (ip string, port int, host string, ok bool) {
	idx := strings.LastIndex(info, ":")
	if idx < 0 {
		return "", 0, "", false
	}
	host = info[idx+1:]
	rest := info[:idx]

	idx = strings.LastIndex(rest, ":")
	if idx < 0 {
		return "", 0, "", false
	}
	port, err := strconv.Atoi(rest[idx+1:])
	if err != nil {
		return "", 0, "", false
	}
	return rest[:idx], port, host, true
}

// sslBindingFor 由站点绑定推导 HTTP.sys 绑定，非 https 或未设置证书返回 false
func sslBindingFor(b *Binding) (SSLBinding, bool) {
	if !strings.EqualFold(b.Protocol, "https") || b.CertificateHash == "" {
		return SSLBinding{}, false
	}
	ip, port, host, ok := SplitBindingInformation(b.BindingInformation)
	if !ok {
		return SSLBinding{}, false
	}

	storeName := b.CertificateStoreName
	if storeName == "" {
		storeName = "MY"
	}
	result := SSLBinding{
		CertHash:      strings.ToLower(b.CertificateHash),
		CertStoreName: storeName,
		AppID:         defaultAppID,
	}
	if host != "" && b.SslFlags&1 == 1 {
		result.SNI = true
		result.Endpoint = fmt.Sprintf("%s:%d", host, port)
	} else {
		if ip == "*" || ip == "" {
			ip = "0.0.0.0"
		}
		result.Endpoint = fmt.Sprintf("%s:%d", ip, port)
	}
	return result, true
}

// collectSSLBindings 文档中所有需要证书的绑定，按 Endpoint 索引
func collectSSLBindings(doc *Document) map[string]SSLBinding {
	result := make(map[string]SSLBinding)
	if doc.ApplicationHost == nil || doc.ApplicationHost.Sites == nil {
		return result
	}
	for _, site := range doc.ApplicationHost.Sites.Sites {
		for _, b := range site.Bindings {
			if sb, ok := sslBindingFor(b); ok {
				result[strings.ToLower(sb.Endpoint)] = sb
			}
		}
	}
	return result
}

// NetshBinder 通过 netsh http 维护证书绑定
type NetshBinder struct {
	run func(name string, args ...string) (string, error)
}

// NewNetshBinder 创建 netsh 绑定器
func NewNetshBinder() *NetshBinder {
	return &NetshBinder{run: util.RunCmdCombined}
}

func endpointArg(b SSLBinding) string {
	if b.SNI {
		return "hostnameport=" + b.Endpoint
	}
	return "ipport=" + b.Endpoint
}

// Bind 添加证书绑定，已有绑定会先删除
func (n *NetshBinder) Bind(b SSLBinding) error {
	if err := util.ValidateThumbprint(b.CertHash); err != nil {
		return errors.Wrap(err, "无效的证书指纹")
	}
	appID := b.AppID
	if appID == "" {
		appID = defaultAppID
	}
	storeName := b.CertStoreName
	if storeName == "" {
		storeName = "MY"
	}

	_ = n.Unbind(b)

	output, err := n.run("netsh", "http", "add", "sslcert",
		endpointArg(b),
		fmt.Sprintf("certhash=%s", strings.ToLower(b.CertHash)),
		fmt.Sprintf("appid=%s", appID),
		fmt.Sprintf("certstorename=%s", storeName))

	// 检查输出是否包含成功信息
	isSuccess := strings.Contains(strings.ToLower(output), "success") ||
		strings.Contains(output, "成功")
	if err != nil && !isSuccess {
		return errors.Wrapf(err, "绑定证书失败, 输出: %s", util.TruncateString(output, 500))
	}

	// 验证绑定是否真正成功
	current, verifyErr := n.find(b.Endpoint)
	if verifyErr != nil || current == nil {
		if isSuccess {
			return nil // 命令报告成功，信任它
		}
		return errors.Newf("绑定未生效: %s", b.Endpoint)
	}
	if !strings.EqualFold(current.CertHash, b.CertHash) {
		return errors.Newf("绑定证书不匹配: 期望 %s, 实际 %s", b.CertHash, current.CertHash)
	}
	return nil
}

// Unbind 删除证书绑定
func (n *NetshBinder) Unbind(b SSLBinding) error {
	output, err := n.run("netsh", "http", "delete", "sslcert", endpointArg(b))
	if err != nil {
		return errors.Wrapf(err, "解除绑定失败, 输出: %s", util.TruncateString(output, 500))
	}
	return nil
}

// List 列出所有 SSL 证书绑定
func (n *NetshBinder) List() ([]SSLBinding, error) {
	output, err := n.run("netsh", "http", "show", "sslcert")
	if err != nil {
		return nil, errors.Wrap(err, "获取 SSL 绑定列表失败")
	}
	return parseSSLBindings(output), nil
}

func (n *NetshBinder) find(endpoint string) (*SSLBinding, error) {
	bindings, err := n.List()
	if err != nil {
		return nil, err
	}
	for i := range bindings {
		if strings.EqualFold(bindings[i].Endpoint, endpoint) {
			return &bindings[i], nil
		}
	}
	return nil, nil
}

// 正则表达式匹配（支持中英文和全角/半角冒号）
var (
	sniBindingRe = regexp.MustCompile(`(?i)(?:Hostname:port|主机名[:：]端口)\s*[:：]\s*(.+)`)
	ipBindingRe  = regexp.MustCompile(`(?i)(?:IP:port|IP[:：]端口)\s*[:：]\s*(.+)`)
	certHashRe   = regexp.MustCompile(`(?i)(?:Certificate Hash|证书哈希)\s*[:：]\s*([a-fA-F0-9]+)`)
	appIDRe      = regexp.MustCompile(`(?i)(?:Application ID|应用程序\s*ID)\s*[:：]\s*(\{[^}]+\})`)
	storeRe      = regexp.MustCompile(`(?i)(?:Certificate Store Name|证书存储名称)\s*[:：]\s*(.+)`)
)

// parseSSLBindings 解析 netsh 输出
func parseSSLBindings(output string) []SSLBinding {
	bindings := make([]SSLBinding, 0)

	var current *SSLBinding
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if matches := sniBindingRe.FindStringSubmatch(line); matches != nil {
			if current != nil {
				bindings = append(bindings, *current)
			}
			current = &SSLBinding{Endpoint: strings.TrimSpace(matches[1]), SNI: true}
			continue
		}
		if matches := ipBindingRe.FindStringSubmatch(line); matches != nil {
			if current != nil {
				bindings = append(bindings, *current)
			}
			current = &SSLBinding{Endpoint: strings.TrimSpace(matches[1])}
			continue
		}

		if current == nil {
			continue
		}

		if matches := certHashRe.FindStringSubmatch(line); matches != nil {
			current.CertHash = strings.ToLower(strings.TrimSpace(matches[1]))
		} else if matches := appIDRe.FindStringSubmatch(line); matches != nil {
			current.AppID = strings.TrimSpace(matches[1])
		} else if matches := storeRe.FindStringSubmatch(line); matches != nil {
			current.CertStoreName = strings.TrimSpace(matches[1])
		}
	}

	if current != nil {
		bindings = append(bindings, *current)
	}
	return bindings
}
