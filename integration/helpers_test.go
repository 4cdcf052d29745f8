//go:build integration

package integration

import (
	"crypto/tls"
	"fmt"
	"net/http"
	"os/exec"
	"strings"
	"testing"
	"time"

	"iisctl/iis"
	"iisctl/store"
	"iisctl/util"
)

// isAdmin 检测是否以管理员权限运行
func isAdmin() bool {
	cmd := exec.Command("net", "session")
	err := cmd.Run()
	return err == nil
}

// RequireAdmin 要求管理员权限，否则跳过测试
func RequireAdmin(t *testing.T) {
	t.Helper()
	if !isAdmin() {
		t.Skip("此测试需要管理员权限")
	}
}

// isIISInstalled 检测 IIS 是否安装
func isIISInstalled() bool {
	cmd := exec.Command("sc", "query", "w3svc")
	output, err := cmd.Output()
	if err != nil {
		return false
	}
	return strings.Contains(string(output), "RUNNING") ||
		strings.Contains(string(output), "STATE")
}

// RequireIIS 要求 IIS 已安装，否则跳过测试
func RequireIIS(t *testing.T) {
	t.Helper()
	if !isIISInstalled() {
		t.Skip("此测试需要 IIS 已安装")
	}
}

// openLocal 打开本机 IIS 配置，测试结束时关闭
func openLocal(t *testing.T) store.Manager {
	t.Helper()
	srv, err := store.OpenLocal()
	if err != nil {
		t.Fatalf("打开本机 IIS 配置失败: %v", err)
	}
	t.Cleanup(func() { srv.Close() })
	return srv
}

// TestCleanup 测试清理辅助结构
type TestCleanup struct {
	t           *testing.T
	sites       []string
	pools       []string
	thumbprints []string
}

// NewTestCleanup 创建测试清理器
func NewTestCleanup(t *testing.T) *TestCleanup {
	return &TestCleanup{t: t}
}

func (c *TestCleanup) AddSite(name string) {
	c.sites = append(c.sites, name)
}

func (c *TestCleanup) AddPool(name string) {
	c.pools = append(c.pools, name)
}

// AddCertificate 添加需要从 LocalMachine\My 删除的证书
func (c *TestCleanup) AddCertificate(thumbprint string) {
	if thumbprint != "" {
		c.thumbprints = append(c.thumbprints, thumbprint)
	}
}

// Cleanup 先删站点再删应用程序池，最后删证书
func (c *TestCleanup) Cleanup() {
	srv, err := store.OpenLocal()
	if err != nil {
		c.t.Logf("清理时打开配置失败: %v", err)
		return
	}
	defer srv.Close()

	for _, name := range c.sites {
		if _, err := iis.DeleteSite(srv, name); err != nil {
			c.t.Logf("清理站点 %s 失败: %v", name, err)
		}
	}
	for _, name := range c.pools {
		if _, err := iis.DeleteApplicationPool(srv, name); err != nil {
			c.t.Logf("清理应用程序池 %s 失败: %v", name, err)
		}
	}
	for _, tp := range c.thumbprints {
		script := fmt.Sprintf(`Remove-Item -Path 'Cert:\LocalMachine\My\%s' -ErrorAction SilentlyContinue`,
			util.EscapePowerShellString(tp))
		if out, err := util.RunPowerShellCombined(script); err != nil {
			c.t.Logf("清理证书 %s 失败: %v %s", tp, err, out)
		}
	}
}

// verifyHTTPS 验证 HTTPS 访问
func verifyHTTPS(hostname string, port int) error {
	url := fmt.Sprintf("https://%s:%d/", hostname, port)
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: true, // 测试环境允许自签名
				ServerName:         hostname,
			},
		},
	}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("HTTPS 访问失败: %w", err)
	}
	defer resp.Body.Close()

	// 只要能建立 TLS 连接就算成功（不管 HTTP 状态码）
	return nil
}
