//go:build integration

package integration

import (
	"os"
	"testing"

	"iisctl/iis"
	"iisctl/store"
)

// 测试使用的对象名称，运行前后都会清理
const (
	TestSiteName = "iisctl-integration"
	TestPoolName = "iisctl-integration-pool"
	TestHostName = "iisctl.integration.test"
	TestPort     = 18443
)

func TestMain(m *testing.M) {
	// 运行测试前的环境检查
	if !isAdmin() {
		println("警告: 非管理员权限运行，部分测试将被跳过")
	}
	iis.TransientRetryDelay = 0

	os.Exit(m.Run())
}

// TestEnvironment 验证测试环境
func TestEnvironment(t *testing.T) {
	t.Run("CheckAdmin", func(t *testing.T) {
		if !isAdmin() {
			t.Skip("需要管理员权限")
		}
		t.Log("管理员权限: OK")
	})

	t.Run("CheckIIS", func(t *testing.T) {
		if !isIISInstalled() {
			t.Skip("IIS 未安装")
		}
		t.Log("IIS 安装: OK")
	})

	t.Run("CheckConfig", func(t *testing.T) {
		RequireAdmin(t)
		RequireIIS(t)
		t.Logf("配置文件: %s", store.ApplicationHostPath(""))
		openLocal(t)
	})
}
