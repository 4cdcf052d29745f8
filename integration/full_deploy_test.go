//go:build integration

package integration

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"iisctl/cert"
	"iisctl/config"
	"iisctl/deploy"
	"iisctl/store"
)

// writeSelfSigned 生成自签名证书和私钥 PEM，返回证书指纹
func writeSelfSigned(t *testing.T, dir, host string) (certPath, keyPath, thumbprint string) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject:      pkix.Name{CommonName: host},
		DNSNames:     []string{host},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatal(err)
	}
	parsed, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatal(err)
	}

	certPath = filepath.Join(dir, "site.crt")
	keyPath = filepath.Join(dir, "site.key")
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	if err := os.WriteFile(certPath, certPEM, 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(keyPath, keyPEM, 0600); err != nil {
		t.Fatal(err)
	}
	return certPath, keyPath, cert.Thumbprint(parsed)
}

// TestFullDeployFlow 按清单部署带证书的 https 站点
func TestFullDeployFlow(t *testing.T) {
	RequireAdmin(t)
	RequireIIS(t)

	cleanup := NewTestCleanup(t)
	defer cleanup.Cleanup()
	cleanup.AddSite(TestSiteName)
	cleanup.AddPool(TestPoolName)

	dir := t.TempDir()
	certPath, keyPath, thumbprint := writeSelfSigned(t, dir, TestHostName)
	cleanup.AddCertificate(thumbprint)

	manifest := fmt.Sprintf(`
websites:
  - name: %s
    physicalDirectory: '%s'
    overwrite: true
    applicationPool: {name: %s}
    binding: {protocol: https, hostName: %s, port: %d}
    certificate:
      certPem: '%s'
      keyPem: '%s'
      install: true
`, TestSiteName, dir, TestPoolName, TestHostName, TestPort, certPath, keyPath)
	manifestPath := filepath.Join(dir, "iis.yaml")
	if err := os.WriteFile(manifestPath, []byte(manifest), 0644); err != nil {
		t.Fatal(err)
	}

	// 1. 加载清单
	t.Log("步骤 1: 加载清单")
	m, err := deploy.LoadManifest(manifestPath)
	if err != nil {
		t.Fatalf("加载清单失败: %v", err)
	}

	// 2. 部署
	t.Log("步骤 2: 部署（安装证书、创建应用程序池和站点）")
	d := deploy.DefaultDeployer(config.DefaultConfig())
	results, err := d.Apply(m)
	for _, r := range results {
		t.Log(r.String())
	}
	if err != nil {
		t.Fatalf("部署失败: %v", err)
	}
	if len(results) != 1 || !strings.EqualFold(results[0].Thumbprint, thumbprint) {
		t.Fatalf("部署结果不正确: %+v", results)
	}

	// 3. 验证 HTTP.sys 证书绑定
	t.Log("步骤 3: 验证 SSL 绑定")
	bindings, err := store.NewNetshBinder().List()
	if err != nil {
		t.Fatalf("获取 SSL 绑定失败: %v", err)
	}
	endpoint := fmt.Sprintf("%s:%d", TestHostName, TestPort)
	found := false
	for _, b := range bindings {
		if strings.EqualFold(b.Endpoint, endpoint) {
			found = strings.EqualFold(b.CertHash, thumbprint)
			t.Logf("绑定验证: %s -> %s", b.Endpoint, b.CertHash)
		}
	}
	if !found {
		t.Errorf("未找到 %s 的证书绑定", endpoint)
	}

	// 4. 尝试 HTTPS 访问（可选，取决于 hosts 配置）
	t.Log("步骤 4: 测试 HTTPS 访问（可选）")
	if err := verifyHTTPS(TestHostName, TestPort); err != nil {
		t.Logf("HTTPS 访问失败（可能未配置 hosts）: %v", err)
	} else {
		t.Log("HTTPS 访问成功")
	}

	// 5. 重复部署不应修改
	t.Log("步骤 5: 重复部署")
	m.Websites[0].Settings.Overwrite = false
	results, err = d.Apply(m)
	if err != nil {
		t.Fatalf("重复部署失败: %v", err)
	}
	if results[0].Changed {
		t.Errorf("重复部署不应修改站点: %s", results[0])
	}

	t.Log("完整部署流程测试通过")
}
