package cert

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"

	"iisctl/util"
)

// DefaultStoreName IIS https 绑定默认使用的证书存储
const DefaultStoreName = "My"

// Installer 将 PFX 导入 LocalMachine 证书存储，返回导入证书的指纹
type Installer interface {
	InstallPFX(pfxPath, password, storeName string) (string, error)
}

// PowerShellInstaller 通过 Import-PfxCertificate 导入证书
type PowerShellInstaller struct {
	run func(script string) (string, error)
}

// NewPowerShellInstaller 创建本机证书安装器
func NewPowerShellInstaller() *PowerShellInstaller {
	return &PowerShellInstaller{run: util.RunPowerShellCombined}
}

func installScript(pfxPath, password, storeName string) string {
	return fmt.Sprintf(`
$password = ConvertTo-SecureString -String '%s' -Force -AsPlainText
$cert = Import-PfxCertificate -FilePath '%s' -CertStoreLocation 'Cert:\LocalMachine\%s' -Password $password -Exportable
if ($cert) {
    Write-Output "Thumbprint: $($cert.Thumbprint)"
} else {
    Write-Error "导入失败"
}
`, util.EscapePowerShellString(password), util.EscapePowerShellString(pfxPath), util.EscapePowerShellString(storeName))
}

// InstallPFX 导入 PFX 到 Cert:\LocalMachine\<storeName>
func (i *PowerShellInstaller) InstallPFX(pfxPath, password, storeName string) (string, error) {
	if storeName == "" {
		storeName = DefaultStoreName
	}
	absPath, err := filepath.Abs(pfxPath)
	if err != nil {
		return "", errors.Wrap(err, "获取绝对路径失败")
	}

	output, err := i.run(installScript(absPath, password, storeName))
	if err != nil {
		return "", errors.Newf("导入证书失败: %s", simplifyInstallError(output))
	}

	thumbprint := parseThumbprintOutput(output)
	if thumbprint == "" {
		return "", errors.New("导入成功但未能获取证书指纹")
	}
	util.Info("证书已导入 LocalMachine\\%s: %s", storeName, thumbprint)
	return thumbprint, nil
}

func parseThumbprintOutput(output string) string {
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "Thumbprint: ") {
			return strings.ToUpper(strings.TrimSpace(strings.TrimPrefix(line, "Thumbprint: ")))
		}
	}
	return ""
}

// simplifyInstallError 将 PowerShell 错误输出归类为简短说明
func simplifyInstallError(output string) string {
	lower := strings.ToLower(output)

	switch {
	case strings.Contains(lower, "password") || strings.Contains(lower, "密码"):
		return "密码错误或证书文件损坏"
	case strings.Contains(lower, "access") || strings.Contains(lower, "denied") || strings.Contains(lower, "拒绝访问"):
		return "访问被拒绝，请以管理员权限运行"
	case strings.Contains(lower, "not found") || strings.Contains(lower, "找不到"):
		return "文件不存在"
	case strings.Contains(lower, "invalid") || strings.Contains(lower, "无效"):
		return "无效的证书文件格式"
	}
	return util.TruncateString(strings.TrimSpace(output), 100)
}
