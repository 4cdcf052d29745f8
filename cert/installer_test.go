package cert

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstallScript(t *testing.T) {
	script := installScript(`C:\tmp\a'b.pfx`, "p'w$d", "WebHosting")

	assert.Contains(t, script, `-String 'p''w$d'`)
	assert.Contains(t, script, `-FilePath 'C:\tmp\a''b.pfx'`)
	assert.Contains(t, script, `'Cert:\LocalMachine\WebHosting'`)
}

func TestPowerShellInstaller(t *testing.T) {
	var got string
	i := &PowerShellInstaller{run: func(script string) (string, error) {
		got = script
		return "Thumbprint: abc123def456789012345678901234567890abcd\r\n", nil
	}}

	thumbprint, err := i.InstallPFX("site.pfx", "secret", "")
	require.NoError(t, err)
	assert.Equal(t, "ABC123DEF456789012345678901234567890ABCD", thumbprint)
	assert.Contains(t, got, `Cert:\LocalMachine\My`)
}

func TestPowerShellInstallerErrors(t *testing.T) {
	tests := []struct {
		name    string
		output  string
		fail    bool
		wantMsg string
	}{
		{"密码错误", "Import-PfxCertificate : The specified network password is not correct.", true, "密码错误或证书文件损坏"},
		{"拒绝访问", "Access is denied.", true, "访问被拒绝"},
		{"没有指纹输出", "", false, "未能获取证书指纹"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			i := &PowerShellInstaller{run: func(string) (string, error) {
				if tt.fail {
					return tt.output, assert.AnError
				}
				return tt.output, nil
			}}
			_, err := i.InstallPFX("site.pfx", "secret", "My")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestSimplifyInstallError(t *testing.T) {
	tests := []struct {
		name   string
		output string
		want   string
	}{
		{"中文密码", "指定的网络密码不正确", "密码错误或证书文件损坏"},
		{"找不到文件", "找不到路径", "文件不存在"},
		{"无效格式", "Invalid data", "无效的证书文件格式"},
		{"其他错误", "  something else  ", "something else"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, simplifyInstallError(tt.output))
		})
	}
}
