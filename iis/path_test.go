package iis

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
)

func TestExpandIISPhysicalPath(t *testing.T) {
	t.Setenv("IISCTL_SITE_ROOT", `D:\www`)

	tests := []struct {
		name string
		path string
		want string
	}{
		{"无环境变量", "C:\\inetpub\\wwwroot", "C:\\inetpub\\wwwroot"},
		{"空字符串", "", ""},
		{"单个百分号", "C:\\test%path", "C:\\test%path"},
		{"双百分号", "C:\\test%%path", "C:\\test%path"},
		{"已定义的变量", "%IISCTL_SITE_ROOT%\\app", "D:\\www\\app"},
		{"未定义的变量", "%IISCTL_UNDEFINED_VAR%\\app", "%IISCTL_UNDEFINED_VAR%\\app"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := expandIISPhysicalPath(tt.path)
			if got != tt.want {
				t.Errorf("expandIISPhysicalPath(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestCleanWindowsPath(t *testing.T) {
	tests := []struct {
		name string
		path string
		want string
	}{
		{"正斜杠", "C:/inetpub/wwwroot", `C:\inetpub\wwwroot`},
		{"上级目录", `C:\inetpub\..\sites\.\a`, `C:\sites\a`},
		{"超出根目录", `C:\..\a`, `C:\a`},
		{"UNC", `\\server\share\dir\..\x`, `\\server\share\x`},
		{"环境变量不被上级目录消除", `%SystemDrive%\..\a`, `%SystemDrive%\a`},
		{"重复分隔符", `C:\a\\b\`, `C:\a\b`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cleanWindowsPath(tt.path); got != tt.want {
				t.Errorf("cleanWindowsPath(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestResolvePhysicalDirectory(t *testing.T) {
	cwd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		computer string
		workDir  string
		physical string
		want     string
	}{
		{"绝对路径", "", "", `C:\inetpub\site`, `C:\inetpub\site`},
		{"保留环境变量", "", "", `%SystemDrive%\inetpub`, `%SystemDrive%\inetpub`},
		{"相对于工作目录", "", `D:\deploy`, `site\..\www`, `D:\deploy\www`},
		{"远程主机默认 C 盘", "web01", "", `inetpub\site`, `C:\inetpub\site`},
		{"远程主机指定工作目录", "web01", `E:\data`, "site", `E:\data\site`},
		{"本机相对当前目录", "", "", "site", filepath.Join(cwd, "site")},
		{"本机相对工作目录", "", "work", "site", filepath.Join(cwd, "work", "site")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolvePhysicalDirectory(tt.computer, tt.workDir, tt.physical)
			if err != nil {
				t.Fatalf("ResolvePhysicalDirectory() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("ResolvePhysicalDirectory() = %q, want %q", got, tt.want)
			}
		})
	}

	if _, err := ResolvePhysicalDirectory("", "", "  "); !errors.Is(err, ErrValidation) {
		t.Errorf("空路径 error = %v, want ErrValidation", err)
	}
}
