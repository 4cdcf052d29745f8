package store

import (
	"strings"

	"github.com/cockroachdb/errors"
)

var (
	// ErrSectionNotFound 配置架构中不存在该配置节（通常是对应的 IIS 功能未安装）
	ErrSectionNotFound = errors.New("配置节不存在")
	// ErrTransient IIS 尚未应用刚提交的配置，稍后重试即可
	ErrTransient = errors.New("IIS 配置尚未生效")
	// ErrDuplicate 名称已被占用
	ErrDuplicate = errors.New("名称已存在")
	// ErrClosed 连接已关闭
	ErrClosed = errors.New("配置存储已关闭")
	// ErrSSLSync 配置文件已保存，但 http.sys 证书绑定未能同步，下次提交时重试
	ErrSSLSync = errors.New("证书绑定同步失败")
)

// DefaultSchema 默认安装的 IIS 角色（Web 服务器 + FTP 服务器）提供的配置节
var DefaultSchema = []string{
	"system.webServer/security/authentication/anonymousAuthentication",
	"system.webServer/security/authentication/basicAuthentication",
	"system.webServer/security/authentication/windowsAuthentication",
	"system.webServer/security/authorization",
	"system.webServer/directoryBrowse",
	"system.webServer/httpLogging",
	"system.ftpServer/security/authentication/anonymousAuthentication",
	"system.ftpServer/security/authentication/basicAuthentication",
	"system.ftpServer/security/authorization",
	"system.ftpServer/serverRuntime",
}

// Schema 已知配置节路径集合
type Schema map[string]struct{}

// NewSchema 由配置节路径构造架构
func NewSchema(paths ...string) Schema {
	s := make(Schema, len(paths))
	for _, p := range paths {
		s[strings.Trim(p, "/")] = struct{}{}
	}
	return s
}

// Has 是否包含配置节
func (s Schema) Has(path string) bool {
	_, ok := s[strings.Trim(path, "/")]
	return ok
}
