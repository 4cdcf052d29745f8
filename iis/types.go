package iis

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"iisctl/store"
)

// IdentityType 应用程序池标识
type IdentityType string

const (
	IdentityLocalSystem             IdentityType = store.IdentityLocalSystem
	IdentityLocalService            IdentityType = store.IdentityLocalService
	IdentityNetworkService          IdentityType = store.IdentityNetworkService
	IdentityApplicationPoolIdentity IdentityType = store.IdentityApplicationPoolIdentity
	IdentitySpecificUser            IdentityType = store.IdentitySpecificUser
)

// ApplicationPoolSettings 应用程序池期望状态
//
// 进程模型字段为 nil 时保留 IIS 默认值。
type ApplicationPoolSettings struct {
	Name                  string       `yaml:"name" validate:"required"`
	IdentityType          IdentityType `yaml:"identityType,omitempty" validate:"omitempty,oneof=LocalSystem LocalService NetworkService ApplicationPoolIdentity SpecificUser"`
	Username              string       `yaml:"username,omitempty"`
	Password              string       `yaml:"password,omitempty"`
	ManagedRuntimeVersion string       `yaml:"managedRuntimeVersion"`
	ClassicPipelineMode   bool         `yaml:"classicPipelineMode,omitempty"`
	Enable32BitAppOnWin64 bool         `yaml:"enable32BitAppOnWin64,omitempty"`
	Autostart             bool         `yaml:"autostart"`

	LoadUserProfile   *bool          `yaml:"loadUserProfile,omitempty"`
	MaxProcesses      *int64         `yaml:"maxProcesses,omitempty" validate:"omitempty,min=0"`
	PingingEnabled    *bool          `yaml:"pingingEnabled,omitempty"`
	PingInterval      *time.Duration `yaml:"pingInterval,omitempty"`
	PingResponseTime  *time.Duration `yaml:"pingResponseTime,omitempty"`
	IdleTimeout       *time.Duration `yaml:"idleTimeout,omitempty"`
	ShutdownTimeLimit *time.Duration `yaml:"shutdownTimeLimit,omitempty"`
	StartupTimeLimit  *time.Duration `yaml:"startupTimeLimit,omitempty"`

	Overwrite bool `yaml:"overwrite,omitempty"`
}

// NewApplicationPoolSettings 默认设置：自动启动、.NET v4.0、集成管道
func NewApplicationPoolSettings(name string) *ApplicationPoolSettings {
	return &ApplicationPoolSettings{
		Name:                  name,
		ManagedRuntimeVersion: "v4.0",
		Autostart:             true,
	}
}

// UnmarshalYAML 未出现的字段使用 NewApplicationPoolSettings 的默认值
func (s *ApplicationPoolSettings) UnmarshalYAML(node *yaml.Node) error {
	type plain ApplicationPoolSettings
	v := plain(*NewApplicationPoolSettings(""))
	if err := node.Decode(&v); err != nil {
		return err
	}
	*s = ApplicationPoolSettings(v)
	return nil
}

// EffectiveIdentity 未指定标识时，设置了用户名即为 SpecificUser
func (s *ApplicationPoolSettings) EffectiveIdentity() IdentityType {
	if s.IdentityType != "" {
		return s.IdentityType
	}
	if s.Username != "" {
		return IdentitySpecificUser
	}
	return IdentityApplicationPoolIdentity
}

// AuthenticationSettings 身份验证
type AuthenticationSettings struct {
	EnableAnonymousAuthentication bool   `yaml:"anonymous"`
	EnableBasicAuthentication     bool   `yaml:"basic"`
	EnableWindowsAuthentication   bool   `yaml:"windows"`
	Username                      string `yaml:"username,omitempty"`
	Password                      string `yaml:"password,omitempty"`
}

// AuthorizationType 授权类型
type AuthorizationType string

const (
	AuthorizationAllUsers                 AuthorizationType = "AllUsers"
	AuthorizationSpecifiedUser            AuthorizationType = "SpecifiedUser"
	AuthorizationSpecifiedRoleOrUserGroup AuthorizationType = "SpecifiedRoleOrUserGroup"
)

// AuthorizationSettings 授权规则
type AuthorizationSettings struct {
	AuthorizationType AuthorizationType `yaml:"type" validate:"required,oneof=AllUsers SpecifiedUser SpecifiedRoleOrUserGroup"`
	Users             []string          `yaml:"users,omitempty" validate:"required_if=AuthorizationType SpecifiedUser"`
	Roles             []string          `yaml:"roles,omitempty" validate:"required_if=AuthorizationType SpecifiedRoleOrUserGroup"`
	CanRead           bool              `yaml:"canRead"`
	CanWrite          bool              `yaml:"canWrite"`
}

// SiteSettings 站点期望状态
type SiteSettings struct {
	Name              string `yaml:"name" validate:"required"`
	ComputerName      string `yaml:"computerName,omitempty"`
	WorkingDirectory  string `yaml:"workingDirectory,omitempty"`
	PhysicalDirectory string `yaml:"physicalDirectory" validate:"required"`

	Binding                   *BindingSettings         `yaml:"binding" validate:"required"`
	AlternateEnabledProtocols string                   `yaml:"alternateEnabledProtocols,omitempty"`
	ApplicationPool           *ApplicationPoolSettings `yaml:"applicationPool" validate:"required"`
	Authentication            *AuthenticationSettings  `yaml:"authentication,omitempty"`
	Authorization             *AuthorizationSettings   `yaml:"authorization,omitempty"`

	TraceFailedRequestsEnabled     bool   `yaml:"traceFailedRequestsEnabled,omitempty"`
	TraceFailedRequestsDirectory   string `yaml:"traceFailedRequestsDirectory,omitempty"`
	TraceFailedRequestsMaxLogFiles int64  `yaml:"traceFailedRequestsMaxLogFiles,omitempty"`

	ServerAutoStart bool `yaml:"serverAutoStart"`
	Overwrite       bool `yaml:"overwrite,omitempty"`
}

func defaultSiteSettings(binding *BindingSettings) SiteSettings {
	return SiteSettings{
		Binding:         binding,
		ApplicationPool: NewApplicationPoolSettings("ASP.NET v4.0"),
		ServerAutoStart: true,
	}
}

// WebsiteSettings 网站
type WebsiteSettings struct {
	SiteSettings            `yaml:",inline"`
	EnableDirectoryBrowsing bool `yaml:"enableDirectoryBrowsing,omitempty"`
}

// NewWebsiteSettings 默认 http *:80: 绑定，应用程序池 "ASP.NET v4.0"
func NewWebsiteSettings(name string) *WebsiteSettings {
	s := &WebsiteSettings{SiteSettings: defaultSiteSettings(HTTPBinding())}
	s.Name = name
	return s
}

// UnmarshalYAML 未出现的字段使用 NewWebsiteSettings 的默认值
func (s *WebsiteSettings) UnmarshalYAML(node *yaml.Node) error {
	type plain WebsiteSettings
	v := plain(*NewWebsiteSettings(""))
	if err := node.Decode(&v); err != nil {
		return err
	}
	*s = WebsiteSettings(v)
	return nil
}

// FtpSiteSettings FTP 站点
type FtpSiteSettings struct {
	SiteSettings `yaml:",inline"`
}

// NewFtpSiteSettings 默认 ftp 21: 绑定
func NewFtpSiteSettings(name string) *FtpSiteSettings {
	s := &FtpSiteSettings{SiteSettings: defaultSiteSettings(FTPBinding())}
	s.Name = name
	return s
}

// UnmarshalYAML 未出现的字段使用 NewFtpSiteSettings 的默认值
func (s *FtpSiteSettings) UnmarshalYAML(node *yaml.Node) error {
	type plain FtpSiteSettings
	v := plain(*NewFtpSiteSettings(""))
	if err := node.Decode(&v); err != nil {
		return err
	}
	*s = FtpSiteSettings(v)
	return nil
}

// ApplicationSettings 站点下的应用
type ApplicationSettings struct {
	SiteName        string `yaml:"siteName" validate:"required"`
	ApplicationPath string `yaml:"path" validate:"required,startswith=/"`
	// ApplicationPool 为空时使用站点的应用程序池
	ApplicationPool string `yaml:"applicationPool,omitempty"`
	// VirtualDirectory 为空时为 "/"
	VirtualDirectory  string `yaml:"virtualDirectory,omitempty"`
	ComputerName      string `yaml:"computerName,omitempty"`
	WorkingDirectory  string `yaml:"workingDirectory,omitempty"`
	PhysicalDirectory string `yaml:"physicalDirectory" validate:"required"`

	Authentication            *AuthenticationSettings `yaml:"authentication,omitempty"`
	Authorization             *AuthorizationSettings  `yaml:"authorization,omitempty"`
	AlternateEnabledProtocols string                  `yaml:"alternateEnabledProtocols,omitempty"`
	Overwrite                 bool                    `yaml:"overwrite,omitempty"`
}

// VirtualDirectorySettings 应用下的虚拟目录
type VirtualDirectorySettings struct {
	SiteName          string `yaml:"siteName" validate:"required"`
	ApplicationPath   string `yaml:"applicationPath" validate:"required,startswith=/"`
	Path              string `yaml:"path" validate:"required,startswith=/"`
	ComputerName      string `yaml:"computerName,omitempty"`
	WorkingDirectory  string `yaml:"workingDirectory,omitempty"`
	PhysicalDirectory string `yaml:"physicalDirectory"`

	Authentication *AuthenticationSettings `yaml:"authentication,omitempty"`
	Authorization  *AuthorizationSettings  `yaml:"authorization,omitempty"`
}

// ApplicationAuthentication 虚拟应用身份验证标志
type ApplicationAuthentication int

const (
	AuthWindows ApplicationAuthentication = 1 << iota
	AuthAnonymous
)

// VirtualApplicationSettings 可覆盖的虚拟应用
type VirtualApplicationSettings struct {
	// Name 应用路径，可省略前导 "/"
	Name                string `yaml:"name" validate:"required"`
	PhysicalPath        string `yaml:"physicalPath"`
	ParentWebSite       string `yaml:"site" validate:"required"`
	ApplicationPoolName string `yaml:"applicationPool,omitempty"`
	EnabledProtocols    string `yaml:"enabledProtocols,omitempty"`
	// Authentication 为 nil 时不修改身份验证
	Authentication *ApplicationAuthentication `yaml:"authentication,omitempty"`
	Overwrite      bool                       `yaml:"overwrite,omitempty"`
}

// UnmarshalYAML 接受 ["windows", "anonymous"] 形式的列表
func (a *ApplicationAuthentication) UnmarshalYAML(node *yaml.Node) error {
	var names []string
	if err := node.Decode(&names); err != nil {
		return err
	}
	var v ApplicationAuthentication
	for _, name := range names {
		switch strings.ToLower(name) {
		case "windows":
			v |= AuthWindows
		case "anonymous":
			v |= AuthAnonymous
		default:
			return fmt.Errorf("未知的身份验证类型: %s", name)
		}
	}
	*a = v
	return nil
}
