package store

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ObjectState 站点 / 应用程序池运行状态
type ObjectState string

const (
	StateStarted ObjectState = "Started"
	StateStopped ObjectState = "Stopped"
	StateUnknown ObjectState = "Unknown"
)

// 应用程序池标识类型（与 applicationHost.config 中 identityType 取值一致）
const (
	IdentityLocalSystem             = "LocalSystem"
	IdentityLocalService            = "LocalService"
	IdentityNetworkService          = "NetworkService"
	IdentityApplicationPoolIdentity = "ApplicationPoolIdentity"
	IdentitySpecificUser            = "SpecificUser"
)

// 托管管道模式
const (
	PipelineIntegrated = "Integrated"
	PipelineClassic    = "Classic"
)

// Document applicationHost.config 文档
type Document struct {
	XMLName         xml.Name         `xml:"configuration"`
	Sections        []*Element       `xml:",any"`
	ApplicationHost *ApplicationHost `xml:"system.applicationHost"`
	Locations       []*Location      `xml:"location"`
}

// ApplicationHost system.applicationHost 节
type ApplicationHost struct {
	ApplicationPools *ApplicationPools `xml:"applicationPools"`
	Sites            *Sites            `xml:"sites"`
	Other            []*Element        `xml:",any"`
}

// ApplicationPools 应用程序池集合
type ApplicationPools struct {
	Pools    []*ApplicationPool `xml:"add"`
	Defaults *Element           `xml:"applicationPoolDefaults,omitempty"`
	Other    []*Element         `xml:",any"`
}

// Sites 站点集合
type Sites struct {
	Sites []*Site    `xml:"site"`
	Other []*Element `xml:",any"`
}

// Location <location path="站点/应用"> 下的配置节
type Location struct {
	Path         string     `xml:"path,attr"`
	OverrideMode string     `xml:"overrideMode,attr,omitempty"`
	Attrs        []xml.Attr `xml:",any,attr"`
	Sections     []*Element `xml:",any"`
}

// Site 站点记录
type Site struct {
	Name                       string                      `xml:"name,attr"`
	ID                         int64                       `xml:"id,attr"`
	ServerAutoStart            bool                        `xml:"serverAutoStart,attr"`
	Applications               []*Application              `xml:"application"`
	Bindings                   []*Binding                  `xml:"bindings>binding"`
	ApplicationDefaults        *ApplicationDefaults        `xml:"applicationDefaults,omitempty"`
	TraceFailedRequestsLogging *TraceFailedRequestsLogging `xml:"traceFailedRequestsLogging,omitempty"`
	FtpServer                  *Element                    `xml:"ftpServer,omitempty"`
	Attrs                      []xml.Attr                  `xml:",any,attr"`
	Other                      []*Element                  `xml:",any"`
}

// UnmarshalXML 未出现的属性按 IIS 默认值处理
func (s *Site) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	type plain Site
	v := plain{ServerAutoStart: true}
	if err := d.DecodeElement(&v, &start); err != nil {
		return err
	}
	*s = Site(v)
	return nil
}

// ApplicationDefaults 站点下应用的默认值
type ApplicationDefaults struct {
	ApplicationPool  string     `xml:"applicationPool,attr,omitempty"`
	EnabledProtocols string     `xml:"enabledProtocols,attr,omitempty"`
	Attrs            []xml.Attr `xml:",any,attr"`
}

// TraceFailedRequestsLogging 失败请求跟踪
type TraceFailedRequestsLogging struct {
	Enabled     bool       `xml:"enabled,attr"`
	Directory   string     `xml:"directory,attr,omitempty"`
	MaxLogFiles int64      `xml:"maxLogFiles,attr,omitempty"`
	Attrs       []xml.Attr `xml:",any,attr"`
}

// ApplicationPoolName 站点绑定的应用程序池名称
func (s *Site) ApplicationPoolName() string {
	if s.ApplicationDefaults == nil {
		return ""
	}
	return s.ApplicationDefaults.ApplicationPool
}

// SetApplicationPoolName 设置站点默认应用程序池
func (s *Site) SetApplicationPoolName(name string) {
	if s.ApplicationDefaults == nil {
		s.ApplicationDefaults = &ApplicationDefaults{}
	}
	s.ApplicationDefaults.ApplicationPool = name
}

// SetEnabledProtocols 设置站点默认启用协议
func (s *Site) SetEnabledProtocols(protocols string) {
	if s.ApplicationDefaults == nil {
		s.ApplicationDefaults = &ApplicationDefaults{}
	}
	s.ApplicationDefaults.EnabledProtocols = protocols
}

// FtpServerElement 获取或创建站点的 ftpServer 子元素
func (s *Site) FtpServerElement() *Element {
	if s.FtpServer == nil {
		s.FtpServer = NewElement("ftpServer")
	}
	return s.FtpServer
}

// Application 按路径查找应用
func (s *Site) Application(path string) *Application {
	for _, app := range s.Applications {
		if app.Path == path {
			return app
		}
	}
	return nil
}

// AddApplication 添加应用，同时创建根虚拟目录
func (s *Site) AddApplication(path, physicalPath string) *Application {
	app := &Application{Path: path}
	app.AddVirtualDirectory("/", physicalPath)
	s.Applications = append(s.Applications, app)
	return app
}

// RemoveApplication 删除应用
func (s *Site) RemoveApplication(path string) bool {
	for i, app := range s.Applications {
		if app.Path == path {
			s.Applications = append(s.Applications[:i], s.Applications[i+1:]...)
			return true
		}
	}
	return false
}

// matches 主机名不区分大小写，配置文件中可能保留手工写入的大写主机名
func (b *Binding) matches(protocol, bindingInformation string) bool {
	return strings.EqualFold(b.Protocol, protocol) && strings.EqualFold(b.BindingInformation, bindingInformation)
}

// FindBinding 按协议和绑定信息查找绑定
func (s *Site) FindBinding(protocol, bindingInformation string) *Binding {
	for _, b := range s.Bindings {
		if b.matches(protocol, bindingInformation) {
			return b
		}
	}
	return nil
}

// RemoveBinding 删除绑定
func (s *Site) RemoveBinding(protocol, bindingInformation string) bool {
	for i, b := range s.Bindings {
		if b.matches(protocol, bindingInformation) {
			s.Bindings = append(s.Bindings[:i], s.Bindings[i+1:]...)
			return true
		}
	}
	return false
}

// Binding 站点绑定
type Binding struct {
	Protocol             string     `xml:"protocol,attr"`
	BindingInformation   string     `xml:"bindingInformation,attr"`
	SslFlags             int        `xml:"sslFlags,attr,omitempty"`
	CertificateHash      string     `xml:"certificateHash,attr,omitempty"`
	CertificateStoreName string     `xml:"certificateStoreName,attr,omitempty"`
	Attrs                []xml.Attr `xml:",any,attr"`
}

// Application 应用
type Application struct {
	Path               string              `xml:"path,attr"`
	ApplicationPool    string              `xml:"applicationPool,attr,omitempty"`
	EnabledProtocols   string              `xml:"enabledProtocols,attr,omitempty"`
	VirtualDirectories []*VirtualDirectory `xml:"virtualDirectory"`
	Attrs              []xml.Attr          `xml:",any,attr"`
	Other              []*Element          `xml:",any"`
}

// VirtualDirectory 虚拟目录
type VirtualDirectory struct {
	Path         string     `xml:"path,attr"`
	PhysicalPath string     `xml:"physicalPath,attr"`
	UserName     string     `xml:"userName,attr,omitempty"`
	Password     string     `xml:"password,attr,omitempty"`
	Attrs        []xml.Attr `xml:",any,attr"`
	Other        []*Element `xml:",any"`
}

// VirtualDirectory 按路径查找虚拟目录
func (a *Application) VirtualDirectory(path string) *VirtualDirectory {
	for _, vdir := range a.VirtualDirectories {
		if vdir.Path == path {
			return vdir
		}
	}
	return nil
}

// AddVirtualDirectory 添加虚拟目录
func (a *Application) AddVirtualDirectory(path, physicalPath string) *VirtualDirectory {
	vdir := &VirtualDirectory{Path: path, PhysicalPath: physicalPath}
	a.VirtualDirectories = append(a.VirtualDirectories, vdir)
	return vdir
}

// RemoveVirtualDirectory 删除虚拟目录
func (a *Application) RemoveVirtualDirectory(path string) bool {
	for i, vdir := range a.VirtualDirectories {
		if vdir.Path == path {
			a.VirtualDirectories = append(a.VirtualDirectories[:i], a.VirtualDirectories[i+1:]...)
			return true
		}
	}
	return false
}

// ClearVirtualDirectories 清空虚拟目录
func (a *Application) ClearVirtualDirectories() {
	a.VirtualDirectories = nil
}

// ApplicationPool 应用程序池
type ApplicationPool struct {
	Name                  string       `xml:"name,attr"`
	AutoStart             bool         `xml:"autoStart,attr"`
	ManagedRuntimeVersion string       `xml:"managedRuntimeVersion,attr"`
	ManagedPipelineMode   string       `xml:"managedPipelineMode,attr"`
	Enable32BitAppOnWin64 bool         `xml:"enable32BitAppOnWin64,attr"`
	Attrs                 []xml.Attr   `xml:",any,attr"`
	ProcessModel          ProcessModel `xml:"processModel"`
	Other                 []*Element   `xml:",any"`
}

// ProcessModel 工作进程模型
type ProcessModel struct {
	IdentityType      string     `xml:"identityType,attr"`
	UserName          string     `xml:"userName,attr,omitempty"`
	Password          string     `xml:"password,attr,omitempty"`
	LoadUserProfile   bool       `xml:"loadUserProfile,attr"`
	MaxProcesses      int64      `xml:"maxProcesses,attr"`
	PingingEnabled    bool       `xml:"pingingEnabled,attr"`
	PingInterval      Duration   `xml:"pingInterval,attr"`
	PingResponseTime  Duration   `xml:"pingResponseTime,attr"`
	IdleTimeout       Duration   `xml:"idleTimeout,attr"`
	ShutdownTimeLimit Duration   `xml:"shutdownTimeLimit,attr"`
	StartupTimeLimit  Duration   `xml:"startupTimeLimit,attr"`
	Attrs             []xml.Attr `xml:",any,attr"`
	Other             []*Element `xml:",any"`
}

// newApplicationPool 按 IIS 默认值创建应用程序池
func newApplicationPool(name string) *ApplicationPool {
	return &ApplicationPool{
		Name:                  name,
		AutoStart:             true,
		ManagedRuntimeVersion: "v4.0",
		ManagedPipelineMode:   PipelineIntegrated,
		ProcessModel: ProcessModel{
			IdentityType:      IdentityApplicationPoolIdentity,
			LoadUserProfile:   true,
			MaxProcesses:      1,
			PingingEnabled:    true,
			PingInterval:      Duration(30 * time.Second),
			PingResponseTime:  Duration(90 * time.Second),
			IdleTimeout:       Duration(20 * time.Minute),
			ShutdownTimeLimit: Duration(90 * time.Second),
			StartupTimeLimit:  Duration(90 * time.Second),
		},
	}
}

// UnmarshalXML 未出现的属性按 IIS 默认值处理
func (p *ApplicationPool) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	type plain ApplicationPool
	v := plain(*newApplicationPool(""))
	if err := d.DecodeElement(&v, &start); err != nil {
		return err
	}
	*p = ApplicationPool(v)
	return nil
}

// Duration 以 IIS TimeSpan 格式 ([d.]hh:mm:ss) 序列化的时长
type Duration time.Duration

// MarshalXMLAttr 实现 xml.MarshalerAttr
func (d Duration) MarshalXMLAttr(name xml.Name) (xml.Attr, error) {
	return xml.Attr{Name: name, Value: FormatTimeSpan(time.Duration(d))}, nil
}

// UnmarshalXMLAttr 实现 xml.UnmarshalerAttr
func (d *Duration) UnmarshalXMLAttr(attr xml.Attr) error {
	v, err := ParseTimeSpan(attr.Value)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// FormatTimeSpan 格式化为 IIS TimeSpan
func FormatTimeSpan(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	days := total / 86400
	hours := (total % 86400) / 3600
	minutes := (total % 3600) / 60
	seconds := total % 60
	if days > 0 {
		return fmt.Sprintf("%d.%02d:%02d:%02d", days, hours, minutes, seconds)
	}
	return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
}

// ParseTimeSpan 解析 IIS TimeSpan，支持 "hh:mm:ss"、"d.hh:mm:ss" 和秒的小数部分
func ParseTimeSpan(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}

	var days int64
	if dot := strings.Index(s, "."); dot >= 0 && dot < strings.Index(s, ":") {
		d, err := strconv.ParseInt(s[:dot], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("无效的时间格式: %s", s)
		}
		days = d
		s = s[dot+1:]
	}

	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("无效的时间格式: %s", s)
	}

	hours, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("无效的时间格式: %s", s)
	}
	minutes, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("无效的时间格式: %s", s)
	}
	seconds, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return 0, fmt.Errorf("无效的时间格式: %s", s)
	}

	d := time.Duration(days)*24*time.Hour +
		time.Duration(hours)*time.Hour +
		time.Duration(minutes)*time.Minute +
		time.Duration(seconds*float64(time.Second))
	return d, nil
}
