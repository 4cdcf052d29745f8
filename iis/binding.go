package iis

import (
	"fmt"
	"strings"

	"iisctl/util"
)

// BindingProtocol 绑定协议
type BindingProtocol string

const (
	ProtocolHTTP           BindingProtocol = "http"
	ProtocolHTTPS          BindingProtocol = "https"
	ProtocolFTP            BindingProtocol = "ftp"
	ProtocolNetTCP         BindingProtocol = "net.tcp"
	ProtocolNetPipe        BindingProtocol = "net.pipe"
	ProtocolNetMsmq        BindingProtocol = "net.msmq"
	ProtocolMsmqFormatName BindingProtocol = "msmq.formatname"
)

// bindingShape 绑定信息格式
type bindingShape int

const (
	shapeIPPortHost bindingShape = iota // ip:port:host
	shapePortHost                       // port:host
	shapeHost                           // host
)

var protocolShapes = map[BindingProtocol]bindingShape{
	ProtocolHTTP:           shapeIPPortHost,
	ProtocolHTTPS:          shapeIPPortHost,
	ProtocolFTP:            shapePortHost,
	ProtocolNetTCP:         shapePortHost,
	ProtocolNetPipe:        shapeHost,
	ProtocolNetMsmq:        shapeHost,
	ProtocolMsmqFormatName: shapeHost,
}

// SNI 对应的 sslFlags 位
const sslFlagSNI = 1

// BindingSettings 站点绑定
type BindingSettings struct {
	Protocol             BindingProtocol `yaml:"protocol" validate:"required,oneof=http https ftp net.tcp net.pipe net.msmq msmq.formatname"`
	HostName             string          `yaml:"hostName,omitempty"`
	IPAddress            string          `yaml:"ipAddress,omitempty"`
	Port                 int             `yaml:"port,omitempty" validate:"omitempty,min=1,max=65535"`
	CertificateHash      string          `yaml:"certificateHash,omitempty" validate:"omitempty,len=40,hexadecimal"`
	CertificateStoreName string          `yaml:"certificateStoreName,omitempty"`
	// SslFlags 为 0 且 https 绑定带主机名时自动启用 SNI
	SslFlags int `yaml:"sslFlags,omitempty"`
}

// HTTPBinding http 绑定，*:80:
func HTTPBinding() *BindingSettings {
	return &BindingSettings{Protocol: ProtocolHTTP, IPAddress: "*", Port: 80}
}

// HTTPSBinding https 绑定，*:443:
func HTTPSBinding() *BindingSettings {
	return &BindingSettings{Protocol: ProtocolHTTPS, IPAddress: "*", Port: 443}
}

// FTPBinding ftp 绑定，21:
func FTPBinding() *BindingSettings {
	return &BindingSettings{Protocol: ProtocolFTP, Port: 21}
}

// NetTCPBinding net.tcp 绑定，808:*
func NetTCPBinding() *BindingSettings {
	return &BindingSettings{Protocol: ProtocolNetTCP, Port: 808, HostName: "*"}
}

// NetPipeBinding net.pipe 绑定
func NetPipeBinding() *BindingSettings {
	return &BindingSettings{Protocol: ProtocolNetPipe, HostName: "*"}
}

// NetMsmqBinding net.msmq 绑定
func NetMsmqBinding() *BindingSettings {
	return &BindingSettings{Protocol: ProtocolNetMsmq, HostName: "localhost"}
}

// MsmqFormatNameBinding msmq.formatname 绑定
func MsmqFormatNameBinding() *BindingSettings {
	return &BindingSettings{Protocol: ProtocolMsmqFormatName, HostName: "localhost"}
}

func (b *BindingSettings) WithHostName(host string) *BindingSettings {
	b.HostName = host
	return b
}

func (b *BindingSettings) WithIPAddress(ip string) *BindingSettings {
	b.IPAddress = ip
	return b
}

func (b *BindingSettings) WithPort(port int) *BindingSettings {
	b.Port = port
	return b
}

// WithCertificate 设置证书指纹和证书存储
func (b *BindingSettings) WithCertificate(hash, storeName string) *BindingSettings {
	b.CertificateHash = hash
	b.CertificateStoreName = storeName
	return b
}

func (b *BindingSettings) shape() bindingShape {
	if s, ok := protocolShapes[b.Protocol]; ok {
		return s
	}
	return shapeIPPortHost
}

func (b *BindingSettings) host() string {
	if b.HostName == "*" {
		return b.HostName
	}
	return util.NormalizeDomain(b.HostName)
}

// BindingInformation 协议相关的绑定信息字符串
func (b *BindingSettings) BindingInformation() string {
	switch b.shape() {
	case shapePortHost:
		host := b.host()
		if host == "" && b.Protocol == ProtocolNetTCP {
			host = "*"
		}
		return fmt.Sprintf("%d:%s", b.Port, host)
	case shapeHost:
		return b.host()
	default:
		ip := b.IPAddress
		if ip == "" {
			ip = "*"
		}
		return fmt.Sprintf("%s:%d:%s", ip, b.Port, b.host())
	}
}

// EffectiveSslFlags 实际写入的 sslFlags
func (b *BindingSettings) EffectiveSslFlags() int {
	if b.SslFlags != 0 {
		return b.SslFlags
	}
	if b.Protocol == ProtocolHTTPS && b.HostName != "" && b.HostName != "*" {
		return sslFlagSNI
	}
	return 0
}

// Validate 校验绑定
func (b *BindingSettings) Validate() error {
	if b == nil {
		return validationErrorf("绑定不能为空")
	}
	if _, ok := protocolShapes[b.Protocol]; !ok {
		return validationErrorf("不支持的绑定协议: %s", b.Protocol)
	}

	shape := b.shape()
	if shape != shapeHost {
		if err := util.ValidatePort(b.Port); err != nil {
			return validationErrorf("无效的端口 %d: %v", b.Port, err)
		}
	}
	if shape == shapeIPPortHost && b.IPAddress != "" {
		if err := util.ValidateIP(b.IPAddress); err != nil {
			return validationErrorf("无效的 IP 地址 %s: %v", b.IPAddress, err)
		}
	}

	host := b.host()
	if shape == shapeHost && host == "" {
		return validationErrorf("%s 绑定必须指定主机名", b.Protocol)
	}
	if host != "" && host != "*" && host != "localhost" {
		if err := util.ValidateDomain(host); err != nil {
			return validationErrorf("无效的主机名 %s: %v", b.HostName, err)
		}
	}

	if b.CertificateHash != "" {
		if b.Protocol != ProtocolHTTPS {
			return validationErrorf("只有 https 绑定可以指定证书")
		}
		if err := util.ValidateThumbprint(b.CertificateHash); err != nil {
			return validationErrorf("无效的证书指纹: %v", err)
		}
	}
	return nil
}

// certificateHash 写入存储的指纹格式（大写，无分隔符）
func (b *BindingSettings) certificateHash() string {
	if b.CertificateHash == "" {
		return ""
	}
	hash, err := util.NormalizeThumbprint(b.CertificateHash)
	if err != nil {
		return strings.ToUpper(b.CertificateHash)
	}
	return hash
}
