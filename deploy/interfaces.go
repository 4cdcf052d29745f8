package deploy

import (
	"iisctl/cert"
	"iisctl/store"
)

// Opener 打开目标主机的 IIS 配置存储
type Opener interface {
	// Open computerName 为空时打开本机
	Open(computerName string) (store.Manager, error)
}

// OpenerFunc 函数形式的 Opener
type OpenerFunc func(computerName string) (store.Manager, error)

func (f OpenerFunc) Open(computerName string) (store.Manager, error) {
	return f(computerName)
}

// CertResolver 证书引用解析接口
type CertResolver interface {
	// Resolve 返回绑定使用的证书指纹和存储名
	Resolve(ref *cert.CertificateRef) (hash, storeName string, err error)
}

// Deployer 部署器，聚合所有依赖
type Deployer struct {
	Opener Opener
	Certs  CertResolver
	// ComputerName 清单未指定主机时使用
	ComputerName string
}
