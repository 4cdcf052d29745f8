package deploy

import (
	"iisctl/cert"
	"iisctl/config"
	"iisctl/store"
)

// defaultOpener 按配置打开本机、远程主机或指定的配置文件
type defaultOpener struct {
	applicationHostPath string
	appcmdPath          string
}

func (o *defaultOpener) Open(computerName string) (store.Manager, error) {
	var opts []store.Option
	if o.appcmdPath != "" {
		opts = append(opts, store.WithRuntime(store.NewAppcmdRuntime(computerName, o.appcmdPath)))
	}
	if o.applicationHostPath != "" && computerName == "" {
		defaults := []store.Option{
			store.WithRuntime(store.NewAppcmdRuntime("", o.appcmdPath)),
			store.WithSSLBinder(store.NewNetshBinder()),
		}
		srv, err := store.OpenFile(o.applicationHostPath, append(defaults, opts...)...)
		if err != nil {
			return nil, err
		}
		return srv, nil
	}
	srv, err := store.Open(computerName, opts...)
	if err != nil {
		return nil, err
	}
	return srv, nil
}

// DefaultDeployer 创建默认部署器
func DefaultDeployer(cfg *config.Config) *Deployer {
	return &Deployer{
		Opener: &defaultOpener{
			applicationHostPath: cfg.ApplicationHostPath,
			appcmdPath:          cfg.AppcmdPath,
		},
		Certs:        cert.NewResolver(),
		ComputerName: cfg.ComputerName,
	}
}

// NewDeployerWithOpener 使用指定的 Opener 创建部署器
func NewDeployerWithOpener(cfg *config.Config, opener Opener) *Deployer {
	d := DefaultDeployer(cfg)
	d.Opener = opener
	return d
}
