package iis

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/hashicorp/go-multierror"

	"iisctl/store"
	"iisctl/util"
)

// DeleteResult 删除站点的结果
type DeleteResult int

const (
	DeleteResultNotFound DeleteResult = iota
	DeleteResultDeleted
)

func (r DeleteResult) String() string {
	if r == DeleteResultDeleted {
		return "deleted"
	}
	return "not found"
}

// compensator 记录已提交步骤的逆操作，级联失败时尽力回滚
type compensator struct {
	srv  store.Manager
	undo []func() error
}

func (c *compensator) add(fn func() error) {
	c.undo = append(c.undo, fn)
}

// fail 丢弃未提交的修改并逆序执行已登记的逆操作，返回原始错误
func (c *compensator) fail(cause error) error {
	var result *multierror.Error
	if err := c.srv.Discard(); err != nil {
		result = multierror.Append(result, err)
	}
	for i := len(c.undo) - 1; i >= 0; i-- {
		if err := c.undo[i](); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if result != nil {
		util.Warn("回滚未完全成功: %v", result)
		return errors.WithSecondaryError(cause, result)
	}
	return cause
}

func validateSiteSettings(settings *SiteSettings) error {
	if settings == nil {
		return validationErrorf("站点设置不能为空")
	}
	if strings.TrimSpace(settings.Name) == "" {
		return validationErrorf("站点名称不能为空")
	}
	if settings.Binding == nil {
		return validationErrorf("站点 %s 缺少绑定", settings.Name)
	}
	if err := settings.Binding.Validate(); err != nil {
		return err
	}
	if settings.Binding.BindingInformation() == "" {
		return validationErrorf("站点 %s 的绑定信息为空", settings.Name)
	}
	if settings.ApplicationPool == nil {
		return validationErrorf("站点 %s 缺少应用程序池设置", settings.Name)
	}
	if err := validatePoolSettings(settings.ApplicationPool); err != nil {
		return err
	}
	return validateAuthorization(settings.Authorization)
}

// createSite 站点创建状态机，configure 在首次创建时写入网站 / FTP 特有配置
func createSite(srv store.Manager, settings *SiteSettings, server ServerType, configure func(*store.Site) error) (*store.Site, bool, error) {
	if err := validateSiteSettings(settings); err != nil {
		return nil, false, err
	}
	physical, err := ResolvePhysicalDirectory(settings.ComputerName, settings.WorkingDirectory, settings.PhysicalDirectory)
	if err != nil {
		return nil, false, err
	}

	if existing := srv.Site(settings.Name); existing != nil {
		util.Info("站点 %s 已存在", settings.Name)
		if !settings.Overwrite {
			return existing, true, nil
		}

		util.Info("站点 %s 将按要求覆盖", settings.Name)
		oldPool := existing.ApplicationPoolName()
		srv.RemoveSite(existing.Name)
		if oldPool != "" && !IsProtectedApplicationPool(oldPool) {
			srv.RemoveApplicationPool(oldPool)
		}
		if err := srv.Commit(); err != nil {
			if !errors.Is(err, store.ErrSSLSync) {
				return nil, false, errors.Wrapf(err, "删除旧站点失败: %s", settings.Name)
			}
			util.Warn("旧站点 %s 已删除: %v", settings.Name, err)
		}
		util.Info("旧站点 %s 及应用程序池 %s 已删除", settings.Name, oldPool)
	}

	comp := &compensator{srv: srv}

	// 应用程序池必须先于站点存在
	poolName := settings.ApplicationPool.Name
	undoPool, err := createApplicationPool(srv, settings.ApplicationPool)
	if err != nil {
		return nil, false, comp.fail(err)
	}
	if undoPool != nil {
		comp.add(undoPool)
	}

	binding := settings.Binding
	site, err := srv.AddSite(settings.Name, string(binding.Protocol), binding.BindingInformation(), physical)
	if err != nil {
		return nil, false, comp.fail(errors.Wrapf(err, "创建站点失败: %s", settings.Name))
	}

	primary := site.Bindings[0]
	primary.CertificateHash = binding.certificateHash()
	primary.CertificateStoreName = binding.CertificateStoreName
	primary.SslFlags = binding.EffectiveSslFlags()

	if settings.AlternateEnabledProtocols != "" {
		site.SetEnabledProtocols(settings.AlternateEnabledProtocols)
	}
	site.ServerAutoStart = settings.ServerAutoStart
	site.SetApplicationPoolName(poolName)

	if settings.TraceFailedRequestsEnabled {
		site.TraceFailedRequestsLogging = &store.TraceFailedRequestsLogging{
			Enabled:     true,
			Directory:   settings.TraceFailedRequestsDirectory,
			MaxLogFiles: settings.TraceFailedRequestsMaxLogFiles,
		}
	}

	if err := ApplyAuthentication(srv, server, site.Name, settings.Authentication); err != nil {
		return nil, false, comp.fail(err)
	}
	if err := ApplyAuthorization(srv, server, site.Name, settings.Authorization); err != nil {
		return nil, false, comp.fail(err)
	}
	if configure != nil {
		if err := configure(site); err != nil {
			return nil, false, comp.fail(err)
		}
	}

	if err := srv.Commit(); err != nil {
		if errors.Is(err, store.ErrSSLSync) {
			// 配置已写入，站点与应用程序池保持一致，证书绑定在下次提交时重试
			return site, false, errors.Wrapf(err, "站点 %s 已创建", settings.Name)
		}
		return nil, false, comp.fail(errors.Wrapf(err, "提交站点失败: %s", settings.Name))
	}
	util.Info("站点 %s 已创建 (%s %s)", site.Name, binding.Protocol, binding.BindingInformation())
	return site, false, nil
}

// CreateWebsite 创建网站，返回的 bool 表示站点已存在且未做修改
func CreateWebsite(srv store.Manager, settings *WebsiteSettings) (*store.Site, bool, error) {
	if settings == nil {
		return nil, false, validationErrorf("站点设置不能为空")
	}
	return createSite(srv, &settings.SiteSettings, ServerTypeWeb, func(site *store.Site) error {
		section, err := srv.Section("system.webServer/directoryBrowse", site.Name)
		if err != nil {
			if errors.Is(err, store.ErrSectionNotFound) && !settings.EnableDirectoryBrowsing {
				return nil
			}
			if errors.Is(err, store.ErrSectionNotFound) {
				return unsupportedErrorf("服务器不支持目录浏览配置")
			}
			return err
		}
		section.SetAttr("enabled", settings.EnableDirectoryBrowsing)
		return nil
	})
}

// DeleteSite 删除站点
func DeleteSite(srv store.Manager, name string) (DeleteResult, error) {
	if !srv.RemoveSite(name) {
		util.Info("站点 %s 不存在", name)
		return DeleteResultNotFound, nil
	}
	if err := srv.Commit(); err != nil {
		return DeleteResultNotFound, errors.Wrapf(err, "提交删除站点失败: %s", name)
	}
	util.Info("站点 %s 已删除", name)
	return DeleteResultDeleted, nil
}

// SiteExists 站点是否存在
func SiteExists(srv store.Manager, name string) bool {
	exists := srv.Site(name) != nil
	util.Debug("站点 %s 存在: %v", name, exists)
	return exists
}

// StartSite 启动站点，不存在时返回 false
func StartSite(srv store.Manager, name string) (bool, error) {
	return siteTransition(srv, name, "启动", srv.StartSite)
}

// StopSite 停止站点，不存在时返回 false
func StopSite(srv store.Manager, name string) (bool, error) {
	return siteTransition(srv, name, "停止", srv.StopSite)
}

func siteTransition(srv store.Manager, name, action string, fn func(string) error) (bool, error) {
	site := srv.Site(name)
	if site == nil {
		util.Info("站点 %s 不存在", name)
		return false, nil
	}
	if err := runTransition(fn, site.Name); err != nil {
		return false, errors.Wrapf(err, "%s站点失败: %s", action, name)
	}
	util.Info("站点 %s 已%s", site.Name, action)
	return true, nil
}

// SitePhysicalPath 站点根目录的物理路径，环境变量已展开
func SitePhysicalPath(srv store.Manager, name string) (string, error) {
	site := srv.Site(name)
	if site == nil {
		return "", notFoundErrorf("站点不存在: %s", name)
	}
	root := site.Application("/")
	if root == nil {
		return "", notFoundErrorf("站点 %s 没有根应用", name)
	}
	vdir := root.VirtualDirectory("/")
	if vdir == nil || vdir.PhysicalPath == "" {
		return "", notFoundErrorf("站点 %s 物理路径为空", name)
	}
	return expandIISPhysicalPath(vdir.PhysicalPath), nil
}

// AddBinding 为站点添加绑定，(协议, 绑定信息) 已存在时返回 ErrConflict
func AddBinding(srv store.Manager, siteName string, binding *BindingSettings) error {
	if strings.TrimSpace(siteName) == "" {
		return validationErrorf("站点名称不能为空")
	}
	if err := binding.Validate(); err != nil {
		return err
	}
	site := srv.Site(siteName)
	if site == nil {
		return notFoundErrorf("站点不存在: %s", siteName)
	}

	info := binding.BindingInformation()
	if site.FindBinding(string(binding.Protocol), info) != nil {
		return conflictErrorf("站点 %s 已存在相同 IP、端口和主机名的绑定: %s/%s", siteName, binding.Protocol, info)
	}

	site.Bindings = append(site.Bindings, &store.Binding{
		Protocol:             string(binding.Protocol),
		BindingInformation:   info,
		SslFlags:             binding.EffectiveSslFlags(),
		CertificateHash:      binding.certificateHash(),
		CertificateStoreName: binding.CertificateStoreName,
	})
	if err := srv.Commit(); err != nil {
		return errors.Wrapf(err, "提交绑定失败: %s", siteName)
	}
	util.Info("站点 %s 已添加绑定 %s/%s", siteName, binding.Protocol, info)
	return nil
}

// RemoveBinding 删除站点绑定，不存在相同绑定时返回 false
func RemoveBinding(srv store.Manager, siteName string, binding *BindingSettings) (bool, error) {
	if strings.TrimSpace(siteName) == "" {
		return false, validationErrorf("站点名称不能为空")
	}
	if binding == nil {
		return false, validationErrorf("绑定不能为空")
	}
	site := srv.Site(siteName)
	if site == nil {
		return false, notFoundErrorf("站点不存在: %s", siteName)
	}

	info := binding.BindingInformation()
	if !site.RemoveBinding(string(binding.Protocol), info) {
		util.Info("站点 %s 不存在绑定 %s/%s", siteName, binding.Protocol, info)
		return false, nil
	}
	if err := srv.Commit(); err != nil {
		return false, errors.Wrapf(err, "提交删除绑定失败: %s", siteName)
	}
	util.Info("站点 %s 已删除绑定 %s/%s", siteName, binding.Protocol, info)
	return true, nil
}
