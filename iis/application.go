package iis

import (
	"github.com/cockroachdb/errors"

	"iisctl/store"
	"iisctl/util"
)

func validateAppKeys(siteName, appName string) error {
	if siteName == "" {
		return validationErrorf("站点名称不能为空")
	}
	if appName == "" {
		return validationErrorf("应用名称不能为空")
	}
	return nil
}

// CreateVirtualApplication 创建或更新虚拟应用
//
// 应用已存在且未要求覆盖时视为已满足；覆盖时就地更新物理路径。
// EnabledProtocols 和 ApplicationPoolName 仅在非空时写入。
func CreateVirtualApplication(srv store.Manager, settings *VirtualApplicationSettings) error {
	if settings == nil {
		return validationErrorf("虚拟应用设置不能为空")
	}
	if err := validateAppKeys(settings.ParentWebSite, settings.Name); err != nil {
		return err
	}

	site := srv.Site(settings.ParentWebSite)
	if site == nil {
		return validationErrorf("站点不存在: %s", settings.ParentWebSite)
	}

	path := normalizeAppPath(settings.Name)
	app := site.Application(path)
	if app != nil {
		util.Info("虚拟应用 %s%s 已存在", site.Name, path)
		if !settings.Overwrite {
			return nil
		}
		util.Info("虚拟应用 %s%s 将就地更新", site.Name, path)
	}

	var physical string
	if settings.PhysicalPath != "" {
		resolved, err := ResolvePhysicalDirectory("", "", settings.PhysicalPath)
		if err != nil {
			return err
		}
		physical = resolved
	} else if app == nil {
		return validationErrorf("虚拟应用 %s 缺少物理路径", path)
	}

	if app == nil {
		util.Info("创建虚拟应用 %s%s", site.Name, path)
		app = site.AddApplication(path, physical)
	} else if physical != "" {
		if root := app.VirtualDirectory("/"); root != nil {
			root.PhysicalPath = physical
		} else {
			app.AddVirtualDirectory("/", physical)
		}
	}

	if settings.EnabledProtocols != "" {
		app.EnabledProtocols = settings.EnabledProtocols
	}
	if settings.ApplicationPoolName != "" {
		app.ApplicationPool = settings.ApplicationPoolName
	}

	var err error
	if settings.Authentication != nil {
		err = setApplicationAuthentication(srv, locationPath(site.Name, path), *settings.Authentication)
	}
	if err := commitOrDiscard(srv, err); err != nil {
		return errors.Wrapf(err, "创建虚拟应用失败: %s%s", site.Name, path)
	}
	util.Info("虚拟应用 %s%s 已创建或更新", site.Name, path)
	return nil
}

func setApplicationAuthentication(srv store.Manager, location string, auth ApplicationAuthentication) error {
	if _, err := setAuthenticationEnabled(srv, ServerTypeWeb, location, "windows", auth&AuthWindows != 0); err != nil {
		return err
	}
	_, err := setAuthenticationEnabled(srv, ServerTypeWeb, location, "anonymous", auth&AuthAnonymous != 0)
	return err
}

// DeleteVirtualApplication 删除虚拟应用，站点或应用不存在时返回 ErrNotFound
func DeleteVirtualApplication(srv store.Manager, siteName, appName string) error {
	if err := validateAppKeys(siteName, appName); err != nil {
		return err
	}
	path := normalizeAppPath(appName)

	site := srv.Site(siteName)
	if site == nil || !site.RemoveApplication(path) {
		return notFoundErrorf("站点或虚拟应用不存在: %s%s", siteName, path)
	}
	if err := srv.Commit(); err != nil {
		return errors.Wrapf(err, "提交删除虚拟应用失败: %s%s", siteName, path)
	}
	util.Info("虚拟应用 %s%s 已删除", site.Name, path)
	return nil
}

// VirtualApplicationExists 虚拟应用是否存在
func VirtualApplicationExists(srv store.Manager, siteName, appName string) (bool, error) {
	if err := validateAppKeys(siteName, appName); err != nil {
		return false, err
	}
	return ApplicationExists(srv, siteName, appName), nil
}
