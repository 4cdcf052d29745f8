package iis

import (
	"strings"

	"github.com/cockroachdb/errors"

	"iisctl/store"
	"iisctl/util"
)

// normalizeAppPath 补全前导 "/"
func normalizeAppPath(p string) string {
	p = strings.TrimSpace(p)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}

// virtualDirectoryLocation 虚拟目录的 location 路径
func virtualDirectoryLocation(siteName, appPath, vdirPath string) string {
	full := strings.TrimRight(appPath, "/") + vdirPath
	return locationPath(siteName, full)
}

// commitOrDiscard 提交修改，失败时丢弃未提交的修改
func commitOrDiscard(srv store.Manager, err error) error {
	if err == nil {
		err = srv.Commit()
		if err == nil {
			return nil
		}
	}
	if discardErr := srv.Discard(); discardErr != nil {
		return errors.WithSecondaryError(err, discardErr)
	}
	return err
}

func validateApplicationSettings(settings *ApplicationSettings) error {
	if settings == nil {
		return validationErrorf("应用设置不能为空")
	}
	if strings.TrimSpace(settings.SiteName) == "" {
		return validationErrorf("站点名称不能为空")
	}
	if strings.TrimSpace(settings.ApplicationPath) == "" {
		return validationErrorf("应用路径不能为空")
	}
	if !strings.HasPrefix(settings.ApplicationPath, "/") {
		return validationErrorf("应用路径必须以 '/' 开头: %s", settings.ApplicationPath)
	}
	if settings.Authentication != nil && settings.Authentication.Username != "" && settings.Authentication.Password == "" {
		return validationErrorf("虚拟目录账户 %s 缺少密码", settings.Authentication.Username)
	}
	return validateAuthorization(settings.Authorization)
}

// AddApplication 在已有站点下添加应用
//
// ApplicationPool 为空时使用站点的默认应用程序池，两者都必须存在。
// 应用已存在时返回 ErrConflict，Overwrite 为 true 时清空其虚拟目录后重建。
func AddApplication(srv store.Manager, settings *ApplicationSettings) error {
	if err := validateApplicationSettings(settings); err != nil {
		return err
	}
	physical, err := ResolvePhysicalDirectory(settings.ComputerName, settings.WorkingDirectory, settings.PhysicalDirectory)
	if err != nil {
		return err
	}

	site := srv.Site(settings.SiteName)
	if site == nil {
		return notFoundErrorf("站点不存在: %s", settings.SiteName)
	}

	poolName := settings.ApplicationPool
	if poolName == "" {
		poolName = site.ApplicationPoolName()
	}
	pool := srv.ApplicationPool(poolName)
	if pool == nil {
		return errors.WithHint(
			notFoundErrorf("应用程序池不存在: %s", poolName),
			"先创建应用程序池，或在设置中指定已有的应用程序池")
	}

	app := site.Application(settings.ApplicationPath)
	if app != nil {
		if !settings.Overwrite {
			return conflictErrorf("应用已存在: %s%s", site.Name, settings.ApplicationPath)
		}
		util.Info("应用 %s%s 将按要求覆盖", site.Name, settings.ApplicationPath)
		app.ClearVirtualDirectories()
	} else {
		app = &store.Application{Path: settings.ApplicationPath}
		site.Applications = append(site.Applications, app)
	}
	app.ApplicationPool = pool.Name
	if settings.AlternateEnabledProtocols != "" {
		app.EnabledProtocols = settings.AlternateEnabledProtocols
	}

	vdirPath := settings.VirtualDirectory
	if vdirPath == "" {
		vdirPath = "/"
	}
	vdir := app.AddVirtualDirectory(vdirPath, physical)
	if settings.Authentication != nil && settings.Authentication.Username != "" {
		vdir.UserName = settings.Authentication.Username
		vdir.Password = settings.Authentication.Password
	}

	location := locationPath(site.Name, app.Path)
	err = ApplyAuthentication(srv, ServerTypeWeb, location, settings.Authentication)
	if err == nil {
		err = ApplyAuthorization(srv, ServerTypeWeb, location, settings.Authorization)
	}
	if err := commitOrDiscard(srv, err); err != nil {
		return errors.Wrapf(err, "添加应用失败: %s%s", site.Name, settings.ApplicationPath)
	}
	util.Info("应用 %s%s 已添加 (应用程序池: %s)", site.Name, app.Path, pool.Name)
	return nil
}

// RemoveApplication 删除站点下的应用
func RemoveApplication(srv store.Manager, settings *ApplicationSettings) error {
	if settings == nil || strings.TrimSpace(settings.SiteName) == "" {
		return validationErrorf("站点名称不能为空")
	}
	if strings.TrimSpace(settings.ApplicationPath) == "" {
		return validationErrorf("应用路径不能为空")
	}

	site := srv.Site(settings.SiteName)
	if site == nil {
		return notFoundErrorf("站点不存在: %s", settings.SiteName)
	}
	if !site.RemoveApplication(settings.ApplicationPath) {
		return notFoundErrorf("应用不存在: %s%s", site.Name, settings.ApplicationPath)
	}
	if err := srv.Commit(); err != nil {
		return errors.Wrapf(err, "提交删除应用失败: %s%s", site.Name, settings.ApplicationPath)
	}
	util.Info("应用 %s%s 已删除", site.Name, settings.ApplicationPath)
	return nil
}

// ApplicationExists 应用是否存在，站点不存在时返回 false
func ApplicationExists(srv store.Manager, siteName, appPath string) bool {
	site := srv.Site(siteName)
	if site == nil {
		return false
	}
	return site.Application(normalizeAppPath(appPath)) != nil
}

// findApplication 查找虚拟目录所属的站点和应用
func findApplication(srv store.Manager, siteName, appPath string) (*store.Site, *store.Application, error) {
	site := srv.Site(siteName)
	if site == nil {
		return nil, nil, notFoundErrorf("站点不存在: %s", siteName)
	}
	app := site.Application(appPath)
	if app == nil {
		return nil, nil, notFoundErrorf("应用不存在: %s%s", site.Name, appPath)
	}
	return site, app, nil
}

func validateVirtualDirectorySettings(settings *VirtualDirectorySettings) error {
	if settings == nil {
		return validationErrorf("虚拟目录设置不能为空")
	}
	if strings.TrimSpace(settings.SiteName) == "" {
		return validationErrorf("站点名称不能为空")
	}
	if !strings.HasPrefix(settings.ApplicationPath, "/") {
		return validationErrorf("应用路径必须以 '/' 开头: %s", settings.ApplicationPath)
	}
	if !strings.HasPrefix(settings.Path, "/") {
		return validationErrorf("虚拟目录路径必须以 '/' 开头: %s", settings.Path)
	}
	return nil
}

// AddVirtualDirectory 在应用下添加虚拟目录
func AddVirtualDirectory(srv store.Manager, settings *VirtualDirectorySettings) error {
	if err := validateVirtualDirectorySettings(settings); err != nil {
		return err
	}
	if err := validateAuthorization(settings.Authorization); err != nil {
		return err
	}
	physical, err := ResolvePhysicalDirectory(settings.ComputerName, settings.WorkingDirectory, settings.PhysicalDirectory)
	if err != nil {
		return err
	}

	site, app, err := findApplication(srv, settings.SiteName, settings.ApplicationPath)
	if err != nil {
		return err
	}
	if app.VirtualDirectory(settings.Path) != nil {
		return conflictErrorf("虚拟目录已存在: %s%s%s", site.Name, settings.ApplicationPath, settings.Path)
	}
	app.AddVirtualDirectory(settings.Path, physical)

	location := virtualDirectoryLocation(site.Name, app.Path, settings.Path)
	err = ApplyAuthentication(srv, ServerTypeWeb, location, settings.Authentication)
	if err == nil {
		err = ApplyAuthorization(srv, ServerTypeWeb, location, settings.Authorization)
	}
	if err := commitOrDiscard(srv, err); err != nil {
		return errors.Wrapf(err, "添加虚拟目录失败: %s", location)
	}
	util.Info("虚拟目录 %s 已添加 -> %s", location, physical)
	return nil
}

// RemoveVirtualDirectory 删除虚拟目录，不存在时返回 false
func RemoveVirtualDirectory(srv store.Manager, settings *VirtualDirectorySettings) (bool, error) {
	if err := validateVirtualDirectorySettings(settings); err != nil {
		return false, err
	}
	if settings.Path == "/" {
		return false, validationErrorf("不能删除应用的根虚拟目录，请删除应用本身")
	}

	site, app, err := findApplication(srv, settings.SiteName, settings.ApplicationPath)
	if err != nil {
		return false, err
	}
	if !app.RemoveVirtualDirectory(settings.Path) {
		util.Info("虚拟目录 %s%s%s 不存在", site.Name, settings.ApplicationPath, settings.Path)
		return false, nil
	}
	if err := srv.Commit(); err != nil {
		return false, errors.Wrapf(err, "提交删除虚拟目录失败: %s", settings.Path)
	}
	util.Info("虚拟目录 %s%s%s 已删除", site.Name, settings.ApplicationPath, settings.Path)
	return true, nil
}

// VirtualDirectoryExists 虚拟目录是否存在，站点或应用不存在时返回 false
func VirtualDirectoryExists(srv store.Manager, settings *VirtualDirectorySettings) bool {
	if settings == nil {
		return false
	}
	_, app, err := findApplication(srv, settings.SiteName, settings.ApplicationPath)
	if err != nil {
		return false
	}
	return app.VirtualDirectory(settings.Path) != nil
}
