package iis

import (
	"strings"

	"github.com/cockroachdb/errors"

	"iisctl/store"
	"iisctl/util"
)

// 系统自带的应用程序池，不允许创建或删除（键为小写，IIS 名称不区分大小写）
var protectedApplicationPools = map[string]struct{}{
	"defaultapppool":       {},
	"classic .net apppool": {},
	"asp.net v4.0 classic": {},
	"asp.net v4.0":         {},
}

// IsProtectedApplicationPool 是否为系统自带的应用程序池
func IsProtectedApplicationPool(name string) bool {
	_, ok := protectedApplicationPools[strings.ToLower(strings.TrimSpace(name))]
	return ok
}

// validatePoolSettings 在修改存储前校验设置
func validatePoolSettings(settings *ApplicationPoolSettings) error {
	if settings == nil {
		return validationErrorf("应用程序池设置不能为空")
	}
	if strings.TrimSpace(settings.Name) == "" {
		return validationErrorf("应用程序池名称不能为空")
	}
	if IsProtectedApplicationPool(settings.Name) {
		return nil
	}
	identity := settings.EffectiveIdentity()
	switch identity {
	case IdentityLocalSystem, IdentityLocalService, IdentityNetworkService, IdentityApplicationPoolIdentity:
	case IdentitySpecificUser:
		if settings.Username == "" || settings.Password == "" {
			return errors.WithHint(
				validationErrorf("应用程序池 %s 使用 SpecificUser 标识时必须提供用户名和密码", settings.Name),
				"设置 username 和 password，或改用 ApplicationPoolIdentity")
		}
	default:
		return validationErrorf("未知的应用程序池标识: %s", identity)
	}
	if settings.MaxProcesses != nil && *settings.MaxProcesses < 0 {
		return validationErrorf("最大工作进程数不能为负数")
	}
	return nil
}

// CreateApplicationPool 创建应用程序池
//
// 系统自带的池直接跳过；已存在且未要求覆盖时不做任何修改。
func CreateApplicationPool(srv store.Manager, settings *ApplicationPoolSettings) error {
	_, err := createApplicationPool(srv, settings)
	return err
}

// createApplicationPool 返回已提交修改的逆操作，未修改时为 nil
//
// 新建的池回滚时删除；覆盖的池回滚时恢复为覆盖前的设置。
func createApplicationPool(srv store.Manager, settings *ApplicationPoolSettings) (func() error, error) {
	if err := validatePoolSettings(settings); err != nil {
		return nil, err
	}
	if IsProtectedApplicationPool(settings.Name) {
		util.Debug("应用程序池 %s 为系统默认，跳过", settings.Name)
		return nil, nil
	}

	var previous *store.ApplicationPool
	if existing := srv.ApplicationPool(settings.Name); existing != nil {
		util.Info("应用程序池 %s 已存在", settings.Name)
		if !settings.Overwrite {
			return nil, nil
		}
		util.Info("应用程序池 %s 将按要求覆盖", settings.Name)
		saved := *existing
		previous = &saved
		srv.RemoveApplicationPool(settings.Name)
	}

	pool, err := srv.AddApplicationPool(settings.Name)
	if err != nil {
		return nil, errors.Wrapf(err, "创建应用程序池失败: %s", settings.Name)
	}
	applyPoolSettings(pool, settings)

	if err := srv.Commit(); err != nil {
		if !errors.Is(err, store.ErrSSLSync) {
			return nil, errors.Wrapf(err, "提交应用程序池失败: %s", settings.Name)
		}
		util.Warn("应用程序池 %s 已保存: %v", settings.Name, err)
	}
	util.Info("应用程序池 %s 已创建 (标识: %s)", settings.Name, settings.EffectiveIdentity())

	name := settings.Name
	if previous == nil {
		return func() error {
			if !srv.RemoveApplicationPool(name) {
				return nil
			}
			util.Warn("回滚: 删除新建的应用程序池 %s", name)
			return srv.Commit()
		}, nil
	}
	return func() error {
		srv.RemoveApplicationPool(name)
		restored, err := srv.AddApplicationPool(previous.Name)
		if err != nil {
			return errors.Wrapf(err, "恢复应用程序池失败: %s", name)
		}
		*restored = *previous
		util.Warn("回滚: 恢复应用程序池 %s 的原有设置", name)
		return srv.Commit()
	}, nil
}

func applyPoolSettings(pool *store.ApplicationPool, settings *ApplicationPoolSettings) {
	pool.AutoStart = settings.Autostart
	pool.Enable32BitAppOnWin64 = settings.Enable32BitAppOnWin64
	pool.ManagedRuntimeVersion = settings.ManagedRuntimeVersion
	if settings.ClassicPipelineMode {
		pool.ManagedPipelineMode = store.PipelineClassic
	} else {
		pool.ManagedPipelineMode = store.PipelineIntegrated
	}

	pm := &pool.ProcessModel
	identity := settings.EffectiveIdentity()
	pm.IdentityType = string(identity)
	if identity == IdentitySpecificUser {
		pm.UserName = settings.Username
		pm.Password = settings.Password
	}

	if settings.LoadUserProfile != nil {
		pm.LoadUserProfile = *settings.LoadUserProfile
	}
	if settings.MaxProcesses != nil {
		pm.MaxProcesses = *settings.MaxProcesses
	}
	if settings.PingingEnabled != nil {
		pm.PingingEnabled = *settings.PingingEnabled
	}
	if settings.PingInterval != nil {
		pm.PingInterval = store.Duration(*settings.PingInterval)
	}
	if settings.PingResponseTime != nil {
		pm.PingResponseTime = store.Duration(*settings.PingResponseTime)
	}
	if settings.IdleTimeout != nil {
		pm.IdleTimeout = store.Duration(*settings.IdleTimeout)
	}
	if settings.ShutdownTimeLimit != nil {
		pm.ShutdownTimeLimit = store.Duration(*settings.ShutdownTimeLimit)
	}
	if settings.StartupTimeLimit != nil {
		pm.StartupTimeLimit = store.Duration(*settings.StartupTimeLimit)
	}
}

// DeleteApplicationPool 删除应用程序池，系统自带或不存在时返回 false
func DeleteApplicationPool(srv store.Manager, name string) (bool, error) {
	if IsProtectedApplicationPool(name) {
		util.Debug("应用程序池 %s 为系统默认，跳过", name)
		return false, nil
	}
	if !srv.RemoveApplicationPool(name) {
		util.Info("应用程序池 %s 不存在", name)
		return false, nil
	}
	if err := srv.Commit(); err != nil {
		return false, errors.Wrapf(err, "提交删除应用程序池失败: %s", name)
	}
	util.Info("应用程序池 %s 已删除", name)
	return true, nil
}

// ApplicationPoolExists 应用程序池是否存在
func ApplicationPoolExists(srv store.Manager, name string) bool {
	exists := srv.ApplicationPool(name) != nil
	util.Debug("应用程序池 %s 存在: %v", name, exists)
	return exists
}

// StartApplicationPool 启动应用程序池，不存在时返回 false
func StartApplicationPool(srv store.Manager, name string) (bool, error) {
	return poolTransition(srv, name, "启动", srv.StartApplicationPool)
}

// StopApplicationPool 停止应用程序池，不存在时返回 false
func StopApplicationPool(srv store.Manager, name string) (bool, error) {
	return poolTransition(srv, name, "停止", srv.StopApplicationPool)
}

// RecycleApplicationPool 回收应用程序池，不存在时返回 false
func RecycleApplicationPool(srv store.Manager, name string) (bool, error) {
	return poolTransition(srv, name, "回收", srv.RecycleApplicationPool)
}

func poolTransition(srv store.Manager, name, action string, fn func(string) error) (bool, error) {
	pool := srv.ApplicationPool(name)
	if pool == nil {
		util.Info("应用程序池 %s 不存在", name)
		return false, nil
	}
	if err := runTransition(fn, pool.Name); err != nil {
		return false, errors.Wrapf(err, "%s应用程序池失败: %s", action, name)
	}
	util.Info("应用程序池 %s 已%s", pool.Name, action)
	return true, nil
}
