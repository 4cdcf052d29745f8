package iis

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"

	"iisctl/store"
	"iisctl/util"
)

// ServerType 选择 system.webServer 或 system.ftpServer 配置树
type ServerType string

const (
	ServerTypeWeb ServerType = "webServer"
	ServerTypeFtp ServerType = "ftpServer"
)

func authenticationSectionPath(server ServerType, kind string) string {
	return fmt.Sprintf("system.%s/security/authentication/%sAuthentication", server, kind)
}

func authorizationSectionPath(server ServerType) string {
	return fmt.Sprintf("system.%s/security/authorization", server)
}

// locationPath 站点或站点下应用的 location 路径
func locationPath(siteName, appPath string) string {
	if appPath == "" || appPath == "/" {
		return siteName
	}
	return siteName + appPath
}

// setAuthenticationEnabled 写入 enabled 属性；配置节不存在时，禁用视为已满足，启用报 ErrUnsupported
func setAuthenticationEnabled(srv store.Manager, server ServerType, location, kind string, enabled bool) (*store.Element, error) {
	section, err := srv.Section(authenticationSectionPath(server, kind), location)
	if err != nil {
		if !errors.Is(err, store.ErrSectionNotFound) {
			return nil, err
		}
		if !enabled {
			util.Debug("%s 不支持 %s 身份验证，跳过禁用", server, kind)
			return nil, nil
		}
		return nil, unsupportedErrorf("服务器不支持 %s 身份验证 (%s)", kind, server)
	}
	section.SetAttr("enabled", enabled)
	return section, nil
}

// ApplyAuthentication 在 location 写入匿名、基本和 Windows 身份验证开关，settings 为 nil 时不做修改
func ApplyAuthentication(srv store.Manager, server ServerType, location string, settings *AuthenticationSettings) error {
	if settings == nil {
		return nil
	}
	util.Info("更新 %s 的身份验证设置", location)

	if _, err := setAuthenticationEnabled(srv, server, location, "anonymous", settings.EnableAnonymousAuthentication); err != nil {
		return err
	}
	util.Debug("匿名身份验证: %v", settings.EnableAnonymousAuthentication)

	basic, err := setAuthenticationEnabled(srv, server, location, "basic", settings.EnableBasicAuthentication)
	if err != nil {
		return err
	}
	if basic != nil && settings.Username != "" {
		basic.SetAttr("userName", settings.Username)
		basic.SetAttr("password", settings.Password)
	}
	util.Debug("基本身份验证: %v", settings.EnableBasicAuthentication)

	if _, err := setAuthenticationEnabled(srv, server, location, "windows", settings.EnableWindowsAuthentication); err != nil {
		return err
	}
	util.Debug("Windows 身份验证: %v", settings.EnableWindowsAuthentication)
	return nil
}

func validateAuthorization(settings *AuthorizationSettings) error {
	if settings == nil {
		return nil
	}
	switch settings.AuthorizationType {
	case AuthorizationAllUsers:
	case AuthorizationSpecifiedUser:
		if len(settings.Users) == 0 {
			return validationErrorf("授权类型 SpecifiedUser 需要至少一个用户")
		}
	case AuthorizationSpecifiedRoleOrUserGroup:
		if len(settings.Roles) == 0 {
			return validationErrorf("授权类型 SpecifiedRoleOrUserGroup 需要至少一个角色")
		}
	default:
		return validationErrorf("未知的授权类型: %s", settings.AuthorizationType)
	}
	return nil
}

// ApplyAuthorization 清空 location 下的授权规则，写入一条允许规则；settings 为 nil 时不做修改
func ApplyAuthorization(srv store.Manager, server ServerType, location string, settings *AuthorizationSettings) error {
	if settings == nil {
		return nil
	}
	if err := validateAuthorization(settings); err != nil {
		return err
	}

	section, err := srv.Section(authorizationSectionPath(server), location)
	if err != nil {
		if errors.Is(err, store.ErrSectionNotFound) {
			return unsupportedErrorf("服务器不支持授权配置 (%s)", server)
		}
		return err
	}

	section.ClearCollection()
	rule := section.AddCollectionItem()
	rule.SetAttr("accessType", "Allow")

	switch settings.AuthorizationType {
	case AuthorizationAllUsers:
		rule.SetAttr("users", "*")
	case AuthorizationSpecifiedUser:
		rule.SetAttr("users", strings.Join(settings.Users, ", "))
	case AuthorizationSpecifiedRoleOrUserGroup:
		rule.SetAttr("roles", strings.Join(settings.Roles, ", "))
	}

	permissions := make([]string, 0, 2)
	if settings.CanRead {
		permissions = append(permissions, "Read")
	}
	if settings.CanWrite {
		permissions = append(permissions, "Write")
	}
	rule.SetAttr("permissions", strings.Join(permissions, ", "))

	util.Info("已更新 %s 的授权规则 (%s)", location, settings.AuthorizationType)
	return nil
}
