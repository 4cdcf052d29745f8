package iis

import (
	"github.com/cockroachdb/errors"

	"iisctl/store"
	"iisctl/util"
)

// FTP SSL 通道策略
const ftpSSLPolicyAllow = "SslAllow"

// CreateFtpSite 创建 FTP 站点，返回的 bool 表示站点已存在且未做修改
//
// 首次创建时允许（不强制）控制和数据通道使用 SSL，并开启以域名作为虚拟主机名。
func CreateFtpSite(srv store.Manager, settings *FtpSiteSettings) (*store.Site, bool, error) {
	if settings == nil {
		return nil, false, validationErrorf("站点设置不能为空")
	}
	return createSite(srv, &settings.SiteSettings, ServerTypeFtp, func(site *store.Site) error {
		ssl := site.FtpServerElement().ChildElement("security").ChildElement("ssl")
		ssl.SetAttr("controlChannelPolicy", ftpSSLPolicyAllow)
		ssl.SetAttr("dataChannelPolicy", ftpSSLPolicyAllow)

		runtime, err := srv.Section("system.ftpServer/serverRuntime", "")
		if err != nil {
			if errors.Is(err, store.ErrSectionNotFound) {
				return unsupportedErrorf("服务器未安装 FTP 服务")
			}
			return err
		}
		runtime.ChildElement("hostNameSupport").SetAttr("useDomainNameAsHostName", true)
		util.Debug("FTP 站点 %s 已启用 SSL 允许策略和域名主机名", site.Name)
		return nil
	})
}
