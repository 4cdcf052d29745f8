package deploy

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/hashicorp/go-multierror"

	"iisctl/cert"
	"iisctl/iis"
	"iisctl/store"
	"iisctl/util"
)

// 清单条目类型
const (
	KindApplicationPool    = "applicationPool"
	KindWebsite            = "website"
	KindFtpSite            = "ftpSite"
	KindApplication        = "application"
	KindVirtualApplication = "virtualApplication"
	KindVirtualDirectory   = "virtualDirectory"
	KindBinding            = "binding"
)

// Result 单个清单条目的部署结果
type Result struct {
	Kind       string
	Name       string
	Success    bool
	Changed    bool
	Message    string
	Thumbprint string
}

func (r Result) String() string {
	status := "失败"
	switch {
	case r.Success && r.Changed:
		status = "已更新"
	case r.Success:
		status = "无变化"
	}
	return fmt.Sprintf("[%s] %s %s: %s", status, r.Kind, r.Name, r.Message)
}

// applyRun 一次部署的累积状态
type applyRun struct {
	d        *Deployer
	srv      store.Manager
	computer string
	results  []Result
	errs     *multierror.Error
}

func (r *applyRun) ok(kind, name string, changed bool, message string) *Result {
	util.Info("%s %s: %s", kind, name, message)
	r.results = append(r.results, Result{Kind: kind, Name: name, Success: true, Changed: changed, Message: message})
	return &r.results[len(r.results)-1]
}

func (r *applyRun) fail(kind, name string, err error) {
	util.Error("%s %s 失败: %v", kind, name, err)
	r.results = append(r.results, Result{Kind: kind, Name: name, Message: err.Error()})
	r.errs = multierror.Append(r.errs, errors.Wrapf(err, "%s %s", kind, name))
}

// Apply 按依赖顺序应用清单
//
// 顺序为应用程序池、网站、FTP 站点、应用、虚拟应用、虚拟目录、绑定。
// 单个条目失败不影响后续条目，所有失败汇总为一个错误返回。
func (d *Deployer) Apply(m *Manifest) ([]Result, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}

	computer := m.ComputerName
	if computer == "" {
		computer = d.ComputerName
	}
	srv, err := d.Opener.Open(computer)
	if err != nil {
		return nil, errors.Wrap(err, "打开 IIS 配置失败")
	}
	defer srv.Close()

	if computer == "" {
		util.Info("开始部署到本机")
	} else {
		util.Info("开始部署到 %s", computer)
	}

	run := &applyRun{d: d, srv: srv, computer: computer}
	for _, p := range m.ApplicationPools {
		run.pool(p)
	}
	for _, w := range m.Websites {
		run.website(w)
	}
	for _, f := range m.FtpSites {
		run.ftpSite(f)
	}
	for _, a := range m.Applications {
		run.application(a)
	}
	for _, v := range m.VirtualApplications {
		run.virtualApplication(v)
	}
	for _, v := range m.VirtualDirectories {
		run.virtualDirectory(v)
	}
	for _, b := range m.Bindings {
		run.binding(b)
	}

	util.Info("部署完成: %d 项，失败 %d 项", len(run.results), run.errs.Len())
	return run.results, run.errs.ErrorOrNil()
}

func (r *applyRun) pool(p *iis.ApplicationPoolSettings) {
	switch {
	case iis.IsProtectedApplicationPool(p.Name):
		r.ok(KindApplicationPool, p.Name, false, "系统应用程序池，跳过")
		return
	case iis.ApplicationPoolExists(r.srv, p.Name) && !p.Overwrite:
		r.ok(KindApplicationPool, p.Name, false, "已存在")
		return
	}
	if err := iis.CreateApplicationPool(r.srv, p); err != nil {
		r.fail(KindApplicationPool, p.Name, err)
		return
	}
	r.ok(KindApplicationPool, p.Name, true, "已创建")
}

// resolveCertificate 解析证书并写入绑定，返回指纹
func (r *applyRun) resolveCertificate(ref *cert.CertificateRef, b *iis.BindingSettings) (string, error) {
	if ref == nil {
		return b.CertificateHash, nil
	}
	if ref.Install && r.computer != "" {
		return "", errors.Mark(errors.Newf("不支持向远程主机 %s 安装证书", r.computer), iis.ErrUnsupported)
	}
	if r.d.Certs == nil {
		return "", errors.New("未配置证书解析器")
	}
	hash, storeName, err := r.d.Certs.Resolve(ref)
	if err != nil {
		return "", errors.Wrap(err, "解析证书失败")
	}
	b.CertificateHash = hash
	b.CertificateStoreName = storeName
	return hash, nil
}

func (r *applyRun) website(w *WebsiteSpec) {
	s := w.Settings
	// 证书只影响新建的站点，已存在的站点不解析证书
	if s.Overwrite || !iis.SiteExists(r.srv, s.Name) {
		if _, err := r.resolveCertificate(w.Certificate, s.Binding); err != nil {
			r.fail(KindWebsite, s.Name, err)
			return
		}
	}

	_, existed, err := iis.CreateWebsite(r.srv, s)
	if err != nil {
		r.fail(KindWebsite, s.Name, err)
		return
	}
	if existed {
		r.ok(KindWebsite, s.Name, false, "已存在")
		return
	}
	res := r.ok(KindWebsite, s.Name, true, fmt.Sprintf("已创建 (%s %s)", s.Binding.Protocol, s.Binding.BindingInformation()))
	res.Thumbprint = s.Binding.CertificateHash
}

func (r *applyRun) ftpSite(f *iis.FtpSiteSettings) {
	_, existed, err := iis.CreateFtpSite(r.srv, f)
	if err != nil {
		r.fail(KindFtpSite, f.Name, err)
		return
	}
	if existed {
		r.ok(KindFtpSite, f.Name, false, "已存在")
		return
	}
	r.ok(KindFtpSite, f.Name, true, "已创建")
}

func (r *applyRun) application(a *iis.ApplicationSettings) {
	name := a.SiteName + a.ApplicationPath
	if iis.ApplicationExists(r.srv, a.SiteName, a.ApplicationPath) && !a.Overwrite {
		r.ok(KindApplication, name, false, "已存在")
		return
	}
	if err := iis.AddApplication(r.srv, a); err != nil {
		r.fail(KindApplication, name, err)
		return
	}
	r.ok(KindApplication, name, true, "已添加")
}

func (r *applyRun) virtualApplication(v *iis.VirtualApplicationSettings) {
	name := v.ParentWebSite + "/" + v.Name
	existed, err := iis.VirtualApplicationExists(r.srv, v.ParentWebSite, v.Name)
	if err == nil {
		err = iis.CreateVirtualApplication(r.srv, v)
	}
	if err != nil {
		r.fail(KindVirtualApplication, name, err)
		return
	}
	if existed && !v.Overwrite {
		r.ok(KindVirtualApplication, name, false, "已存在")
		return
	}
	r.ok(KindVirtualApplication, name, true, "已创建或更新")
}

func (r *applyRun) virtualDirectory(v *iis.VirtualDirectorySettings) {
	name := v.SiteName + v.ApplicationPath + v.Path
	if iis.VirtualDirectoryExists(r.srv, v) {
		r.ok(KindVirtualDirectory, name, false, "已存在")
		return
	}
	if err := iis.AddVirtualDirectory(r.srv, v); err != nil {
		r.fail(KindVirtualDirectory, name, err)
		return
	}
	r.ok(KindVirtualDirectory, name, true, "已添加")
}

func (r *applyRun) binding(b *BindingSpec) {
	name := fmt.Sprintf("%s %s/%s", b.Site, b.Binding.Protocol, b.Binding.BindingInformation())

	if b.Remove {
		removed, err := iis.RemoveBinding(r.srv, b.Site, b.Binding)
		if err != nil {
			r.fail(KindBinding, name, err)
			return
		}
		if !removed {
			r.ok(KindBinding, name, false, "不存在")
			return
		}
		r.ok(KindBinding, name, true, "已删除")
		return
	}

	hash, err := r.resolveCertificate(b.Certificate, b.Binding)
	if err == nil {
		err = iis.AddBinding(r.srv, b.Site, b.Binding)
	}
	switch {
	case errors.Is(err, iis.ErrConflict):
		r.ok(KindBinding, name, false, "已存在")
	case err != nil:
		r.fail(KindBinding, name, err)
	default:
		res := r.ok(KindBinding, name, true, "已添加")
		res.Thumbprint = hash
	}
}
