package deploy

import (
	"fmt"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"

	"iisctl/cert"
	"iisctl/iis"
)

// Manifest 一台主机的 IIS 期望状态
type Manifest struct {
	ComputerName        string                            `yaml:"computerName,omitempty"`
	ApplicationPools    []*iis.ApplicationPoolSettings    `yaml:"applicationPools,omitempty" validate:"dive,required"`
	Websites            []*WebsiteSpec                    `yaml:"websites,omitempty" validate:"dive,required"`
	FtpSites            []*iis.FtpSiteSettings            `yaml:"ftpSites,omitempty" validate:"dive,required"`
	Applications        []*iis.ApplicationSettings        `yaml:"applications,omitempty" validate:"dive,required"`
	VirtualApplications []*iis.VirtualApplicationSettings `yaml:"virtualApplications,omitempty" validate:"dive,required"`
	VirtualDirectories  []*iis.VirtualDirectorySettings   `yaml:"virtualDirectories,omitempty" validate:"dive,required"`
	Bindings            []*BindingSpec                    `yaml:"bindings,omitempty" validate:"dive,required"`
}

// WebsiteSpec 网站及其主绑定使用的证书
type WebsiteSpec struct {
	Settings    *iis.WebsiteSettings `validate:"required"`
	Certificate *cert.CertificateRef
}

// UnmarshalYAML 网站字段与 certificate 位于同一层
func (s *WebsiteSpec) UnmarshalYAML(node *yaml.Node) error {
	settings := new(iis.WebsiteSettings)
	if err := node.Decode(settings); err != nil {
		return err
	}
	var extra struct {
		Certificate *cert.CertificateRef `yaml:"certificate"`
	}
	if err := node.Decode(&extra); err != nil {
		return err
	}
	s.Settings = settings
	s.Certificate = extra.Certificate
	return nil
}

// BindingSpec 为已有站点添加（或删除）的绑定
type BindingSpec struct {
	Site        string               `yaml:"site" validate:"required"`
	Binding     *iis.BindingSettings `yaml:"binding" validate:"required"`
	Certificate *cert.CertificateRef `yaml:"certificate,omitempty"`
	Remove      bool                 `yaml:"remove,omitempty"`
}

// LoadManifest 读取并校验 YAML 清单
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "读取清单失败: %s", path)
	}
	m, err := ParseManifest(data)
	if err != nil {
		return nil, errors.Wrapf(err, "清单 %s", path)
	}
	return m, nil
}

// ParseManifest 解析并校验 YAML 清单
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "解析清单失败"), iis.ErrValidation)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

var validate = validator.New()

// Validate 在修改任何配置前检查整个清单
func (m *Manifest) Validate() error {
	var result *multierror.Error

	if err := validate.Struct(m); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return errors.Mark(err, iis.ErrValidation)
		}
		for _, fe := range verrs {
			result = multierror.Append(result, fieldError(fe))
		}
	}

	sites := make(map[string]struct{})
	addSite := func(kind, name string) {
		key := strings.ToLower(name)
		if _, dup := sites[key]; dup {
			result = multierror.Append(result, errors.Newf("%s %s: 站点名称重复", kind, name))
		}
		sites[key] = struct{}{}
	}
	for _, w := range m.Websites {
		if w == nil || w.Settings == nil {
			continue
		}
		addSite("websites", w.Settings.Name)
		if w.Certificate != nil {
			if w.Settings.Binding == nil || w.Settings.Binding.Protocol != iis.ProtocolHTTPS {
				result = multierror.Append(result, errors.Newf("websites %s: 只有 https 绑定可以指定证书", w.Settings.Name))
			}
			result = appendRefError(result, "websites "+w.Settings.Name, w.Certificate)
		}
	}
	for _, f := range m.FtpSites {
		if f != nil {
			addSite("ftpSites", f.Name)
		}
	}
	for _, b := range m.Bindings {
		if b == nil || b.Certificate == nil {
			continue
		}
		name := fmt.Sprintf("bindings %s", b.Site)
		if b.Binding != nil && b.Binding.Protocol != iis.ProtocolHTTPS {
			result = multierror.Append(result, errors.Newf("%s: 只有 https 绑定可以指定证书", name))
		}
		result = appendRefError(result, name, b.Certificate)
	}

	if err := result.ErrorOrNil(); err != nil {
		return errors.Mark(errors.Wrap(err, "清单校验失败"), iis.ErrValidation)
	}
	return nil
}

func appendRefError(result *multierror.Error, name string, ref *cert.CertificateRef) *multierror.Error {
	if err := ref.Validate(); err != nil {
		return multierror.Append(result, errors.Wrapf(err, "%s", name))
	}
	return result
}

func fieldError(fe validator.FieldError) error {
	field := strings.TrimPrefix(fe.Namespace(), "Manifest.")
	switch fe.Tag() {
	case "required":
		return errors.Newf("%s: 不能为空", field)
	case "required_if":
		return errors.Newf("%s: 当 %s 时不能为空", field, fe.Param())
	case "oneof":
		return errors.Newf("%s: 必须是 [%s] 之一，实际为 %v", field, fe.Param(), fe.Value())
	case "startswith":
		return errors.Newf("%s: 必须以 '%s' 开头", field, fe.Param())
	default:
		return errors.Newf("%s: 校验失败 (%s=%s)", field, fe.Tag(), fe.Param())
	}
}
