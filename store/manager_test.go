package store

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleApplicationHost = `<?xml version="1.0" encoding="UTF-8"?>
<configuration>
    <configSections>
        <sectionGroup name="system.applicationHost" />
    </configSections>
    <system.applicationHost>
        <applicationPools>
            <add name="DefaultAppPool" />
            <add name="Legacy" managedRuntimeVersion="v2.0" managedPipelineMode="Classic" autoStart="false" startMode="AlwaysRunning" queueLength="2000">
                <processModel identityType="NetworkService" idleTimeout="00:05:00" logonType="LogonService" />
                <recycling logEventOnRecycle="Time">
                    <periodicRestart time="00:00:00" />
                </recycling>
                <failure rapidFailProtection="false" />
                <cpu limit="0" />
            </add>
            <applicationPoolDefaults managedRuntimeVersion="v4.0" />
        </applicationPools>
        <sites>
            <site name="Default Web Site" id="1">
                <application path="/" applicationPool="DefaultAppPool" preloadEnabled="true">
                    <virtualDirectory path="/" physicalPath="%SystemDrive%\inetpub\wwwroot" logonMethod="ClearText" />
                </application>
                <bindings>
                    <binding protocol="http" bindingInformation="*:80:" />
                </bindings>
                <applicationDefaults applicationPool="DefaultAppPool" preloadEnabled="false" />
                <logFile directory="D:\logs" />
            </site>
            <siteDefaults>
                <logFile logFormat="W3C" />
            </siteDefaults>
        </sites>
    </system.applicationHost>
    <system.webServer>
        <directoryBrowse enabled="false" />
    </system.webServer>
    <location path="Default Web Site" inheritInChildApplications="false">
        <system.webServer>
            <security>
                <authentication>
                    <anonymousAuthentication enabled="true" />
                </authentication>
            </security>
        </system.webServer>
    </location>
</configuration>
`

func writeSample(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "applicationHost.config")
	require.NoError(t, os.WriteFile(path, []byte(sampleApplicationHost), 0644))
	return path
}

func TestOpenFile_Parse(t *testing.T) {
	m, err := OpenFile(writeSample(t))
	require.NoError(t, err)

	require.Len(t, m.ApplicationPools(), 2)

	// 未出现的属性取 IIS 默认值
	def := m.ApplicationPool("defaultapppool")
	require.NotNil(t, def)
	assert.True(t, def.AutoStart)
	assert.Equal(t, "v4.0", def.ManagedRuntimeVersion)
	assert.Equal(t, IdentityApplicationPoolIdentity, def.ProcessModel.IdentityType)
	assert.Equal(t, Duration(20*time.Minute), def.ProcessModel.IdleTimeout)

	legacy := m.ApplicationPool("Legacy")
	require.NotNil(t, legacy)
	assert.False(t, legacy.AutoStart)
	assert.Equal(t, PipelineClassic, legacy.ManagedPipelineMode)
	assert.Equal(t, IdentityNetworkService, legacy.ProcessModel.IdentityType)
	assert.Equal(t, Duration(5*time.Minute), legacy.ProcessModel.IdleTimeout)
	assert.Equal(t, int64(1), legacy.ProcessModel.MaxProcesses)

	site := m.Site("Default Web Site")
	require.NotNil(t, site)
	assert.Equal(t, int64(1), site.ID)
	assert.True(t, site.ServerAutoStart)
	require.Len(t, site.Bindings, 1)
	assert.Equal(t, "*:80:", site.Bindings[0].BindingInformation)
	root := site.Application("/")
	require.NotNil(t, root)
	assert.Equal(t, "DefaultAppPool", root.ApplicationPool)
	require.NotNil(t, root.VirtualDirectory("/"))
}

func TestOpenFile_RoundTripPreservesUnknown(t *testing.T) {
	path := writeSample(t)
	m, err := OpenFile(path)
	require.NoError(t, err)

	_, err = m.AddApplicationPool("P1")
	require.NoError(t, err)
	require.NoError(t, m.Commit())
	assert.Equal(t, 1, m.CommitCount())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.True(t, strings.HasPrefix(text, "<?xml"))
	assert.Contains(t, text, `<configSections>`)
	assert.Contains(t, text, `<logFile directory="D:\logs">`)
	assert.Contains(t, text, `<siteDefaults>`)
	assert.Contains(t, text, `<applicationPoolDefaults managedRuntimeVersion="v4.0">`)
	assert.Contains(t, text, `name="P1"`)

	reopened, err := OpenFile(path)
	require.NoError(t, err)
	assert.NotNil(t, reopened.ApplicationPool("P1"))
	assert.NotNil(t, reopened.Site("Default Web Site"))

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "临时文件应已重命名")
}

func TestOpenFile_NoopCommitPreservesUnmodeled(t *testing.T) {
	path := writeSample(t)
	m, err := OpenFile(path)
	require.NoError(t, err)
	require.NoError(t, m.Commit())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	for _, want := range []string{
		`startMode="AlwaysRunning"`,
		`queueLength="2000"`,
		`logonType="LogonService"`,
		`<recycling logEventOnRecycle="Time">`,
		`<periodicRestart time="00:00:00">`,
		`<failure rapidFailProtection="false">`,
		`<cpu limit="0">`,
		`preloadEnabled="true"`,
		`preloadEnabled="false"`,
		`logonMethod="ClearText"`,
		`inheritInChildApplications="false"`,
	} {
		assert.Contains(t, text, want)
	}

	// 重新打开后再次提交结果不变
	reopened, err := OpenFile(path)
	require.NoError(t, err)
	require.NoError(t, reopened.Commit())
	again, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, text, string(again))
}

func TestOpenFile_Missing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "applicationHost.config")
	m, err := OpenFile(path)
	require.NoError(t, err)
	assert.Empty(t, m.Sites())

	_, err = m.AddSite("S1", "http", "*:80:", `C:\www`)
	require.NoError(t, err)
	require.NoError(t, m.Commit())

	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestOpenFile_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "applicationHost.config")
	require.NoError(t, os.WriteFile(path, []byte("<configuration><sites>"), 0644))
	_, err := OpenFile(path)
	assert.Error(t, err)
}

func TestAddApplicationPool_Defaults(t *testing.T) {
	m := NewMemory()
	pool, err := m.AddApplicationPool("P1")
	require.NoError(t, err)

	assert.True(t, pool.AutoStart)
	assert.Equal(t, "v4.0", pool.ManagedRuntimeVersion)
	assert.Equal(t, PipelineIntegrated, pool.ManagedPipelineMode)
	assert.False(t, pool.Enable32BitAppOnWin64)
	pm := pool.ProcessModel
	assert.Equal(t, IdentityApplicationPoolIdentity, pm.IdentityType)
	assert.Equal(t, int64(1), pm.MaxProcesses)
	assert.True(t, pm.PingingEnabled)
	assert.Equal(t, Duration(30*time.Second), pm.PingInterval)
	assert.Equal(t, Duration(90*time.Second), pm.PingResponseTime)
	assert.Equal(t, Duration(20*time.Minute), pm.IdleTimeout)
	assert.Equal(t, Duration(90*time.Second), pm.StartupTimeLimit)
	assert.Equal(t, Duration(90*time.Second), pm.ShutdownTimeLimit)

	_, err = m.AddApplicationPool("p1")
	assert.True(t, errors.Is(err, ErrDuplicate))
}

func TestAddSite(t *testing.T) {
	m := NewMemory()
	s1, err := m.AddSite("S1", "http", "*:8080:", `C:\s1`)
	require.NoError(t, err)
	s2, err := m.AddSite("S2", "ftp", "21:", `C:\s2`)
	require.NoError(t, err)

	assert.Equal(t, int64(1), s1.ID)
	assert.Equal(t, int64(2), s2.ID)
	require.Len(t, s1.Bindings, 1)
	assert.Equal(t, "http", s1.Bindings[0].Protocol)

	root := s1.Application("/")
	require.NotNil(t, root)
	vdir := root.VirtualDirectory("/")
	require.NotNil(t, vdir)
	assert.Equal(t, `C:\s1`, vdir.PhysicalPath)

	_, err = m.AddSite("s1", "http", "*:80:", `C:\x`)
	assert.True(t, errors.Is(err, ErrDuplicate))

	// 删除后 ID 不回收
	assert.True(t, m.RemoveSite("S1"))
	assert.False(t, m.RemoveSite("S1"))
	s3, err := m.AddSite("S3", "http", "*:81:", `C:\s3`)
	require.NoError(t, err)
	assert.Equal(t, int64(3), s3.ID)
}

func TestCommitAndDiscard(t *testing.T) {
	m := NewMemory()
	_, err := m.AddApplicationPool("P1")
	require.NoError(t, err)
	require.NoError(t, m.Commit())

	_, err = m.AddApplicationPool("P2")
	require.NoError(t, err)
	assert.True(t, m.RemoveApplicationPool("P1"))

	require.NoError(t, m.Discard())
	assert.NotNil(t, m.ApplicationPool("P1"))
	assert.Nil(t, m.ApplicationPool("P2"))
	assert.Equal(t, 1, m.CommitCount())
}

func TestClose(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.Close())
	assert.Nil(t, m.Sites())
	assert.ErrorIs(t, m.Commit(), ErrClosed)
	_, err := m.AddSite("S1", "http", "*:80:", "")
	assert.ErrorIs(t, err, ErrClosed)
	assert.NoError(t, m.Close())
}

func TestSection(t *testing.T) {
	m := NewMemory(WithSchema("system.webServer/security/authorization", "system.webServer/directoryBrowse"))

	_, err := m.Section("system.webServer/security/authentication/windowsAuthentication", "S1")
	assert.True(t, errors.Is(err, ErrSectionNotFound))

	sec, err := m.Section("system.webServer/directoryBrowse", "S1")
	require.NoError(t, err)
	sec.SetAttr("enabled", true)

	again, err := m.Section("/system.webServer/directoryBrowse/", "s1")
	require.NoError(t, err)
	assert.Same(t, sec, again)
	assert.True(t, again.BoolAttr("enabled"))

	global, err := m.Section("system.webServer/directoryBrowse", "")
	require.NoError(t, err)
	assert.NotSame(t, sec, global)
	assert.False(t, global.BoolAttr("enabled"))
}

func TestRemoveSite_DropsLocations(t *testing.T) {
	m := NewMemory()
	_, err := m.AddSite("S1", "http", "*:80:", "")
	require.NoError(t, err)
	_, err = m.Section("system.webServer/directoryBrowse", "S1")
	require.NoError(t, err)
	_, err = m.Section("system.webServer/directoryBrowse", "S1/app")
	require.NoError(t, err)
	_, err = m.Section("system.webServer/directoryBrowse", "S10")
	require.NoError(t, err)

	m.RemoveSite("S1")
	require.Len(t, m.doc.Locations, 1)
	assert.Equal(t, "S10", m.doc.Locations[0].Path)
}

func TestStates(t *testing.T) {
	rt := NewMemoryRuntime()
	m := NewMemory(WithRuntime(rt))
	assert.Equal(t, StateUnknown, m.SiteState("S1"))

	_, err := m.AddSite("S1", "http", "*:80:", "")
	require.NoError(t, err)
	pool, err := m.AddApplicationPool("P1")
	require.NoError(t, err)
	pool.AutoStart = false

	assert.Equal(t, StateStarted, m.SiteState("S1"))
	assert.Equal(t, StateStopped, m.ApplicationPoolState("P1"))

	require.NoError(t, m.StopSite("S1"))
	require.NoError(t, m.StartApplicationPool("P1"))
	assert.Equal(t, StateStopped, m.SiteState("S1"))
	assert.Equal(t, StateStarted, m.ApplicationPoolState("P1"))
	assert.Equal(t, []string{"stop site S1", "start apppool P1"}, rt.Calls())
}

func TestStates_Fault(t *testing.T) {
	rt := NewMemoryRuntime()
	rt.Fault = TransientFault(OpStartSite, 1)
	m := NewMemory(WithRuntime(rt))
	_, err := m.AddSite("S1", "http", "*:80:", "")
	require.NoError(t, err)
	require.NoError(t, m.StopSite("S1"))

	err = m.StartSite("S1")
	assert.True(t, errors.Is(err, ErrTransient))
	assert.Equal(t, StateStopped, m.SiteState("S1"))

	require.NoError(t, m.StartSite("S1"))
	assert.Equal(t, StateStarted, m.SiteState("S1"))
}

func TestNoRuntime(t *testing.T) {
	m, err := OpenFile(filepath.Join(t.TempDir(), "a.config"))
	require.NoError(t, err)
	assert.Error(t, m.RecycleApplicationPool("P1"))
}

type fakeBinder struct {
	bound   []SSLBinding
	unbound []SSLBinding
	err     error
}

func (f *fakeBinder) Bind(b SSLBinding) error {
	f.bound = append(f.bound, b)
	return f.err
}

func (f *fakeBinder) Unbind(b SSLBinding) error {
	f.unbound = append(f.unbound, b)
	return f.err
}

func TestCommit_SyncsSSLBindings(t *testing.T) {
	binder := &fakeBinder{}
	m := NewMemory(WithSSLBinder(binder))
	site, err := m.AddSite("S1", "http", "*:80:", "")
	require.NoError(t, err)
	site.Bindings = append(site.Bindings, &Binding{
		Protocol:           "https",
		BindingInformation: "*:443:www.example.com",
		SslFlags:           1,
		CertificateHash:    "ABC123DEF456789012345678901234567890ABCD",
	})
	require.NoError(t, m.Commit())

	require.Len(t, binder.bound, 1)
	assert.Equal(t, "www.example.com:443", binder.bound[0].Endpoint)
	assert.True(t, binder.bound[0].SNI)
	assert.Equal(t, "abc123def456789012345678901234567890abcd", binder.bound[0].CertHash)
	assert.Equal(t, "MY", binder.bound[0].CertStoreName)

	// 未变化时不重复绑定
	require.NoError(t, m.Commit())
	assert.Len(t, binder.bound, 1)

	site.RemoveBinding("https", "*:443:www.example.com")
	require.NoError(t, m.Commit())
	require.Len(t, binder.unbound, 1)
	assert.Equal(t, "www.example.com:443", binder.unbound[0].Endpoint)
}

func TestCommit_SSLFailure(t *testing.T) {
	binder := &fakeBinder{err: errors.New("netsh 失败")}
	m := NewMemory(WithSSLBinder(binder))
	site, err := m.AddSite("S1", "https", "*:443:", "")
	require.NoError(t, err)
	site.Bindings[0].CertificateHash = "ABC123DEF456789012345678901234567890ABCD"

	err = m.Commit()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSSLSync))
	assert.Contains(t, err.Error(), "证书绑定同步失败")
	// 配置本身已提交
	assert.Equal(t, 1, m.CommitCount())
	require.Len(t, binder.bound, 1)

	// 失败的绑定在下次提交时重试
	binder.err = nil
	require.NoError(t, m.Commit())
	assert.Len(t, binder.bound, 2)
	require.NoError(t, m.Commit())
	assert.Len(t, binder.bound, 2, "成功后不再重复绑定")
}

func TestCommit_SSLUnbindFailureRetried(t *testing.T) {
	binder := &fakeBinder{}
	m := NewMemory(WithSSLBinder(binder))
	site, err := m.AddSite("S1", "https", "*:443:", "")
	require.NoError(t, err)
	site.Bindings[0].CertificateHash = "ABC123DEF456789012345678901234567890ABCD"
	require.NoError(t, m.Commit())

	binder.err = errors.New("netsh 失败")
	require.True(t, m.RemoveSite("S1"))
	err = m.Commit()
	assert.True(t, errors.Is(err, ErrSSLSync))
	require.Len(t, binder.unbound, 1)

	binder.err = nil
	require.NoError(t, m.Commit())
	assert.Len(t, binder.unbound, 2)
}

func TestApplicationHostPath(t *testing.T) {
	assert.True(t, strings.HasSuffix(ApplicationHostPath(""), "applicationHost.config"))
	assert.Equal(t, `\\web01\admin$\System32\inetsrv\config\applicationHost.config`, ApplicationHostPath("web01"))
}
