package store

import (
	"bytes"
	"encoding/xml"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/hashicorp/go-multierror"

	"iisctl/util"
)

// Manager IIS 配置存储
//
// 所有修改只作用于内存中的文档，直到 Commit 才写入存储。
type Manager interface {
	Sites() []*Site
	Site(name string) *Site
	AddSite(name, protocol, bindingInformation, physicalPath string) (*Site, error)
	RemoveSite(name string) bool

	ApplicationPools() []*ApplicationPool
	ApplicationPool(name string) *ApplicationPool
	AddApplicationPool(name string) (*ApplicationPool, error)
	RemoveApplicationPool(name string) bool

	// Section 获取 location 下的配置节，location 为空表示全局
	Section(sectionPath, location string) (*Element, error)

	StartSite(name string) error
	StopSite(name string) error
	SiteState(name string) ObjectState
	StartApplicationPool(name string) error
	StopApplicationPool(name string) error
	RecycleApplicationPool(name string) error
	ApplicationPoolState(name string) ObjectState

	Commit() error
	Discard() error
	Close() error
}

// Option ServerManager 选项
type Option func(*ServerManager)

// WithRuntime 指定运行时
func WithRuntime(r Runtime) Option {
	return func(m *ServerManager) { m.runtime = r }
}

// WithSSLBinder 指定证书绑定同步器，nil 表示不同步
func WithSSLBinder(b SSLBinder) Option {
	return func(m *ServerManager) { m.ssl = b }
}

// WithSchema 替换已知配置节集合
func WithSchema(paths ...string) Option {
	return func(m *ServerManager) { m.schema = NewSchema(paths...) }
}

// ServerManager 基于 applicationHost.config 文档的配置存储，非并发安全
type ServerManager struct {
	path     string
	doc      *Document
	snapshot []byte
	schema   Schema
	runtime  Runtime
	ssl      SSLBinder
	sslState map[string]SSLBinding
	states   map[string]ObjectState
	commits  int
	closed   bool
}

var _ Manager = (*ServerManager)(nil)

// ApplicationHostPath applicationHost.config 路径，computerName 非空时为远程管理共享路径
func ApplicationHostPath(computerName string) string {
	if computerName == "" {
		return filepath.Join(windowsDir(), "System32", "inetsrv", "config", "applicationHost.config")
	}
	return `\\` + computerName + `\admin$\System32\inetsrv\config\applicationHost.config`
}

// NewMemory 创建内存存储，默认使用 MemoryRuntime
func NewMemory(opts ...Option) *ServerManager {
	m := newServerManager("", emptyDocument(), append([]Option{WithRuntime(NewMemoryRuntime())}, opts...))
	return m
}

// OpenFile 打开配置文件，文件不存在时从空文档开始
func OpenFile(path string, opts ...Option) (*ServerManager, error) {
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrapf(err, "读取配置文件失败: %s", path)
	}

	doc, err := decodeDocument(data)
	if err != nil {
		return nil, errors.Wrapf(err, "解析配置文件失败: %s", path)
	}
	return newServerManager(path, doc, opts), nil
}

// OpenLocal 打开本机 IIS 配置
func OpenLocal(opts ...Option) (*ServerManager, error) {
	path := ApplicationHostPath("")
	if _, err := os.Stat(path); err != nil {
		return nil, errors.WithHint(
			errors.Wrapf(err, "IIS 未安装或配置文件不存在: %s", path),
			"请确认已安装 IIS 并以管理员身份运行")
	}
	defaults := []Option{
		WithRuntime(NewAppcmdRuntime("", "")),
		WithSSLBinder(NewNetshBinder()),
	}
	return OpenFile(path, append(defaults, opts...)...)
}

// OpenRemote 通过管理共享打开远程主机的 IIS 配置
func OpenRemote(computerName string, opts ...Option) (*ServerManager, error) {
	path := ApplicationHostPath(computerName)
	if _, err := os.Stat(path); err != nil {
		return nil, errors.WithHint(
			errors.Wrapf(err, "无法访问远程配置: %s", path),
			"请确认 admin$ 共享可访问且当前账户为远程主机管理员")
	}
	defaults := []Option{WithRuntime(NewAppcmdRuntime(computerName, ""))}
	return OpenFile(path, append(defaults, opts...)...)
}

// Open computerName 为空时打开本机，否则打开远程主机
func Open(computerName string, opts ...Option) (*ServerManager, error) {
	if computerName == "" {
		return OpenLocal(opts...)
	}
	return OpenRemote(computerName, opts...)
}

func newServerManager(path string, doc *Document, opts []Option) *ServerManager {
	m := &ServerManager{
		path:   path,
		doc:    doc,
		schema: NewSchema(DefaultSchema...),
		states: make(map[string]ObjectState),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.snapshot, _ = encodeDocument(doc)
	m.sslState = collectSSLBindings(doc)
	return m
}

func emptyDocument() *Document {
	doc := &Document{}
	ensureDocument(doc)
	return doc
}

func ensureDocument(doc *Document) {
	if doc.ApplicationHost == nil {
		doc.ApplicationHost = &ApplicationHost{}
	}
	if doc.ApplicationHost.ApplicationPools == nil {
		doc.ApplicationHost.ApplicationPools = &ApplicationPools{}
	}
	if doc.ApplicationHost.Sites == nil {
		doc.ApplicationHost.Sites = &Sites{}
	}
}

func decodeDocument(data []byte) (*Document, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return emptyDocument(), nil
	}
	doc := &Document{}
	if err := xml.Unmarshal(data, doc); err != nil {
		return nil, err
	}
	ensureDocument(doc)
	return doc, nil
}

func encodeDocument(doc *Document) ([]byte, error) {
	data, err := xml.MarshalIndent(doc, "", "    ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), data...), nil
}

// writeFileAtomic 先写临时文件再重命名
func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrap(err, "创建配置目录失败")
	}
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return errors.Wrap(err, "写入临时文件失败")
	}
	if err := os.Rename(tmpPath, path); err != nil {
		util.RemoveTempFile(tmpPath)
		return errors.Wrap(err, "保存配置文件失败")
	}
	return nil
}

// Path 配置文件路径，内存存储为空
func (m *ServerManager) Path() string {
	return m.path
}

// CommitCount 成功提交次数
func (m *ServerManager) CommitCount() int {
	return m.commits
}

// Sites 所有站点
func (m *ServerManager) Sites() []*Site {
	if m.closed {
		return nil
	}
	return m.doc.ApplicationHost.Sites.Sites
}

// Site 按名称查找站点（不区分大小写）
func (m *ServerManager) Site(name string) *Site {
	for _, s := range m.Sites() {
		if strings.EqualFold(s.Name, name) {
			return s
		}
	}
	return nil
}

// AddSite 添加站点，分配下一个可用 ID 并创建根应用
func (m *ServerManager) AddSite(name, protocol, bindingInformation, physicalPath string) (*Site, error) {
	if m.closed {
		return nil, ErrClosed
	}
	if m.Site(name) != nil {
		return nil, errors.Wrapf(ErrDuplicate, "站点 %s", name)
	}

	var maxID int64
	for _, s := range m.Sites() {
		if s.ID > maxID {
			maxID = s.ID
		}
	}

	site := &Site{
		Name:            name,
		ID:              maxID + 1,
		ServerAutoStart: true,
		Bindings:        []*Binding{{Protocol: protocol, BindingInformation: bindingInformation}},
	}
	site.AddApplication("/", physicalPath)

	sites := m.doc.ApplicationHost.Sites
	sites.Sites = append(sites.Sites, site)
	return site, nil
}

// RemoveSite 删除站点及其 location 配置
func (m *ServerManager) RemoveSite(name string) bool {
	if m.closed {
		return false
	}
	sites := m.doc.ApplicationHost.Sites
	for i, s := range sites.Sites {
		if strings.EqualFold(s.Name, name) {
			sites.Sites = append(sites.Sites[:i], sites.Sites[i+1:]...)
			m.removeLocations(s.Name)
			delete(m.states, siteKey(name))
			return true
		}
	}
	return false
}

func (m *ServerManager) removeLocations(siteName string) {
	kept := m.doc.Locations[:0]
	prefix := strings.ToLower(siteName) + "/"
	for _, loc := range m.doc.Locations {
		p := strings.ToLower(loc.Path)
		if p == strings.ToLower(siteName) || strings.HasPrefix(p, prefix) {
			continue
		}
		kept = append(kept, loc)
	}
	m.doc.Locations = kept
}

// ApplicationPools 所有应用程序池
func (m *ServerManager) ApplicationPools() []*ApplicationPool {
	if m.closed {
		return nil
	}
	return m.doc.ApplicationHost.ApplicationPools.Pools
}

// ApplicationPool 按名称查找应用程序池（不区分大小写）
func (m *ServerManager) ApplicationPool(name string) *ApplicationPool {
	for _, p := range m.ApplicationPools() {
		if strings.EqualFold(p.Name, name) {
			return p
		}
	}
	return nil
}

// AddApplicationPool 按 IIS 默认值添加应用程序池
func (m *ServerManager) AddApplicationPool(name string) (*ApplicationPool, error) {
	if m.closed {
		return nil, ErrClosed
	}
	if m.ApplicationPool(name) != nil {
		return nil, errors.Wrapf(ErrDuplicate, "应用程序池 %s", name)
	}
	pool := newApplicationPool(name)
	pools := m.doc.ApplicationHost.ApplicationPools
	pools.Pools = append(pools.Pools, pool)
	return pool, nil
}

// RemoveApplicationPool 删除应用程序池
func (m *ServerManager) RemoveApplicationPool(name string) bool {
	if m.closed {
		return false
	}
	pools := m.doc.ApplicationHost.ApplicationPools
	for i, p := range pools.Pools {
		if strings.EqualFold(p.Name, name) {
			pools.Pools = append(pools.Pools[:i], pools.Pools[i+1:]...)
			delete(m.states, poolKey(name))
			return true
		}
	}
	return false
}

// Section 获取配置节，不在架构中的路径返回 ErrSectionNotFound
func (m *ServerManager) Section(sectionPath, location string) (*Element, error) {
	if m.closed {
		return nil, ErrClosed
	}
	p := strings.Trim(sectionPath, "/")
	if !m.schema.Has(p) {
		return nil, errors.Wrapf(ErrSectionNotFound, "%s", p)
	}

	segments := strings.Split(p, "/")
	if location == "" {
		return descend(&m.doc.Sections, segments), nil
	}
	loc := m.location(location)
	return descend(&loc.Sections, segments), nil
}

func (m *ServerManager) location(path string) *Location {
	path = strings.Trim(path, "/")
	for _, loc := range m.doc.Locations {
		if strings.EqualFold(loc.Path, path) {
			return loc
		}
	}
	loc := &Location{Path: path}
	m.doc.Locations = append(m.doc.Locations, loc)
	return loc
}

func siteKey(name string) string { return "site:" + strings.ToLower(name) }

func poolKey(name string) string { return "apppool:" + strings.ToLower(name) }

func (m *ServerManager) transition(key string, state ObjectState, fn func(Runtime) func(string) error, name string) error {
	if m.closed {
		return ErrClosed
	}
	if m.runtime == nil {
		return errors.New("未配置运行时，无法切换运行状态")
	}
	if err := fn(m.runtime)(name); err != nil {
		return err
	}
	m.states[key] = state
	return nil
}

func (m *ServerManager) StartSite(name string) error {
	return m.transition(siteKey(name), StateStarted, func(r Runtime) func(string) error { return r.StartSite }, name)
}

func (m *ServerManager) StopSite(name string) error {
	return m.transition(siteKey(name), StateStopped, func(r Runtime) func(string) error { return r.StopSite }, name)
}

func (m *ServerManager) StartApplicationPool(name string) error {
	return m.transition(poolKey(name), StateStarted, func(r Runtime) func(string) error { return r.StartApplicationPool }, name)
}

func (m *ServerManager) StopApplicationPool(name string) error {
	return m.transition(poolKey(name), StateStopped, func(r Runtime) func(string) error { return r.StopApplicationPool }, name)
}

func (m *ServerManager) RecycleApplicationPool(name string) error {
	return m.transition(poolKey(name), StateStarted, func(r Runtime) func(string) error { return r.RecycleApplicationPool }, name)
}

// SiteState 站点状态，未切换过时按 serverAutoStart 推断
func (m *ServerManager) SiteState(name string) ObjectState {
	site := m.Site(name)
	if site == nil {
		return StateUnknown
	}
	if s, ok := m.states[siteKey(name)]; ok {
		return s
	}
	if site.ServerAutoStart {
		return StateStarted
	}
	return StateStopped
}

// ApplicationPoolState 应用程序池状态，未切换过时按 autoStart 推断
func (m *ServerManager) ApplicationPoolState(name string) ObjectState {
	pool := m.ApplicationPool(name)
	if pool == nil {
		return StateUnknown
	}
	if s, ok := m.states[poolKey(name)]; ok {
		return s
	}
	if pool.AutoStart {
		return StateStarted
	}
	return StateStopped
}

// Commit 写入所有未提交的修改，并同步 https 证书绑定
func (m *ServerManager) Commit() error {
	if m.closed {
		return ErrClosed
	}
	data, err := encodeDocument(m.doc)
	if err != nil {
		return errors.Wrap(err, "序列化配置失败")
	}
	if m.path != "" {
		if err := writeFileAtomic(m.path, data); err != nil {
			return err
		}
	}
	m.snapshot = data
	m.commits++
	util.Debug("配置已提交 (第 %d 次)", m.commits)

	return m.syncSSL()
}

// syncSSL 将 http.sys 证书绑定与文档对齐，失败的端点保留旧状态以便下次提交重试
func (m *ServerManager) syncSSL() error {
	desired := collectSSLBindings(m.doc)
	previous := m.sslState
	if m.ssl == nil {
		m.sslState = desired
		return nil
	}

	state := make(map[string]SSLBinding, len(desired))
	for key, b := range desired {
		state[key] = b
	}

	var result error
	for key, old := range previous {
		if _, ok := desired[key]; ok {
			continue
		}
		if err := m.ssl.Unbind(old); err != nil {
			result = multierror.Append(result, err)
			state[key] = old
		} else {
			util.Info("已解除证书绑定: %s", old.Endpoint)
		}
	}
	for key, b := range desired {
		old, had := previous[key]
		if had && old == b {
			continue
		}
		if err := m.ssl.Bind(b); err != nil {
			result = multierror.Append(result, err)
			if had {
				state[key] = old
			} else {
				delete(state, key)
			}
		} else {
			util.Info("已绑定证书: %s -> %s", b.Endpoint, b.CertHash)
		}
	}
	m.sslState = state

	if result != nil {
		return errors.Mark(errors.Wrap(result, "配置已保存，但证书绑定同步失败"), ErrSSLSync)
	}
	return nil
}

// Discard 放弃未提交的修改，恢复到最近一次提交
func (m *ServerManager) Discard() error {
	if m.closed {
		return ErrClosed
	}
	doc, err := decodeDocument(m.snapshot)
	if err != nil {
		return errors.Wrap(err, "恢复配置失败")
	}
	m.doc = doc
	return nil
}

// Close 释放存储，未提交的修改被丢弃
func (m *ServerManager) Close() error {
	m.closed = true
	m.doc = nil
	return nil
}
