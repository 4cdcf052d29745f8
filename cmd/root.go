package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"iisctl/config"
	"iisctl/deploy"
	"iisctl/iis"
	"iisctl/store"
	"iisctl/util"
)

// Version 构建时通过 -ldflags "-X iisctl/cmd.Version=..." 注入
var Version = "dev"

// newDeployer 测试时替换为内存存储
var newDeployer = deploy.DefaultDeployer

// options 所有子命令共享的运行时状态
type options struct {
	configFile string
	v          *viper.Viper
	cfg        *config.Config
	closeLog   func()
}

// Execute 执行根命令
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	o := &options{v: viper.New()}

	root := &cobra.Command{
		Use:   "iisctl",
		Short: "IIS 站点、应用程序池与绑定的期望状态配置工具",
		Long: `iisctl 将 YAML 清单中描述的应用程序池、网站、FTP 站点、应用、
虚拟目录和绑定应用到本机或远程主机的 IIS 配置中。

已存在的对象默认保持不变，指定 overwrite 时删除后重建。`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return o.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			o.teardown()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&o.configFile, "config", "c", "", "配置文件 (默认: 数据目录下的 config.json)")
	flags.String("computer", "", "目标主机，为空时为本机")
	flags.String("apphost", "", "直接编辑的 applicationHost.config 路径")
	flags.Bool("debug", false, "输出调试日志")

	o.v.SetEnvPrefix("IISCTL")
	o.v.AutomaticEnv()
	_ = o.v.BindPFlags(flags)

	root.AddCommand(
		newApplyCmd(o),
		newSiteCmd(o),
		newPoolCmd(o),
		newAppCmd(o),
		newVdirCmd(o),
		newBindingCmd(o),
		newVersionCmd(),
	)
	return root
}

// setup 加载配置文件，命令行参数和 IISCTL_ 环境变量优先
func (o *options) setup() error {
	var (
		cfg *config.Config
		err error
	)
	if o.configFile != "" {
		cfg, err = config.LoadFrom(o.configFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}

	if v := o.v.GetString("computer"); v != "" {
		cfg.ComputerName = v
	}
	if v := o.v.GetString("apphost"); v != "" {
		cfg.ApplicationHostPath = v
	}
	if o.v.IsSet("debug") {
		cfg.Debug = o.v.GetBool("debug")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	util.DebugMode = cfg.Debug
	iis.TransientRetryDelay = cfg.RetryDelay()

	closeLog, err := util.SetupFileLogging(cfg.GetLogDir())
	if err != nil {
		util.Warn("无法创建日志文件: %v", err)
	} else {
		o.closeLog = closeLog
	}

	o.cfg = cfg
	util.Debug("配置: 主机=%q 配置文件=%q", cfg.ComputerName, cfg.ApplicationHostPath)
	return nil
}

func (o *options) teardown() {
	if o.closeLog != nil {
		o.closeLog()
		o.closeLog = nil
	}
}

// withStore 打开目标主机的配置存储并在 fn 返回后关闭
func (o *options) withStore(fn func(srv store.Manager) error) error {
	srv, err := newDeployer(o.cfg).Opener.Open(o.cfg.ComputerName)
	if err != nil {
		return err
	}
	defer srv.Close()
	return fn(srv)
}
