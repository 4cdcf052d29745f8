package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"iisctl/iis"
	"iisctl/store"
)

// bindingFlags binding add/remove 共用的参数
type bindingFlags struct {
	site       string
	protocol   string
	host       string
	ip         string
	port       int
	thumbprint string
	certStore  string
	sslFlags   int
}

func (f *bindingFlags) register(cmd *cobra.Command, withCert bool) {
	flags := cmd.Flags()
	flags.StringVar(&f.site, "site", "", "站点名称")
	flags.StringVar(&f.protocol, "protocol", string(iis.ProtocolHTTP), "协议: http, https, ftp, net.tcp, net.pipe, net.msmq, msmq.formatname")
	flags.StringVar(&f.host, "host", "", "主机名")
	flags.StringVar(&f.ip, "ip", "", "IP 地址，为空时为 *")
	flags.IntVar(&f.port, "port", 0, "端口，为空时使用协议默认端口")
	if withCert {
		flags.StringVar(&f.thumbprint, "thumbprint", "", "https 证书指纹")
		flags.StringVar(&f.certStore, "cert-store", "My", "证书存储名称")
		flags.IntVar(&f.sslFlags, "ssl-flags", 0, "sslFlags，为 0 且指定主机名时自动启用 SNI")
	}
	_ = cmd.MarkFlagRequired("site")
}

// binding 从协议预设开始，只覆盖显式指定的字段
func (f *bindingFlags) binding() *iis.BindingSettings {
	var b *iis.BindingSettings
	switch iis.BindingProtocol(f.protocol) {
	case iis.ProtocolHTTPS:
		b = iis.HTTPSBinding()
	case iis.ProtocolFTP:
		b = iis.FTPBinding()
	case iis.ProtocolNetTCP:
		b = iis.NetTCPBinding()
	case iis.ProtocolNetPipe:
		b = iis.NetPipeBinding()
	case iis.ProtocolNetMsmq:
		b = iis.NetMsmqBinding()
	case iis.ProtocolMsmqFormatName:
		b = iis.MsmqFormatNameBinding()
	case iis.ProtocolHTTP:
		b = iis.HTTPBinding()
	default:
		b = &iis.BindingSettings{Protocol: iis.BindingProtocol(f.protocol)}
	}
	if f.host != "" {
		b.WithHostName(f.host)
	}
	if f.ip != "" {
		b.WithIPAddress(f.ip)
	}
	if f.port != 0 {
		b.WithPort(f.port)
	}
	if f.thumbprint != "" {
		b.WithCertificate(f.thumbprint, f.certStore)
	}
	b.SslFlags = f.sslFlags
	return b
}

func newBindingCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "binding",
		Short: "管理站点绑定",
	}

	var add bindingFlags
	addCmd := &cobra.Command{
		Use:     "add",
		Short:   "为站点添加绑定",
		Example: "  iisctl binding add --site S1 --protocol https --host www.example.com --thumbprint ABC...",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			b := add.binding()
			return o.withStore(func(srv store.Manager) error {
				if err := iis.AddBinding(srv, add.site, b); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: added %s/%s\n", add.site, b.Protocol, b.BindingInformation())
				return nil
			})
		},
	}
	add.register(addCmd, true)

	var remove bindingFlags
	removeCmd := &cobra.Command{
		Use:   "remove",
		Short: "删除站点绑定",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			b := remove.binding()
			return o.withStore(func(srv store.Manager) error {
				ok, err := iis.RemoveBinding(srv, remove.site, b)
				if err != nil {
					return err
				}
				printTransition(cmd, fmt.Sprintf("%s %s/%s", remove.site, b.Protocol, b.BindingInformation()), ok)
				return nil
			})
		},
	}
	remove.register(removeCmd, false)

	cmd.AddCommand(addCmd, removeCmd)
	return cmd
}
