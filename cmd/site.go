package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"iisctl/iis"
	"iisctl/store"
)

func newSiteCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "site",
		Short: "管理站点",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "列出站点",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return o.withStore(func(srv store.Manager) error {
					w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
					fmt.Fprintln(w, "ID\t名称\t状态\t应用程序池\t绑定")
					for _, s := range srv.Sites() {
						bindings := make([]string, 0, len(s.Bindings))
						for _, b := range s.Bindings {
							bindings = append(bindings, b.Protocol+"/"+b.BindingInformation)
						}
						fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
							s.ID, s.Name, srv.SiteState(s.Name), s.ApplicationPoolName(), strings.Join(bindings, ","))
					}
					return w.Flush()
				})
			},
		},
		&cobra.Command{
			Use:   "delete NAME",
			Short: "删除站点",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return o.withStore(func(srv store.Manager) error {
					result, err := iis.DeleteSite(srv, args[0])
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", args[0], result)
					return nil
				})
			},
		},
		siteTransitionCmd(o, "start", "启动站点", iis.StartSite),
		siteTransitionCmd(o, "stop", "停止站点", iis.StopSite),
		&cobra.Command{
			Use:   "exists NAME",
			Short: "站点是否存在",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return o.withStore(func(srv store.Manager) error {
					fmt.Fprintln(cmd.OutOrStdout(), iis.SiteExists(srv, args[0]))
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "path NAME",
			Short: "显示站点根目录的物理路径",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return o.withStore(func(srv store.Manager) error {
					path, err := iis.SitePhysicalPath(srv, args[0])
					if err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), path)
					return nil
				})
			},
		},
	)
	return cmd
}

func siteTransitionCmd(o *options, use, short string, fn func(store.Manager, string) (bool, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " NAME",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withStore(func(srv store.Manager) error {
				ok, err := fn(srv, args[0])
				if err != nil {
					return err
				}
				printTransition(cmd, args[0], ok)
				return nil
			})
		},
	}
}

// printTransition false 表示对象不存在或为系统对象，未做修改
func printTransition(cmd *cobra.Command, name string, ok bool) {
	if ok {
		fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", name)
		return
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: skipped\n", name)
}
