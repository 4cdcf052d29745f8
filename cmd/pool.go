package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"iisctl/iis"
	"iisctl/store"
)

func newPoolCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "pool",
		Aliases: []string{"apppool"},
		Short:   "管理应用程序池",
	}

	transition := func(use, short string, fn func(store.Manager, string) (bool, error)) *cobra.Command {
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

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "列出应用程序池",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return o.withStore(func(srv store.Manager) error {
					w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
					fmt.Fprintln(w, "名称\t状态\t.NET\t管道\t标识")
					for _, p := range srv.ApplicationPools() {
						runtime := p.ManagedRuntimeVersion
						if runtime == "" {
							runtime = "无托管代码"
						}
						fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
							p.Name, srv.ApplicationPoolState(p.Name), runtime, p.ManagedPipelineMode, p.ProcessModel.IdentityType)
					}
					return w.Flush()
				})
			},
		},
		transition("delete", "删除应用程序池，系统应用程序池不会被删除", iis.DeleteApplicationPool),
		transition("start", "启动应用程序池", iis.StartApplicationPool),
		transition("stop", "停止应用程序池", iis.StopApplicationPool),
		transition("recycle", "回收应用程序池", iis.RecycleApplicationPool),
		&cobra.Command{
			Use:   "exists NAME",
			Short: "应用程序池是否存在",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return o.withStore(func(srv store.Manager) error {
					fmt.Fprintln(cmd.OutOrStdout(), iis.ApplicationPoolExists(srv, args[0]))
					return nil
				})
			},
		},
	)
	return cmd
}
