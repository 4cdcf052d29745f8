package cmd

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"iisctl/deploy"
)

func newApplyCmd(o *options) *cobra.Command {
	var (
		file      string
		checkOnly bool
	)

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "按清单应用 IIS 配置",
		Long: `按依赖顺序应用清单：应用程序池、网站、FTP 站点、应用、
虚拟应用、虚拟目录、绑定。单个条目失败不影响其他条目。`,
		Example: `  iisctl apply -f iis.yaml
  iisctl apply -f iis.yaml --computer web01
  iisctl apply -f iis.yaml --check`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := deploy.LoadManifest(file)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if checkOnly {
				fmt.Fprintf(out, "清单 %s 校验通过\n", file)
				return nil
			}

			results, err := newDeployer(o.cfg).Apply(m)
			changed := 0
			for _, r := range results {
				fmt.Fprintln(out, r.String())
				if r.Changed {
					changed++
				}
			}
			fmt.Fprintf(out, "共 %d 项，修改 %d 项\n", len(results), changed)
			if err != nil {
				return errors.Wrap(err, "部署未全部成功")
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "清单文件 (YAML)")
	cmd.Flags().BoolVar(&checkOnly, "check", false, "只校验清单，不修改配置")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
