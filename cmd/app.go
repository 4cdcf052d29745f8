package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"iisctl/iis"
	"iisctl/store"
)

func newAppCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "app",
		Aliases: []string{"application"},
		Short:   "管理站点下的应用",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "exists SITE APP",
			Short: "应用是否存在，APP 可省略前导 /",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return o.withStore(func(srv store.Manager) error {
					exists, err := iis.VirtualApplicationExists(srv, args[0], args[1])
					if err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), exists)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "delete SITE APP",
			Short: "删除应用",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return o.withStore(func(srv store.Manager) error {
					if err := iis.DeleteVirtualApplication(srv, args[0], args[1]); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s %s: deleted\n", args[0], args[1])
					return nil
				})
			},
		},
	)
	return cmd
}

func newVdirCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vdir",
		Short: "管理应用下的虚拟目录",
	}

	settings := func(args []string) *iis.VirtualDirectorySettings {
		return &iis.VirtualDirectorySettings{SiteName: args[0], ApplicationPath: args[1], Path: args[2]}
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:     "exists SITE APP_PATH PATH",
			Short:   "虚拟目录是否存在",
			Example: "  iisctl vdir exists S1 / /static",
			Args:    cobra.ExactArgs(3),
			RunE: func(cmd *cobra.Command, args []string) error {
				return o.withStore(func(srv store.Manager) error {
					fmt.Fprintln(cmd.OutOrStdout(), iis.VirtualDirectoryExists(srv, settings(args)))
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "remove SITE APP_PATH PATH",
			Short: "删除虚拟目录",
			Args:  cobra.ExactArgs(3),
			RunE: func(cmd *cobra.Command, args []string) error {
				return o.withStore(func(srv store.Manager) error {
					ok, err := iis.RemoveVirtualDirectory(srv, settings(args))
					if err != nil {
						return err
					}
					printTransition(cmd, args[0]+args[1]+args[2], ok)
					return nil
				})
			},
		},
	)
	return cmd
}
