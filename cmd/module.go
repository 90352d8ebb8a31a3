package cmd

import (
	"context"
	"os"

	"github.com/emrgen/vault"
	"github.com/emrgen/vault/internal/compress"
	"github.com/emrgen/vault/internal/config"
	"github.com/olekukonko/tablewriter"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var moduleCmd = &cobra.Command{
	Use:   "module",
	Short: "module commands",
}

func init() {
	rootCmd.AddCommand(moduleCmd)
	moduleCmd.SetHelpCommand(&cobra.Command{Use: "no-help", Hidden: true})
	moduleCmd.AddCommand(mountModuleCmd())
	moduleCmd.AddCommand(unmountModuleCmd())
	moduleCmd.AddCommand(listModulesCmd())
	moduleCmd.AddCommand(exportModuleCmd())
	moduleCmd.AddCommand(importModuleCmd())
}

// openVault opens the configured database and wires the store stack.
func openVault() *vault.Vault {
	return vault.Open(config.GetDb(config.LoadConfig()))
}

func mountModuleCmd() *cobra.Command {
	var name string
	var description string

	command := &cobra.Command{
		Use:     "mount",
		Short:   "mount a module",
		Example: "vault module mount -m notes -d 'personal notes'",
		Run: func(cmd *cobra.Command, args []string) {
			if name == "" {
				logrus.Error("missing required flag: --module")
				return
			}

			mod, err := openVault().Modules().Mount(context.Background(), name, description)
			if err != nil {
				logrus.Error(err)
				return
			}

			logrus.Infof("mounted module %s with root node %s", mod.Name, mod.RootNodeID)
		},
	}

	command.Flags().StringVarP(&name, "module", "m", "", "module name")
	command.Flags().StringVarP(&description, "description", "d", "", "module description")

	return command
}

func unmountModuleCmd() *cobra.Command {
	var name string

	command := &cobra.Command{
		Use:     "unmount",
		Short:   "unmount a module and delete all its nodes",
		Example: "vault module unmount -m notes",
		Run: func(cmd *cobra.Command, args []string) {
			if name == "" {
				logrus.Error("missing required flag: --module")
				return
			}

			if err := openVault().Modules().Unmount(context.Background(), name); err != nil {
				logrus.Error(err)
				return
			}

			logrus.Infof("unmounted module %s", name)
		},
	}

	command.Flags().StringVarP(&name, "module", "m", "", "module name")

	return command
}

func listModulesCmd() *cobra.Command {
	command := &cobra.Command{
		Use:   "list",
		Short: "list mounted modules",
		Run: func(cmd *cobra.Command, args []string) {
			mods, err := openVault().Modules().List(context.Background())
			if err != nil {
				logrus.Error(err)
				return
			}

			table := tablewriter.NewWriter(os.Stdout)
			table.SetHeader([]string{"Name", "Root Node", "Description", "Created At"})
			for _, mod := range mods {
				table.Append([]string{
					mod.Name,
					mod.RootNodeID,
					mod.Description,
					mod.CreatedAt.Format("2006-01-02 15:04:05"),
				})
			}
			table.Render()
		},
	}

	return command
}

func exportModuleCmd() *cobra.Command {
	var name string
	var out string
	var codecName string

	command := &cobra.Command{
		Use:     "export",
		Short:   "export a module to a file",
		Example: "vault module export -m notes -o notes.vault --codec gzip",
		Run: func(cmd *cobra.Command, args []string) {
			if name == "" || out == "" {
				logrus.Error("missing required flags: --module, --out")
				return
			}

			codec, err := compress.FromName(codecName)
			if err != nil {
				logrus.Error(err)
				return
			}

			data, err := openVault().Modules().Export(context.Background(), name, codec)
			if err != nil {
				logrus.Error(err)
				return
			}

			if err := os.WriteFile(out, data, 0644); err != nil {
				logrus.Error(err)
				return
			}

			logrus.Infof("exported module %s to %s (%d bytes)", name, out, len(data))
		},
	}

	command.Flags().StringVarP(&name, "module", "m", "", "module name")
	command.Flags().StringVarP(&out, "out", "o", "", "output file")
	command.Flags().StringVar(&codecName, "codec", "gzip", "compression codec: none, gzip, brotli, lz4")

	return command
}

func importModuleCmd() *cobra.Command {
	var in string

	command := &cobra.Command{
		Use:     "import",
		Short:   "import a module from an export file",
		Example: "vault module import -i notes.vault",
		Run: func(cmd *cobra.Command, args []string) {
			if in == "" {
				logrus.Error("missing required flag: --in")
				return
			}

			data, err := os.ReadFile(in)
			if err != nil {
				logrus.Error(err)
				return
			}

			mod, err := openVault().Modules().Import(context.Background(), data)
			if err != nil {
				logrus.Error(err)
				return
			}

			logrus.Infof("imported module %s", mod.Name)
		},
	}

	command.Flags().StringVarP(&in, "in", "i", "", "input file")

	return command
}
