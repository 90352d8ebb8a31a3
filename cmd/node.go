package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/emrgen/vault/internal/model"
	"github.com/emrgen/vault/internal/service"
	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var nodeCmd = &cobra.Command{
	Use:   "node",
	Short: "node commands",
}

func init() {
	rootCmd.AddCommand(nodeCmd)
	nodeCmd.SetHelpCommand(&cobra.Command{Use: "no-help", Hidden: true})
	nodeCmd.AddCommand(createNodeCmd())
	nodeCmd.AddCommand(getNodeCmd())
	nodeCmd.AddCommand(updateNodeCmd())
	nodeCmd.AddCommand(moveNodeCmd())
	nodeCmd.AddCommand(renameNodeCmd())
	nodeCmd.AddCommand(deleteNodeCmd())
	nodeCmd.AddCommand(treeCmd())
}

func createNodeCmd() *cobra.Command {
	var module string
	var nodePath string
	var kind string
	var content string

	command := &cobra.Command{
		Use:     "create",
		Short:   "create a node",
		Example: `vault node create -m notes -p /inbox/todo.md -k file -c "- [ ] read inbox"`,
		Run: func(cmd *cobra.Command, args []string) {
			if module == "" || nodePath == "" {
				logrus.Error("missing required flags: --module, --path")
				return
			}

			node, err := openVault().Nodes().Create(context.Background(), service.CreateNodeRequest{
				Module:  module,
				Path:    nodePath,
				Kind:    kind,
				Content: content,
			})
			if err != nil {
				logrus.Error(err)
				return
			}

			logrus.Infof("created node %s at %s", node.ID, node.Path)
		},
	}

	command.Flags().StringVarP(&module, "module", "m", "", "module name")
	command.Flags().StringVarP(&nodePath, "path", "p", "", "node path")
	command.Flags().StringVarP(&kind, "kind", "k", model.KindFile, "node kind: file or directory")
	command.Flags().StringVarP(&content, "content", "c", "", "initial content")

	return command
}

func getNodeCmd() *cobra.Command {
	var id string

	command := &cobra.Command{
		Use:   "get",
		Short: "get a node by id",
		Run: func(cmd *cobra.Command, args []string) {
			if id == "" {
				logrus.Error("missing required flag: --node")
				return
			}

			node, err := openVault().Nodes().Get(context.Background(), id)
			if err != nil {
				logrus.Error(err)
				return
			}

			fmt.Printf("id:      %s\n", node.ID)
			fmt.Printf("module:  %s\n", node.Module)
			fmt.Printf("path:    %s\n", node.Path)
			fmt.Printf("kind:    %s\n", node.Kind)
			if node.Content != "" {
				fmt.Printf("content:\n%s\n", node.Content)
			}
		},
	}

	command.Flags().StringVarP(&id, "node", "n", "", "node id")

	return command
}

func updateNodeCmd() *cobra.Command {
	var id string
	var content string

	command := &cobra.Command{
		Use:   "update",
		Short: "update a node's content",
		Run: func(cmd *cobra.Command, args []string) {
			if id == "" {
				logrus.Error("missing required flag: --node")
				return
			}

			node, err := openVault().Nodes().Update(context.Background(), id, service.UpdateNodeRequest{
				Content: &content,
			})
			if err != nil {
				logrus.Error(err)
				return
			}

			logrus.Infof("updated node %s", node.ID)
		},
	}

	command.Flags().StringVarP(&id, "node", "n", "", "node id")
	command.Flags().StringVarP(&content, "content", "c", "", "new content")

	return command
}

func moveNodeCmd() *cobra.Command {
	var id string
	var parentID string

	command := &cobra.Command{
		Use:   "move",
		Short: "move a node under a new parent",
		Run: func(cmd *cobra.Command, args []string) {
			if id == "" || parentID == "" {
				logrus.Error("missing required flags: --node, --parent")
				return
			}

			node, err := openVault().Nodes().Move(context.Background(), id, parentID)
			if err != nil {
				logrus.Error(err)
				return
			}

			logrus.Infof("moved node %s to %s", node.ID, node.Path)
		},
	}

	command.Flags().StringVarP(&id, "node", "n", "", "node id")
	command.Flags().StringVarP(&parentID, "parent", "t", "", "new parent node id")

	return command
}

func renameNodeCmd() *cobra.Command {
	var id string
	var name string

	command := &cobra.Command{
		Use:   "rename",
		Short: "rename a node",
		Run: func(cmd *cobra.Command, args []string) {
			if id == "" || name == "" {
				logrus.Error("missing required flags: --node, --name")
				return
			}

			node, err := openVault().Nodes().Rename(context.Background(), id, name)
			if err != nil {
				logrus.Error(err)
				return
			}

			logrus.Infof("renamed node %s to %s", node.ID, node.Path)
		},
	}

	command.Flags().StringVarP(&id, "node", "n", "", "node id")
	command.Flags().StringVar(&name, "name", "", "new name")

	return command
}

func deleteNodeCmd() *cobra.Command {
	var id string

	command := &cobra.Command{
		Use:   "delete",
		Short: "delete a node and its descendants",
		Run: func(cmd *cobra.Command, args []string) {
			if id == "" {
				logrus.Error("missing required flag: --node")
				return
			}

			result, err := openVault().Nodes().Delete(context.Background(), id)
			if err != nil {
				logrus.Error(err)
				return
			}

			logrus.Infof("removed %d nodes", len(result.RemovedIDs))
		},
	}

	command.Flags().StringVarP(&id, "node", "n", "", "node id")

	return command
}

func treeCmd() *cobra.Command {
	var module string

	command := &cobra.Command{
		Use:     "tree",
		Short:   "print a module's node tree",
		Example: "vault node tree -m notes",
		Run: func(cmd *cobra.Command, args []string) {
			if module == "" {
				logrus.Error("missing required flag: --module")
				return
			}

			tree, err := openVault().Nodes().GetTree(context.Background(), module, nil)
			if err != nil {
				logrus.Error(err)
				return
			}
			if tree == nil {
				fmt.Println("(empty)")
				return
			}

			printTree(tree, 0)
		},
	}

	command.Flags().StringVarP(&module, "module", "m", "", "module name")

	return command
}

func printTree(tree *service.Tree, depth int) {
	indent := strings.Repeat("  ", depth)
	name := tree.Node.Name
	if name == "" {
		name = "/"
	}

	switch {
	case tree.Virtual:
		color.Yellow("%s%s", indent, name)
	case tree.Node.IsDirectory():
		color.Cyan("%s%s/", indent, name)
	default:
		fmt.Printf("%s%s\n", indent, name)
	}

	for _, child := range tree.Children {
		printTree(child, depth+1)
	}
}
