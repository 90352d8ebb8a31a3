package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/emrgen/vault/internal/service"
	"github.com/olekukonko/tablewriter"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var cardsCmd = &cobra.Command{
	Use:   "cards",
	Short: "spaced-repetition card commands",
}

func init() {
	rootCmd.AddCommand(cardsCmd)
	cardsCmd.SetHelpCommand(&cobra.Command{Use: "no-help", Hidden: true})
	cardsCmd.AddCommand(dueCardsCmd())
	cardsCmd.AddCommand(cardStatsCmd())
	cardsCmd.AddCommand(gradeCardCmd())
	cardsCmd.AddCommand(resetCardCmd())
}

func dueCardsCmd() *cobra.Command {
	var module string

	command := &cobra.Command{
		Use:     "due",
		Short:   "list due cards",
		Example: "vault cards due -m notes",
		Run: func(cmd *cobra.Command, args []string) {
			if module == "" {
				logrus.Error("missing required flag: --module")
				return
			}

			cards, err := openVault().Cards().ListDue(context.Background(), module)
			if err != nil {
				logrus.Error(err)
				return
			}

			table := tablewriter.NewWriter(os.Stdout)
			table.SetHeader([]string{"ID", "Front", "Due At", "Reps", "Ease"})
			for _, card := range cards {
				table.Append([]string{
					card.ID,
					card.Front,
					card.DueAt.Format("2006-01-02 15:04"),
					strconv.Itoa(card.Repetitions),
					fmt.Sprintf("%.2f", card.Ease),
				})
			}
			table.Render()
		},
	}

	command.Flags().StringVarP(&module, "module", "m", "", "module name")

	return command
}

func cardStatsCmd() *cobra.Command {
	var module string

	command := &cobra.Command{
		Use:   "stats",
		Short: "show card stats for a module",
		Run: func(cmd *cobra.Command, args []string) {
			if module == "" {
				logrus.Error("missing required flag: --module")
				return
			}

			stats, err := openVault().Cards().Stats(context.Background(), module)
			if err != nil {
				logrus.Error(err)
				return
			}

			fmt.Printf("total: %d, due: %d, new: %d\n", stats.Total, stats.Due, stats.New)
		},
	}

	command.Flags().StringVarP(&module, "module", "m", "", "module name")

	return command
}

func gradeCardCmd() *cobra.Command {
	var id string
	var grade int

	command := &cobra.Command{
		Use:     "grade",
		Short:   "grade a card: 0=again 1=hard 2=good 3=easy",
		Example: "vault cards grade -c <card-id> -g 2",
		Run: func(cmd *cobra.Command, args []string) {
			if id == "" {
				logrus.Error("missing required flag: --card")
				return
			}

			card, err := openVault().Cards().Grade(context.Background(), id, service.Grade(grade))
			if err != nil {
				logrus.Error(err)
				return
			}

			logrus.Infof("card %s due at %s", card.ID, card.DueAt.Format("2006-01-02 15:04"))
		},
	}

	command.Flags().StringVarP(&id, "card", "c", "", "card id")
	command.Flags().IntVarP(&grade, "grade", "g", 2, "review grade")

	return command
}

func resetCardCmd() *cobra.Command {
	var id string

	command := &cobra.Command{
		Use:   "reset",
		Short: "reset a card's scheduling state",
		Run: func(cmd *cobra.Command, args []string) {
			if id == "" {
				logrus.Error("missing required flag: --card")
				return
			}

			card, err := openVault().Cards().Reset(context.Background(), id)
			if err != nil {
				logrus.Error(err)
				return
			}

			logrus.Infof("reset card %s", card.ID)
		},
	}

	command.Flags().StringVarP(&id, "card", "c", "", "card id")

	return command
}
