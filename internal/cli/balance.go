package cli

import (
	"github.com/spf13/cobra"

	"optiondesk/internal/errors"
	"optiondesk/pkg/utils"
)

func newBalanceCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "balance",
		Short: "Show the available margin",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			src, err := app.balanceSource()
			if err != nil {
				return err
			}
			balance, err := src.GetBalance(cmd.Context())
			if errors.Is(err, errors.ErrAuthExpired) {
				output.Error("Broker session expired. Log in to the backend again.")
				return err
			}
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{"balance": balance})
			}
			output.Printf("Available margin: %s\n", utils.FormatIndianCurrency(balance))
			return nil
		},
	}
}
