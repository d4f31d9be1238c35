package cmd

import (
	"fmt"

	"github.com/cinequiz/apiserver/config"
	"github.com/cinequiz/apiserver/internal/db"
	"github.com/cinequiz/apiserver/internal/services"
	"github.com/cinequiz/apiserver/internal/store"
	"github.com/spf13/cobra"
)

var (
	superuserInput          services.SignupInput
	superuserSkipValidation bool
)

// createSuperuserCmd creates a staff account with every capability flag set.
var createSuperuserCmd = &cobra.Command{
	Use:   "createsuperuser",
	Short: "Create an administrator account",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		logger := newLogger(cfg)
		defer logger.Sync()

		dbConn, err := db.Open(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer dbConn.Close()

		tokens := services.NewTokenService(cfg.Auth.JWTSecret)
		account := services.NewAccountService(store.NewUserRepository(dbConn), services.NewPasswordValidator(), tokens,
			services.WithAccountLogger(logger))

		user, err := account.CreateSuperuser(cmd.Context(), superuserInput, !superuserSkipValidation)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "superuser %s created with id %d\n", user.Username, user.ID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(createSuperuserCmd)

	flags := createSuperuserCmd.Flags()
	flags.StringVar(&superuserInput.Email, "email", "", "email address")
	flags.StringVar(&superuserInput.Username, "username", "", "username")
	flags.StringVar(&superuserInput.Password, "password", "", "password")
	flags.StringVar(&superuserInput.FirstName, "first-name", "", "first name")
	flags.StringVar(&superuserInput.LastName, "last-name", "", "last name")
	flags.BoolVar(&superuserSkipValidation, "skip-validation", false, "skip the password policy")
	_ = createSuperuserCmd.MarkFlagRequired("email")
	_ = createSuperuserCmd.MarkFlagRequired("username")
	_ = createSuperuserCmd.MarkFlagRequired("password")
}
