package cmd

import (
	"errors"
	"fmt"

	"github.com/cinequiz/apiserver/config"
	"github.com/cinequiz/apiserver/internal/db"
	"github.com/cinequiz/apiserver/internal/fixtures"
	"github.com/cinequiz/apiserver/internal/services"
	"github.com/cinequiz/apiserver/internal/storage"
	"github.com/cinequiz/apiserver/internal/store"
	"github.com/spf13/cobra"
)

var (
	loaddataSource string
	loaddataFile   string
	fixturePrefix  string
)

// loaddataCmd imports a catalog fixture from object storage or a file.
var loaddataCmd = &cobra.Command{
	Use:   "loaddata [key]",
	Short: "Load a catalog fixture into the database",
	Long: `Loads movies, people, tests and quizzes from a JSON fixture. Usage:

	cinequiz loaddata catalog/v1.json --source gcs
	cinequiz loaddata --file internal/fixtures/testdata/catalog.json
`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if loaddataFile == "" && len(args) == 0 {
			return errors.New("either a fixture key or --file is required")
		}

		cfg := config.LoadConfig()
		logger := newLogger(cfg)
		defer logger.Sync()
		ctx := cmd.Context()

		dbConn, err := db.Open(ctx, cfg)
		if err != nil {
			return err
		}
		defer dbConn.Close()

		loader := fixtures.NewLoader(services.NewCatalogService(store.NewCatalogRepository(dbConn)), logger)

		var summary store.ImportSummary
		if loaddataFile != "" {
			summary, err = loader.LoadFile(ctx, loaddataFile)
		} else {
			objects, openErr := openObjectStore(cmd, cfg)
			if openErr != nil {
				return openErr
			}
			defer objects.Close()
			summary, err = loader.LoadObject(ctx, objects, args[0])
		}
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(),
			"imported %d people, %d movies, %d tests, %d quiz questions, %d quizzes\n",
			summary.People, summary.Movies, summary.Tests, summary.QuizQuestions, summary.Quizzes)
		return nil
	},
}

// fixturesCmd manages fixture objects in the bucket.
var fixturesCmd = &cobra.Command{
	Use:   "fixtures",
	Short: "Manage catalog fixtures in object storage",
}

var fixturesPushCmd = &cobra.Command{
	Use:   "push <file> <key>",
	Short: "Validate a local fixture and upload it",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		objects, err := openObjectStore(cmd, cfg)
		if err != nil {
			return err
		}
		defer objects.Close()

		if err := fixtures.Publish(cmd.Context(), objects, args[0], args[1]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "uploaded %s to %s/%s\n", args[0], objects.Bucket(), args[1])
		return nil
	},
}

var fixturesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List fixture objects",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		objects, err := openObjectStore(cmd, cfg)
		if err != nil {
			return err
		}
		defer objects.Close()

		keys, err := objects.List(cmd.Context(), fixturePrefix)
		if err != nil {
			return err
		}
		for _, key := range keys {
			fmt.Fprintln(cmd.OutOrStdout(), key)
		}
		return nil
	},
}

func openObjectStore(cmd *cobra.Command, cfg config.Config) (storage.ObjectStore, error) {
	storageCfg := cfg.Storage
	if loaddataSource != "" {
		storageCfg.Backend = loaddataSource
	}
	return storage.New(cmd.Context(), storageCfg)
}

func init() {
	rootCmd.AddCommand(loaddataCmd, fixturesCmd)
	fixturesCmd.AddCommand(fixturesPushCmd, fixturesListCmd)

	loaddataCmd.Flags().StringVar(&loaddataFile, "file", "", "load from a local file instead of object storage")
	for _, c := range []*cobra.Command{loaddataCmd, fixturesCmd} {
		c.PersistentFlags().StringVar(&loaddataSource, "source", "", "object storage backend (minio|gcs), defaults to STORAGE_BACKEND")
	}
	fixturesListCmd.Flags().StringVar(&fixturePrefix, "prefix", "", "only list keys with this prefix")
}
