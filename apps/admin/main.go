package main

import (
	"fmt"
	"log"
	"os"

	"github.com/trezcool/evalua/core"
	"github.com/trezcool/evalua/core/evaluation"
	"github.com/trezcool/evalua/core/staff"
	"github.com/trezcool/evalua/core/theme"
	"github.com/trezcool/evalua/core/user"
	appfs "github.com/trezcool/evalua/fs"
	emailsvc "github.com/trezcool/evalua/services/email"
	logsvc "github.com/trezcool/evalua/services/logger"
	"github.com/trezcool/evalua/storage/database"
	sqlxrepos "github.com/trezcool/evalua/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()

	zl, err := logsvc.NewZapLogger(conf)
	if err != nil {
		log.Fatal(err)
	}
	logger := logsvc.NewRollbarLogger(zl.Named("admin"), conf)

	// set up DB
	if err := database.CreateIfNotExist(conf); err != nil {
		logger.Fatal(fmt.Sprintf("creating database: %v", err), err)
	}
	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
	}

	core.ParseEmailTemplates(conf, appfs.FS, appfs.EmailTemplatesDir, logger)
	validate, translator := core.NewValidator()
	user.InitValidators(validate, translator)

	// start CLI
	staffSvc := staff.NewService(sqlxrepos.NewStaffRepository(db), nil)
	evalRepo := sqlxrepos.NewEvaluationRepository(db)
	themeSvc := theme.NewService(sqlxrepos.NewThemeRepository(db), evalRepo, nil)
	cli := commandLine{
		conf:       conf,
		db:         db,
		logger:     logger,
		out:        os.Stdout,
		mailSvc:    emailsvc.NewService(conf, logger),
		validate:   validate,
		translator: translator,
		usrRepo:    sqlxrepos.NewUserRepository(db),
		staffSvc:   staffSvc,
		themeSvc:   themeSvc,
		evalSvc:    evaluation.NewService(evalRepo, staffSvc, themeSvc, nil, conf.FollowUpMonths),
	}
	err = cli.run(os.Args)

	_ = db.Close()
	logger.Sync()
	if err != nil {
		if err != errHelp {
			fmt.Fprintf(os.Stderr, "\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}
