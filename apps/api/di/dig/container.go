package dig_container

import (
	"fmt"
	"log"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/dig"
	"go.uber.org/zap"

	echoapi "github.com/trezcool/evalua/apps/api/echo"
	"github.com/trezcool/evalua/core"
	"github.com/trezcool/evalua/core/evaluation"
	"github.com/trezcool/evalua/core/report"
	"github.com/trezcool/evalua/core/staff"
	"github.com/trezcool/evalua/core/theme"
	"github.com/trezcool/evalua/core/user"
	"github.com/trezcool/evalua/services/eventbus"
	logsvc "github.com/trezcool/evalua/services/logger"
	"github.com/trezcool/evalua/services/queue"
	"github.com/trezcool/evalua/storage/database"
	sqlxrepos "github.com/trezcool/evalua/storage/database/sqlx"
)

type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

func newZapLogger(conf *core.Config) *zap.Logger {
	zl, err := logsvc.NewZapLogger(conf)
	if err != nil {
		log.Fatal(errors.Wrap(err, "building zap logger").Error())
	}
	return zl
}

func newLogger(zl *zap.Logger, conf *core.Config) *logsvc.RollbarLogger {
	return logsvc.NewRollbarLogger(zl.Named("api"), conf)
}

func newDBLogger(zl *zap.Logger, conf *core.Config) core.Logger {
	return logsvc.NewRollbarLogger(zl.Named("db"), conf)
}

func newDB(conf *core.Config, loggerParam DBLoggerParam) (*sqlx.DB, core.DB) {
	setUp := func() (*sqlx.DB, error) {
		if err := database.CreateIfNotExist(conf); err != nil {
			return nil, err
		}

		db, err := database.Open(conf)
		if err != nil {
			return nil, err
		}

		if err = database.Migrate(db, conf, loggerParam.Logger, "up"); err != nil {
			return nil, err
		}
		return db, nil
	}

	db, err := setUp()
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	return db, db
}

func newValidator() (*validator.Validate, ut.Translator) {
	validate, translator := core.NewValidator()
	user.InitValidators(validate, translator)
	return validate, translator
}

func newQueue(conf *core.Config, logger core.Logger) *queue.Queue {
	q := queue.New(queue.OptionsFromConfig(conf.Queue), logger)
	q.Start()
	return q
}

func newThemeService(repo theme.Repository, evals evaluation.Repository, bus core.EventBus) *theme.Service {
	return theme.NewService(repo, evals, bus)
}

func newEvaluationService(
	conf *core.Config,
	repo evaluation.Repository,
	staffSvc *staff.Service,
	themeSvc *theme.Service,
	bus core.EventBus,
) *evaluation.Service {
	return evaluation.NewService(repo, staffSvc, themeSvc, bus, conf.FollowUpMonths)
}

func newReportService(staffSvc *staff.Service, themeSvc *theme.Service, evalSvc *evaluation.Service) *report.Service {
	return report.NewService(staffSvc, themeSvc, evalSvc)
}

type ServerParams struct {
	dig.In

	Conf       *core.Config
	Logger     core.Logger
	Validate   *validator.Validate
	Translator ut.Translator
	Bus        core.EventBus
	Runner     core.OperationRunner
	UserSvc    *user.Service
	StaffSvc   *staff.Service
	ThemeSvc   *theme.Service
	EvalSvc    *evaluation.Service
	ReportSvc  *report.Service
}

func newServer(p ServerParams) *echoapi.Server {
	return echoapi.NewServer(echoapi.ServerDeps{
		Conf:       p.Conf,
		Logger:     p.Logger,
		Validate:   p.Validate,
		Translator: p.Translator,
		Bus:        p.Bus,
		Runner:     p.Runner,
		UserSvc:    p.UserSvc,
		StaffSvc:   p.StaffSvc,
		ThemeSvc:   p.ThemeSvc,
		EvalSvc:    p.EvalSvc,
		ReportSvc:  p.ReportSvc,
	})
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newZapLogger))
	must(c.Provide(newLogger))
	must(c.Provide(func(l *logsvc.RollbarLogger) core.Logger { return l }))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newDB))
	must(c.Provide(newValidator))
	must(c.Provide(eventbus.New, dig.As(new(core.EventBus))))
	must(c.Provide(newQueue))
	must(c.Provide(func(q *queue.Queue) core.OperationRunner { return q }))

	// repositories
	must(c.Provide(sqlxrepos.NewUserRepository))
	must(c.Provide(sqlxrepos.NewStaffRepository))
	must(c.Provide(sqlxrepos.NewThemeRepository))
	must(c.Provide(sqlxrepos.NewEvaluationRepository))

	// services
	must(c.Provide(user.NewService))
	must(c.Provide(staff.NewService))
	must(c.Provide(newThemeService))
	must(c.Provide(newEvaluationService))
	must(c.Provide(newReportService))

	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
