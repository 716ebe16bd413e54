package testutil

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"

	"github.com/trezcool/evalua/core"
	"github.com/trezcool/evalua/core/evaluation"
	"github.com/trezcool/evalua/core/staff"
	"github.com/trezcool/evalua/core/theme"
	"github.com/trezcool/evalua/core/user"
	"github.com/trezcool/evalua/storage/database"
)

// NopLogger discards every message.
type NopLogger struct{}

func (NopLogger) Debug(string, ...interface{}) {}
func (NopLogger) Info(string, ...interface{})  {}
func (NopLogger) Warn(string, ...interface{})  {}
func (NopLogger) Error(string, ...interface{}) {}
func (NopLogger) Fatal(string, ...interface{}) {}

func NewValidator() (*validator.Validate, ut.Translator) {
	validate, translator := core.NewValidator()
	user.InitValidators(validate, translator)
	return validate, translator
}

// NewConfig returns a TEST config storing the SQLite database at `dbPath`.
func NewConfig(dbPath string) *core.Config {
	_ = os.Setenv("ENV", "TEST")
	conf := core.NewConfig()
	conf.Database.Engine = "sqlite"
	conf.Database.Path = dbPath
	return conf
}

// MigrateDB opens and migrates the database of `conf`.
func MigrateDB(conf *core.Config) (*sqlx.DB, error) {
	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, err
	}
	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}
	if err = database.Migrate(db, conf, NopLogger{}, "up"); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// OpenDB opens a migrated database in t.TempDir(); it is closed with the test.
func OpenDB(t testing.TB) (*sqlx.DB, *core.Config) {
	conf := NewConfig(filepath.Join(t.TempDir(), "evalua_test.db"))
	db, err := MigrateDB(conf)
	if err != nil {
		t.Fatalf("MigrateDB() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, conf
}

// ResetDB deletes every row of the database.
func ResetDB(t testing.TB, db core.DB) {
	for _, table := range []string{"evaluations", "themes", "staff", "users"} {
		if _, err := db.ExecContext(context.Background(), "DELETE FROM "+table); err != nil {
			t.Fatalf("ResetDB() failed: %v", err)
		}
	}
}

func CreateUser(
	t testing.TB,
	repo user.Repository,
	name, uname, email, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:      name,
		Username:  uname,
		Email:     email,
		Roles:     roles,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("createUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("createUser() failed: %v", err)
	}
	return usr
}

func CreateStaff(t testing.TB, repo staff.Repository, first, last, email, establishment string) staff.Staff {
	now := time.Now().UTC()
	s, err := repo.CreateStaff(context.Background(), staff.Staff{
		FirstName:     first,
		LastName:      last,
		Email:         email,
		Establishment: establishment,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if err != nil {
		t.Fatalf("createStaff() failed: %v", err)
	}
	return s
}

func CreateTheme(t testing.TB, repo theme.Repository, name string) theme.Theme {
	now := time.Now().UTC()
	th, err := repo.CreateTheme(context.Background(), theme.Theme{Name: name, CreatedAt: now, UpdatedAt: now})
	if err != nil {
		t.Fatalf("createTheme() failed: %v", err)
	}
	return th
}

// FullScores scores every criterion of the `kind` form with `score`.
func FullScores(kind evaluation.Kind, score int) evaluation.Scores {
	form, _ := evaluation.FormOf(kind)
	scores := make(evaluation.Scores, len(form.Criteria))
	for _, c := range form.Criteria {
		scores[c.Key] = score
	}
	return scores
}

// CreateEvaluation saves `e` as is; zero timestamps default to now and the status to draft.
func CreateEvaluation(t testing.TB, repo evaluation.Repository, e evaluation.Evaluation) evaluation.Evaluation {
	now := time.Now().UTC()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
		e.UpdatedAt = now
	}
	if e.Status == "" {
		e.Status = evaluation.StatusDraft
	}
	if e.Status == evaluation.StatusCompleted && e.CompletedAt == nil {
		e.CompletedAt = &now
	}
	if e.EvaluationDate.IsZero() {
		e.EvaluationDate = core.TruncateDay(now)
	}
	if e.TrainingDate.IsZero() {
		e.TrainingDate = e.EvaluationDate
	}
	e.Average = e.Scores.Average()
	e, err := repo.CreateEvaluation(context.Background(), e)
	if err != nil {
		t.Fatalf("createEvaluation() failed: %v", err)
	}
	return e
}
