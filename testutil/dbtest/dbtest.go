// Package dbtest wires the ledger services on a fresh, migrated sqlite database for tests.
package dbtest

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/trezcool/ada/core"
	"github.com/trezcool/ada/core/fee"
	"github.com/trezcool/ada/core/payment"
	"github.com/trezcool/ada/core/rate"
	"github.com/trezcool/ada/core/report"
	"github.com/trezcool/ada/core/student"
	"github.com/trezcool/ada/core/user"
	"github.com/trezcool/ada/storage/database"
	sqlxrepos "github.com/trezcool/ada/storage/database/sqlx"
	"github.com/trezcool/ada/testutil"
)

var (
	DefaultRates = map[string]decimal.Decimal{
		"maize":  decimal.NewFromInt(30),
		"millet": decimal.NewFromInt(40),
		"beans":  decimal.NewFromInt(25),
	}
	BusFees = map[string]decimal.Decimal{
		"Location1": decimal.NewFromInt(50),
		"Location2": decimal.NewFromInt(60),
	}
)

// PrepareDB opens a migrated sqlite database in a temp dir. It is closed when the test ends.
func PrepareDB(t testing.TB) *sqlx.DB {
	t.Helper()
	conf := &core.Config{Database: core.DatabaseConfig{
		Engine:       core.EngineSqlite,
		Path:         filepath.Join(t.TempDir(), "test.db"),
		BusyTimeout:  5 * time.Second,
		MaxOpenConns: 4,
	}}
	db, err := database.Open(conf)
	if err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err = database.Migrate(context.Background(), db); err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	return db
}

type Env struct {
	DB        *sqlx.DB
	Tx        *database.Transactor
	Logger    *testutil.Logger
	Trail     *testutil.Trail
	Validator *core.Validator

	PaymentRepo payment.Repository

	Students *student.Service
	Fees     *fee.Service
	Rates    *rate.Service
	Payments *payment.Service
	Users    *user.Service
	Reports  *report.Service
}

// NewEnv wires every service on a fresh database. wrapPayments, if given, decorates the payment
// repository (e.g. to inject failures).
func NewEnv(t testing.TB, wrapPayments ...func(payment.Repository) payment.Repository) *Env {
	t.Helper()
	db := PrepareDB(t)
	env := &Env{
		DB:        db,
		Logger:    new(testutil.Logger),
		Trail:     new(testutil.Trail),
		Validator: core.NewValidator(),
	}
	env.Tx = database.NewTransactor(db, env.Logger, 3, 10*time.Millisecond)

	env.PaymentRepo = sqlxrepos.NewPaymentRepository(db)
	for _, wrap := range wrapPayments {
		env.PaymentRepo = wrap(env.PaymentRepo)
	}

	env.Students = student.NewService(sqlxrepos.NewStudentRepository(db), env.Tx, env.Trail, env.Validator)
	env.Rates = rate.NewService(sqlxrepos.NewRateRepository(db), env.Trail, env.Logger, DefaultRates)
	env.Fees = fee.NewService(sqlxrepos.NewFeeRepository(db), env.Students, env.Tx, env.Trail, env.Validator, BusFees)
	env.Payments = payment.NewService(payment.Options{
		Repo:      env.PaymentRepo,
		Students:  env.Students,
		Fees:      env.Fees,
		Rates:     env.Rates,
		Tx:        env.Tx,
		Trail:     env.Trail,
		Logger:    env.Logger,
		Validator: env.Validator,
	})
	env.Users = user.NewService(sqlxrepos.NewUserRepository(db), env.Trail, env.Validator)
	env.Reports = report.NewService(sqlxrepos.NewReportRepository(db))
	return env
}

func (env *Env) CreateClass(t testing.TB, name string) student.Class {
	t.Helper()
	cls, err := env.Students.CreateClass(context.Background(), 1, name)
	if err != nil {
		t.Fatalf("CreateClass() failed: %v", err)
	}
	return cls
}

func (env *Env) CreateStudent(t testing.TB, admNo, name string, classID int64, busLocation ...string) student.Student {
	t.Helper()
	ns := student.NewStudent{AdmissionNumber: admNo, Name: name, ClassID: classID}
	if len(busLocation) > 0 {
		ns.BusLocation = busLocation[0]
	}
	std, err := env.Students.Create(context.Background(), 1, ns)
	if err != nil {
		t.Fatalf("CreateStudent() failed: %v", err)
	}
	return std
}

func (env *Env) CreateUser(t testing.TB, uname, pwd string, roles ...string) user.User {
	t.Helper()
	if len(roles) == 0 {
		roles = []string{user.RoleClerk}
	}
	usr, err := env.Users.Create(context.Background(), user.NewUser{
		Name:            uname,
		Username:        uname,
		Password:        pwd,
		PasswordConfirm: pwd,
		Roles:           roles,
	})
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}
