package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/jmoiron/sqlx"

	echoapi "github.com/trezcool/ada/apps/api/echo"
	"github.com/trezcool/ada/core"
	"github.com/trezcool/ada/core/audit"
	"github.com/trezcool/ada/core/fee"
	"github.com/trezcool/ada/core/payment"
	"github.com/trezcool/ada/core/rate"
	"github.com/trezcool/ada/core/receipt"
	"github.com/trezcool/ada/core/report"
	"github.com/trezcool/ada/core/student"
	"github.com/trezcool/ada/core/user"
	emailsvc "github.com/trezcool/ada/services/email"
	logsvc "github.com/trezcool/ada/services/logger"
	"github.com/trezcool/ada/storage/database"
	sqlxrepos "github.com/trezcool/ada/storage/database/sqlx"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	workDir, err := os.Getwd()
	if err != nil {
		log.Fatalf("getting working directory: %v", err)
	}
	conf, err := core.NewConfig(workDir)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	// set up loggers
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	defer logger.Close()

	dbLogger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)

	// set up DB
	db, err := setUpDB(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err = db.Close(); err != nil {
			dbLogger.Error("Failed to close", err)
		}
	}()
	tx := database.NewTransactor(db, dbLogger, conf.Database.TxRetries, conf.Database.TxRetryDelay)

	// set up services
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf, log.New(os.Stdout, "EMAIL : ", log.LstdFlags))
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}

	trail := audit.NewTrail(sqlxrepos.NewAuditRepository(db), logger, conf.Ledger.AuditQueueSize)
	defer trail.Close()

	validator := core.NewValidator()
	studentSvc := student.NewService(sqlxrepos.NewStudentRepository(db), tx, trail, validator)
	rateSvc := rate.NewService(sqlxrepos.NewRateRepository(db), trail, logger, conf.Ledger.DefaultRates)
	feeSvc := fee.NewService(sqlxrepos.NewFeeRepository(db), studentSvc, tx, trail, validator, conf.Ledger.BusFees)
	paymentSvc := payment.NewService(payment.Options{
		Repo:        sqlxrepos.NewPaymentRepository(db),
		Students:    studentSvc,
		Fees:        feeSvc,
		Rates:       rateSvc,
		Tx:          tx,
		Trail:       trail,
		Logger:      logger,
		Validator:   validator,
		PageSize:    conf.Ledger.PaymentsPageSize,
		MaxPageSize: conf.Ledger.PaymentsMaxPageSize,
	})
	receipts := receipt.NewRenderer(conf.AppName, paymentSvc, studentSvc)
	paymentSvc.SetNotifier(receipt.NewMailer(receipts, mailSvc, logger))

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(echoapi.Options{
		Conf:      conf,
		Logger:    logger,
		Validator: validator,
		Users:     user.NewService(sqlxrepos.NewUserRepository(db), trail, validator),
		Students:  studentSvc,
		Fees:      feeSvc,
		Rates:     rateSvc,
		Payments:  paymentSvc,
		Receipts:  receipts,
		Reports:   report.NewService(sqlxrepos.NewReportRepository(db)),
		Audit:     trail,
	})

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Error(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shutdown and shed load
		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Error(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}

func setUpDB(conf *core.Config) (*sqlx.DB, error) {
	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, err
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}

	if err = database.Migrate(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
