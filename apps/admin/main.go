package main

import (
	"context"
	"log"
	"os"

	"github.com/trezcool/ada/core"
	"github.com/trezcool/ada/core/audit"
	"github.com/trezcool/ada/core/rate"
	"github.com/trezcool/ada/core/user"
	backupsvc "github.com/trezcool/ada/services/backup"
	logsvc "github.com/trezcool/ada/services/logger"
	"github.com/trezcool/ada/storage/database"
	sqlxrepos "github.com/trezcool/ada/storage/database/sqlx"
)

var logger *log.Logger

func main() {
	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)

	workDir, err := os.Getwd()
	errAndDie(err)
	conf, err := core.NewConfig(workDir)
	errAndDie(err)

	appLogger := logsvc.NewRollbarLogger(logger, conf)

	// set up DB
	errAndDie(database.CreateIfNotExist(conf))
	db, err := database.Open(conf)
	errAndDie(err)

	trail := audit.NewTrail(sqlxrepos.NewAuditRepository(db), appLogger, conf.Ledger.AuditQueueSize)
	validator := core.NewValidator()

	var uploader backupsvc.Uploader
	if conf.Backup.S3Bucket != "" {
		s3Uploader, err := backupsvc.NewS3Uploader(context.Background(), conf.Backup)
		errAndDie(err)
		uploader = s3Uploader
	}

	// start CLI
	cli := commandLine{
		conf:    conf,
		db:      db,
		out:     os.Stdout,
		users:   user.NewService(sqlxrepos.NewUserRepository(db), trail, validator),
		rates:   rate.NewService(sqlxrepos.NewRateRepository(db), trail, appLogger, conf.Ledger.DefaultRates),
		trail:   trail,
		backups: backupsvc.NewService(db, conf.Backup.Dir, uploader, appLogger),
	}
	err = cli.run(os.Args)

	trail.Close()
	_ = db.Close()
	appLogger.Close()
	if err != nil {
		if err != errHelp {
			logger.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err)
	}
}
