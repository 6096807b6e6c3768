package core

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

const (
	EngineSqlite   = "sqlite"
	EnginePostgres = "postgres"
)

type (
	Config struct {
		Env              string
		Debug            bool
		TestMode         bool
		AppName          string
		Build            string
		SecretKey        string
		DefaultFromEmail string
		RollbarToken     string
		SendgridAPIKey   string
		WorkDir          string

		Server   ServerConfig
		Database DatabaseConfig
		Ledger   LedgerConfig
		Backup   BackupConfig
	}

	ServerConfig struct {
		Host               string
		Address            string
		JWTExpirationDelta time.Duration
		ShutdownTimeout    time.Duration
	}

	DatabaseConfig struct {
		Engine        string
		Path          string // sqlite only
		Host          string
		Port          int
		User          string
		Password      string
		Name          string
		DisableTLS    bool
		MaxOpenConns  int
		BusyTimeout   time.Duration
		TxRetries     int
		TxRetryDelay  time.Duration
		AdminUser     string
		AdminPassword string
	}

	LedgerConfig struct {
		DefaultRates        map[string]decimal.Decimal // commodity -> rate per kg
		BusFees             map[string]decimal.Decimal // bus location -> fee
		PaymentsPageSize    int
		PaymentsMaxPageSize int
		AuditQueueSize      int
		AuditRetentionDays  int
	}

	BackupConfig struct {
		Dir      string
		S3Bucket string
		S3Region string
		S3Prefix string
	}
)

func (dbc DatabaseConfig) Address() string {
	return net.JoinHostPort(dbc.Host, strconv.Itoa(dbc.Port))
}

// NewConfig reads the configuration for the current ENV (DEV by default) from the environment,
// after loading `config/.env.<env>` from workDir if it exists.
func NewConfig(workDir string) (*Config, error) {
	v := viper.New()

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	if env == "" {
		env = "DEV"
	}

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", env == "DEV" || env == "TEST")
	v.SetDefault("testMode", env == "TEST")
	v.SetDefault("appName", "Ada")
	v.SetDefault("build", "dev")
	v.SetDefault("secretKey", "wq3#lc8v!r+1p&0z(tbn%e9=8m2o$j5k)h4g7a*d6f_x")
	v.SetDefault("defaultFromEmail", "noreply@localhost")
	v.SetDefault("rollbarToken", "")
	v.SetDefault("sendgridAPIKey", "")

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.address", ":8000")
	v.SetDefault("server.jwtExpirationDelta", 12*time.Hour)
	v.SetDefault("server.shutdownTimeout", 10*time.Second)

	v.SetDefault("database.engine", EngineSqlite)
	v.SetDefault("database.path", filepath.Join(workDir, "data", "ada.db"))
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "ada")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "ada")
	v.SetDefault("database.disableTLS", false)
	v.SetDefault("database.maxOpenConns", 10)
	v.SetDefault("database.busyTimeout", 5*time.Second)
	v.SetDefault("database.txRetries", 3)
	v.SetDefault("database.txRetryDelay", 100*time.Millisecond)
	v.SetDefault("database.adminUser", "")
	v.SetDefault("database.adminPassword", "")

	v.SetDefault("ledger.rateMaize", "30")
	v.SetDefault("ledger.rateMillet", "40")
	v.SetDefault("ledger.rateBeans", "25")
	v.SetDefault("ledger.busFees", "Location1=50,Location2=60")
	v.SetDefault("ledger.paymentsPageSize", 50)
	v.SetDefault("ledger.paymentsMaxPageSize", 500)
	v.SetDefault("ledger.auditQueueSize", 256)
	v.SetDefault("ledger.auditRetentionDays", 90)

	v.SetDefault("backup.dir", filepath.Join(workDir, "backups"))
	v.SetDefault("backup.s3Bucket", "")
	v.SetDefault("backup.s3Region", "")
	v.SetDefault("backup.s3Prefix", "backups/")

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(workDir, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			return nil, errors.Wrapf(err, "loading %s", dotEnvPath)
		}
	} else if !os.IsNotExist(err) {
		return nil, errors.Wrapf(err, "checking %s", dotEnvPath)
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	conf := &Config{
		Env:              env,
		Debug:            v.GetBool("debug"),
		TestMode:         v.GetBool("testMode"),
		AppName:          v.GetString("appName"),
		Build:            v.GetString("build"),
		SecretKey:        v.GetString("secretKey"),
		DefaultFromEmail: v.GetString("defaultFromEmail"),
		RollbarToken:     v.GetString("rollbarToken"),
		SendgridAPIKey:   v.GetString("sendgridAPIKey"),
		WorkDir:          workDir,
		Server: ServerConfig{
			Host:               v.GetString("server.host"),
			Address:            v.GetString("server.address"),
			JWTExpirationDelta: v.GetDuration("server.jwtExpirationDelta"),
			ShutdownTimeout:    v.GetDuration("server.shutdownTimeout"),
		},
		Database: DatabaseConfig{
			Engine:        strings.ToLower(v.GetString("database.engine")),
			Path:          v.GetString("database.path"),
			Host:          v.GetString("database.host"),
			Port:          v.GetInt("database.port"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			Name:          v.GetString("database.name"),
			DisableTLS:    v.GetBool("database.disableTLS"),
			MaxOpenConns:  v.GetInt("database.maxOpenConns"),
			BusyTimeout:   v.GetDuration("database.busyTimeout"),
			TxRetries:     v.GetInt("database.txRetries"),
			TxRetryDelay:  v.GetDuration("database.txRetryDelay"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
		},
		Ledger: LedgerConfig{
			PaymentsPageSize:    v.GetInt("ledger.paymentsPageSize"),
			PaymentsMaxPageSize: v.GetInt("ledger.paymentsMaxPageSize"),
			AuditQueueSize:      v.GetInt("ledger.auditQueueSize"),
			AuditRetentionDays:  v.GetInt("ledger.auditRetentionDays"),
		},
		Backup: BackupConfig{
			Dir:      v.GetString("backup.dir"),
			S3Bucket: v.GetString("backup.s3Bucket"),
			S3Region: v.GetString("backup.s3Region"),
			S3Prefix: v.GetString("backup.s3Prefix"),
		},
	}

	var err error
	conf.Ledger.DefaultRates, err = parseAmounts(map[string]string{
		"maize":  v.GetString("ledger.rateMaize"),
		"millet": v.GetString("ledger.rateMillet"),
		"beans":  v.GetString("ledger.rateBeans"),
	})
	if err != nil {
		return nil, errors.Wrap(err, "parsing ledger default rates")
	}
	if conf.Ledger.BusFees, err = ParseAmountList(v.GetString("ledger.busFees")); err != nil {
		return nil, errors.Wrap(err, "parsing ledger bus fees")
	}

	switch conf.Database.Engine {
	case EngineSqlite, EnginePostgres:
	default:
		return nil, fmt.Errorf("unsupported database engine %q", conf.Database.Engine)
	}
	return conf, nil
}

func parseAmounts(raw map[string]string) (map[string]decimal.Decimal, error) {
	amounts := make(map[string]decimal.Decimal, len(raw))
	for key, val := range raw {
		if CleanString(val) == "" {
			continue
		}
		amt, err := decimal.NewFromString(CleanString(val))
		if err != nil {
			return nil, errors.Wrapf(err, "%s=%q", key, val)
		}
		amounts[key] = amt
	}
	return amounts, nil
}

// ParseAmountList parses "key=amount,key=amount" pairs. Keys keep their case.
func ParseAmountList(s string) (map[string]decimal.Decimal, error) {
	raw := make(map[string]string)
	for _, pair := range strings.Split(s, ",") {
		pair = CleanString(pair)
		if pair == "" {
			continue
		}
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 || CleanString(kv[0]) == "" {
			return nil, fmt.Errorf("malformed pair %q", pair)
		}
		raw[CleanString(kv[0])] = kv[1]
	}
	return parseAmounts(raw)
}
